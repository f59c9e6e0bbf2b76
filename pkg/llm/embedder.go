package llm

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// EmbedderConfig configures the embedding model.
type EmbedderConfig struct {
	Provider  string // "openai" or "ollama"
	Model     string
	BaseURL   string
	APIKeyEnv string
	BatchSize int
}

// Embedder turns chunk texts and questions into vectors. The underlying
// client is created on first use, so a missing credential only fails the
// call that needs it.
type Embedder struct {
	config EmbedderConfig

	once     sync.Once
	client   embeddings.EmbedderClient
	embedder embeddings.Embedder
	initErr  error
}

func NewEmbedderWithConfig(config EmbedderConfig) *Embedder {
	if config.Provider == "" {
		config.Provider = "openai"
	}
	if config.Model == "" {
		if config.Provider == "ollama" {
			config.Model = "nomic-embed-text:latest"
		} else {
			config.Model = "text-embedding-3-small"
		}
	}
	if config.APIKeyEnv == "" {
		config.APIKeyEnv = "OPENAI_API_KEY"
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 64
	}

	return &Embedder{config: config}
}

// NewEmbedderWithClient wraps an already constructed embedding client.
func NewEmbedderWithClient(config EmbedderConfig, client embeddings.EmbedderClient) *Embedder {
	e := NewEmbedderWithConfig(config)
	e.client = client
	return e
}

func (e *Embedder) Model() string {
	return e.config.Model
}

func (e *Embedder) init() (embeddings.Embedder, error) {
	e.once.Do(func() {
		client := e.client
		if client == nil {
			client, e.initErr = newEmbeddingClient(e.config)
			if e.initErr != nil {
				return
			}
		}
		e.embedder, e.initErr = embeddings.NewEmbedder(client, embeddings.WithBatchSize(e.config.BatchSize))
		if e.initErr != nil {
			e.initErr = fmt.Errorf("failed to initialize embedder: %w", e.initErr)
		}
	})
	return e.embedder, e.initErr
}

func newEmbeddingClient(config EmbedderConfig) (embeddings.EmbedderClient, error) {
	switch config.Provider {
	case "ollama":
		opts := []ollama.Option{ollama.WithModel(config.Model)}
		if config.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(config.BaseURL))
		}
		client, err := ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize ollama embeddings: %w", err)
		}
		return client, nil
	case "openai":
		opts := []openai.Option{
			openai.WithToken(os.Getenv(config.APIKeyEnv)),
			openai.WithEmbeddingModel(config.Model),
		}
		if config.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(config.BaseURL))
		}
		client, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize openai embeddings (is %s set?): %w", config.APIKeyEnv, err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider %q", config.Provider)
	}
}

// EmbedDocuments returns one vector per text, in order.
func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	emb, err := e.init()
	if err != nil {
		return nil, err
	}
	vectors, err := emb.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding model returned %d vectors for %d texts", len(vectors), len(texts))
	}
	return vectors, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	emb, err := e.init()
	if err != nil {
		return nil, err
	}
	vector, err := emb.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to create query embedding: %w", err)
	}
	return vector, nil
}
