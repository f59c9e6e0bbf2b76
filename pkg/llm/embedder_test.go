package llm_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/newsbot/pkg/llm"
)

type stubEmbedderClient struct {
	calls [][]string
	err   error
	short bool
}

func (s *stubEmbedderClient) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	s.calls = append(s.calls, texts)
	if s.err != nil {
		return nil, s.err
	}
	vectors := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vectors = append(vectors, []float32{float32(len(text)), 1, 0})
	}
	if s.short && len(vectors) > 0 {
		vectors = vectors[:len(vectors)-1]
	}
	return vectors, nil
}

func TestNewEmbedderWithConfig(t *testing.T) {
	emb := llm.NewEmbedderWithConfig(llm.EmbedderConfig{})
	assert.Equal(t, "text-embedding-3-small", emb.Model())

	emb = llm.NewEmbedderWithConfig(llm.EmbedderConfig{Provider: "ollama", BaseURL: "http://localhost:11434"})
	assert.Equal(t, "nomic-embed-text:latest", emb.Model())
}

func TestEmbedDocumentsBatches(t *testing.T) {
	client := &stubEmbedderClient{}
	emb := llm.NewEmbedderWithClient(llm.EmbedderConfig{BatchSize: 2}, client)

	vectors, err := emb.EmbedDocuments(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, []float32{1, 1, 0}, vectors[0])
	assert.Equal(t, []float32{3, 1, 0}, vectors[2])
	assert.Len(t, client.calls, 2)
}

func TestEmbedDocumentsCountMismatch(t *testing.T) {
	emb := llm.NewEmbedderWithClient(llm.EmbedderConfig{BatchSize: 10}, &stubEmbedderClient{short: true})

	_, err := emb.EmbedDocuments(context.Background(), []string{"a", "b"})
	assert.Error(t, err)
}

func TestEmbedQuery(t *testing.T) {
	emb := llm.NewEmbedderWithClient(llm.EmbedderConfig{}, &stubEmbedderClient{})

	vector, err := emb.EmbedQuery(context.Background(), "four")
	require.NoError(t, err)
	assert.Equal(t, []float32{4, 1, 0}, vector)

	emb = llm.NewEmbedderWithClient(llm.EmbedderConfig{}, &stubEmbedderClient{err: errors.New("boom")})
	_, err = emb.EmbedQuery(context.Background(), "four")
	assert.ErrorContains(t, err, "boom")
}

func TestEmbedderMissingCredential(t *testing.T) {
	t.Setenv("NEWSBOT_TEST_MISSING_KEY", "")
	emb := llm.NewEmbedderWithConfig(llm.EmbedderConfig{Provider: "openai", APIKeyEnv: "NEWSBOT_TEST_MISSING_KEY"})

	_, err := emb.EmbedQuery(context.Background(), "hello")
	assert.Error(t, err)
}
