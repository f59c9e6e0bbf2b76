package llm

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/prompts"
	"github.com/xhad/newsbot/internal/models"
)

const defaultSystemTemplate = "You are a research assistant for news articles. Answer strictly from the extracts you are given."

const defaultPromptTemplate = `Use the following extracts of news articles to answer the question at the end.
If the extracts do not contain the answer, say that you don't know. Do not make up an answer.
Finish with a line that starts with "SOURCES:" followed by the comma-separated sources you used.

{{.summaries}}

QUESTION: {{.question}}
FINAL ANSWER:`

// Generator is the part of llms.Model the chat engine needs.
type Generator interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// ChatConfig represents the configuration for a chat engine.
type ChatConfig struct {
	Provider        string // "openai" or "ollama"
	Model           string
	BaseURL         string
	APIKeyEnv       string
	Temperature     float64
	MaxTokens       int
	SystemTemplate  string
	ContextTemplate string
}

// ChatEngine answers questions from retrieved chunks and reports the sources it cited.
type ChatEngine struct {
	config ChatConfig
	prompt prompts.PromptTemplate

	once    sync.Once
	llm     Generator
	initErr error
}

// NewWithConfig creates a new ChatEngine with the given configuration.
func NewWithConfig(config ChatConfig) (*ChatEngine, error) {
	if config.Provider == "" {
		config.Provider = "openai"
	}
	if config.Provider != "openai" && config.Provider != "ollama" {
		return nil, fmt.Errorf("unsupported llm provider %q", config.Provider)
	}
	if config.Model == "" {
		if config.Provider == "ollama" {
			config.Model = "mistral"
		} else {
			config.Model = "gpt-4o-mini"
		}
	}
	if config.APIKeyEnv == "" {
		config.APIKeyEnv = "OPENAI_API_KEY"
	}
	if config.Temperature < 0 || config.Temperature > 2 {
		return nil, fmt.Errorf("temperature must be between 0 and 2")
	}
	if config.MaxTokens < 0 {
		return nil, fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 500
	}
	if config.SystemTemplate == "" {
		config.SystemTemplate = defaultSystemTemplate
	}
	if config.ContextTemplate == "" {
		config.ContextTemplate = defaultPromptTemplate
	}

	return &ChatEngine{
		config: config,
		prompt: prompts.NewPromptTemplate(config.ContextTemplate, []string{"summaries", "question"}),
	}, nil
}

// NewWithGenerator creates a ChatEngine that talks to an existing model.
func NewWithGenerator(config ChatConfig, llm Generator) (*ChatEngine, error) {
	ce, err := NewWithConfig(config)
	if err != nil {
		return nil, err
	}
	ce.llm = llm
	return ce, nil
}

func (ce *ChatEngine) model() (Generator, error) {
	ce.once.Do(func() {
		if ce.llm != nil {
			return
		}
		switch ce.config.Provider {
		case "ollama":
			opts := []ollama.Option{ollama.WithModel(ce.config.Model)}
			if ce.config.BaseURL != "" {
				opts = append(opts, ollama.WithServerURL(ce.config.BaseURL))
			}
			ce.llm, ce.initErr = ollama.New(opts...)
		default:
			opts := []openai.Option{
				openai.WithToken(os.Getenv(ce.config.APIKeyEnv)),
				openai.WithModel(ce.config.Model),
			}
			if ce.config.BaseURL != "" {
				opts = append(opts, openai.WithBaseURL(ce.config.BaseURL))
			}
			ce.llm, ce.initErr = openai.New(opts...)
		}
		if ce.initErr != nil {
			ce.initErr = fmt.Errorf("failed to initialize LLM: %w", ce.initErr)
		}
	})
	return ce.llm, ce.initErr
}

// Answer asks the model to answer question from the matched chunks.
func (ce *ChatEngine) Answer(ctx context.Context, question string, matches []models.Match) (models.QueryResult, error) {
	llm, err := ce.model()
	if err != nil {
		return models.QueryResult{}, err
	}

	prompt, err := ce.prompt.Format(map[string]any{
		"summaries": buildSummaries(matches),
		"question":  question,
	})
	if err != nil {
		return models.QueryResult{}, fmt.Errorf("failed to format prompt: %w", err)
	}

	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, ce.config.SystemTemplate),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}

	response, err := llm.GenerateContent(ctx, content,
		llms.WithTemperature(ce.config.Temperature),
		llms.WithMaxTokens(ce.config.MaxTokens),
	)
	if err != nil {
		return models.QueryResult{}, fmt.Errorf("chat error: %w", err)
	}
	if response == nil || len(response.Choices) == 0 || response.Choices[0] == nil {
		return models.QueryResult{}, fmt.Errorf("chat error: no response from LLM")
	}

	answer, cited := splitSources(response.Choices[0].Content)
	return models.QueryResult{
		Answer:  answer,
		Sources: resolveSources(cited, matches),
	}, nil
}

func buildSummaries(matches []models.Match) string {
	var contextBuilder strings.Builder
	for i, m := range matches {
		if i > 0 {
			contextBuilder.WriteString("\n\n")
		}
		fmt.Fprintf(&contextBuilder, "Content: %s\nSource: %s", strings.TrimSpace(m.Chunk.Text), m.Chunk.Source)
	}
	return contextBuilder.String()
}

var sourcesMarker = regexp.MustCompile(`(?i)\bSOURCES?:`)

// splitSources separates the answer text from the raw entries of its SOURCES line.
func splitSources(output string) (string, []string) {
	loc := sourcesMarker.FindStringIndex(output)
	if loc == nil {
		return strings.TrimSpace(output), nil
	}

	answer := strings.TrimSpace(output[:loc[0]])
	cited := strings.FieldsFunc(output[loc[1]:], func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\t' || r == '\r'
	})
	return answer, cited
}

// resolveSources keeps cited entries that name a retrieved source, in citation
// order. When nothing usable was cited, the retrieved sources are reported.
func resolveSources(cited []string, matches []models.Match) []string {
	known := make(map[string]bool)
	var retrieved []string
	for _, m := range matches {
		if !known[m.Chunk.Source] {
			known[m.Chunk.Source] = true
			retrieved = append(retrieved, m.Chunk.Source)
		}
	}

	var sources []string
	seen := make(map[string]bool)
	for _, entry := range cited {
		entry = strings.Trim(entry, `"'<>()[].;`)
		if known[entry] && !seen[entry] {
			seen[entry] = true
			sources = append(sources, entry)
		}
	}

	if len(sources) == 0 {
		return retrieved
	}
	return sources
}

// FormatSources renders sources as a newline-separated block for display.
func FormatSources(sources []string) string {
	if len(sources) == 0 {
		return ""
	}

	return fmt.Sprintf("Sources:\n%s", strings.Join(sources, "\n"))
}
