package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/xhad/newsbot/internal/types"
	"github.com/xhad/newsbot/pkg/config"
	"github.com/xhad/newsbot/pkg/index"
	"github.com/xhad/newsbot/pkg/llm"
	"github.com/xhad/newsbot/pkg/pipeline"
	"github.com/xhad/newsbot/pkg/processor"
	"github.com/xhad/newsbot/pkg/scraper"
	"github.com/xhad/newsbot/pkg/store"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "newsbot",
	Short: "News research tool: index up to three articles and ask questions about them",
	Long: `newsbot fetches news articles, splits them into chunks, embeds them into a
local vector index and answers questions about them with an LLM, citing the
article URLs it used.

Example usage:
  newsbot process https://example.com/a https://example.com/b
  newsbot ask "What did the central bank decide?"
  newsbot serve                 # web form on :8080
  newsbot tui                   # terminal form`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if err := godotenv.Load(cfg.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Printf("could not read env file %s: %v", cfg.EnvFile, err)
		}
		cfg.MergeEnv()

		if errs := cfg.Validate(); len(errs) > 0 {
			for _, e := range errs {
				color.Yellow("config: %v", e)
			}
			return fmt.Errorf("invalid configuration (%d problems)", len(errs))
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./newsbot.yaml)")
}

// components holds everything the presentation adapters need.
type components struct {
	pipeline *pipeline.Pipeline
	files    *index.FileStore
	mirror   *store.VectorStore
}

func (c *components) Close() {
	if c.mirror != nil {
		c.mirror.Close()
	}
}

// buildComponents wires the pipeline from cfg. With fromDB the Postgres
// mirror serves retrieval instead of the index file.
func buildComponents(ctx context.Context, onFetched func(url string), fromDB bool) (*components, error) {
	files := index.NewFileStore(cfg.Index.Path)
	c := &components{files: files}

	var source types.Source = files
	if fromDB {
		mirror, err := openMirror(ctx)
		if err != nil {
			return nil, err
		}
		c.mirror = mirror
		source = mirror
	}

	chat, err := llm.NewWithConfig(llm.ChatConfig{
		Provider:    cfg.LLM.Provider,
		Model:       cfg.LLM.Model,
		BaseURL:     cfg.LLM.BaseURL,
		APIKeyEnv:   cfg.LLM.APIKeyEnv,
		Temperature: cfg.LLM.GetTemperature(),
		MaxTokens:   cfg.LLM.MaxTokens,
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize chat engine: %w", err)
	}

	c.pipeline = pipeline.New(pipeline.Config{
		Fetcher: scraper.NewWithConfig(scraper.ScraperConfig{
			RateLimit:  cfg.Scraper.RateLimit,
			Timeout:    cfg.Scraper.Timeout,
			UserAgent:  cfg.Scraper.UserAgent,
			Strict:     cfg.Scraper.Strict,
			OnProgress: onFetched,
		}),
		Chunker: processor.NewWithConfig(processor.ProcessorConfig{
			ChunkSize:  cfg.Processor.ChunkSize,
			Separators: cfg.Processor.Separators,
		}),
		Embedder: llm.NewEmbedderWithConfig(llm.EmbedderConfig{
			Provider:  cfg.Embedding.Provider,
			Model:     cfg.Embedding.Model,
			BaseURL:   cfg.Embedding.BaseURL,
			APIKeyEnv: cfg.LLM.APIKeyEnv,
			BatchSize: cfg.Embedding.BatchSize,
		}),
		Answerer: chat,
		Sink:     files,
		Source:   source,
		TopK:     cfg.Retrieval.TopK,
	})

	return c, nil
}

func openMirror(ctx context.Context) (*store.VectorStore, error) {
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("no database configured: set database.url or DATABASE_URL")
	}
	mirror, err := store.NewWithConfig(ctx, store.VectorStoreConfig{
		ConnString: cfg.Database.URL,
		TableName:  cfg.Database.TableName,
		BatchSize:  cfg.Database.BatchSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}
	return mirror, nil
}
