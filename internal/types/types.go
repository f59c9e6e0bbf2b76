package types

import (
	"context"
	"errors"

	"github.com/xhad/newsbot/internal/models"
)

// ErrIndexNotFound is returned by a Source when nothing has been processed yet.
var ErrIndexNotFound = errors.New("vector index not found, please process URLs first")

// Core interfaces
type Fetcher interface {
	Fetch(ctx context.Context, urls []string) ([]models.Document, error)
}

type Chunker interface {
	Process(docs []models.Document) ([]models.Chunk, error)
}

type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Model() string
}

type Answerer interface {
	Answer(ctx context.Context, question string, matches []models.Match) (models.QueryResult, error)
}

type Retriever interface {
	Search(ctx context.Context, embedding []float32, limit int) ([]models.Match, error)
	Len() int
}

// Source opens the retrieval side of a persisted index.
type Source interface {
	Open(ctx context.Context) (Retriever, error)
}
