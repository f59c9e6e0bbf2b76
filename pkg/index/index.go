package index

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/philippgille/chromem-go"
	"github.com/xhad/newsbot/internal/models"
)

// FormatVersion is the on-disk format written by FileStore.
const FormatVersion = 1

const collectionName = "newsbot"

var errNoEmbeddingFunc = errors.New("index only accepts precomputed vectors")

// Meta describes a built index.
type Meta struct {
	Version        int       `json:"version"`
	Dimension      int       `json:"dimension"`
	EmbeddingModel string    `json:"embedding_model"`
	CreatedAt      time.Time `json:"created_at"`
	Sources        []string  `json:"sources"`
	Count          int       `json:"count"`
}

// Record is one chunk with its embedding.
type Record struct {
	ID     string    `json:"id"`
	Source string    `json:"source"`
	Index  int       `json:"index"`
	Text   string    `json:"text"`
	Vector []float32 `json:"vector"`
}

// Index is an in-memory similarity index over chunk embeddings.
type Index struct {
	meta       Meta
	records    []Record
	byID       map[string]int
	collection *chromem.Collection
}

// Build indexes chunks with their vectors. vectors[i] belongs to chunks[i].
func Build(ctx context.Context, chunks []models.Chunk, vectors [][]float32, model string) (*Index, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no chunks to index")
	}
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(chunks))
	}

	records := make([]Record, len(chunks))
	var sources []string
	seen := make(map[string]bool)
	for i, c := range chunks {
		records[i] = Record{
			ID:     c.ID,
			Source: c.Source,
			Index:  c.Index,
			Text:   c.Text,
			Vector: vectors[i],
		}
		if !seen[c.Source] {
			seen[c.Source] = true
			sources = append(sources, c.Source)
		}
	}

	meta := Meta{
		Version:        FormatVersion,
		Dimension:      len(vectors[0]),
		EmbeddingModel: model,
		CreatedAt:      time.Now().UTC(),
		Sources:        sources,
		Count:          len(records),
	}

	return New(ctx, meta, records)
}

// New builds the searchable index from already validated parts, e.g. a loaded file.
func New(ctx context.Context, meta Meta, records []Record) (*Index, error) {
	if meta.Dimension <= 0 {
		return nil, fmt.Errorf("invalid vector dimension %d", meta.Dimension)
	}

	db := chromem.NewDB()
	collection, err := db.CreateCollection(collectionName, nil, func(ctx context.Context, text string) ([]float32, error) {
		return nil, errNoEmbeddingFunc
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}

	ix := &Index{
		meta:       meta,
		records:    records,
		byID:       make(map[string]int, len(records)),
		collection: collection,
	}
	if len(records) == 0 {
		return ix, nil
	}

	ids := make([]string, len(records))
	vectors := make([][]float32, len(records))
	metadatas := make([]map[string]string, len(records))
	contents := make([]string, len(records))
	for i, r := range records {
		if len(r.Vector) != meta.Dimension {
			return nil, fmt.Errorf("chunk %s has dimension %d, expected %d", r.ID, len(r.Vector), meta.Dimension)
		}
		if _, dup := ix.byID[r.ID]; dup {
			return nil, fmt.Errorf("duplicate chunk id %s", r.ID)
		}
		ix.byID[r.ID] = i

		ids[i] = r.ID
		// chromem normalizes in place
		vectors[i] = append([]float32(nil), r.Vector...)
		metadatas[i] = map[string]string{"source": r.Source, "index": strconv.Itoa(r.Index)}
		contents[i] = r.Text
	}

	if err := collection.Add(ctx, ids, vectors, metadatas, contents); err != nil {
		return nil, fmt.Errorf("failed to add vectors: %w", err)
	}

	return ix, nil
}

func (ix *Index) Meta() Meta {
	return ix.meta
}

// Records returns the indexed chunks in insertion order.
func (ix *Index) Records() []Record {
	return ix.records
}

func (ix *Index) Sources() []string {
	return ix.meta.Sources
}

func (ix *Index) Len() int {
	return len(ix.records)
}

// Search returns up to limit chunks ordered by cosine similarity to embedding.
func (ix *Index) Search(ctx context.Context, embedding []float32, limit int) ([]models.Match, error) {
	if len(embedding) != ix.meta.Dimension {
		return nil, fmt.Errorf("query has dimension %d, index has %d", len(embedding), ix.meta.Dimension)
	}
	if limit > ix.Len() {
		limit = ix.Len()
	}
	if limit <= 0 {
		return nil, nil
	}

	results, err := ix.collection.QueryEmbedding(ctx, append([]float32(nil), embedding...), limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}

	matches := make([]models.Match, 0, len(results))
	for _, res := range results {
		i, ok := ix.byID[res.ID]
		if !ok {
			continue
		}
		r := ix.records[i]
		matches = append(matches, models.Match{
			Chunk:      models.Chunk{ID: r.ID, Source: r.Source, Index: r.Index, Text: r.Text},
			Similarity: res.Similarity,
		})
	}

	return matches, nil
}
