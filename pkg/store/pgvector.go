package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/xhad/newsbot/internal/models"
	"github.com/xhad/newsbot/internal/types"
	"github.com/xhad/newsbot/pkg/index"
)

// undefined_table
const pgUndefinedTable = "42P01"

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type VectorStoreConfig struct {
	ConnString string
	TableName  string
	BatchSize  int
}

// VectorStore mirrors the file index into a pgvector table and can serve
// retrieval from it.
type VectorStore struct {
	config VectorStoreConfig
	pool   *pgxpool.Pool
}

func NewWithConfig(ctx context.Context, config VectorStoreConfig) (*VectorStore, error) {
	if config.ConnString == "" {
		return nil, fmt.Errorf("database url is required")
	}
	if config.TableName == "" {
		config.TableName = "newsbot_chunks"
	}
	if !tableNamePattern.MatchString(config.TableName) {
		return nil, fmt.Errorf("invalid table name %q", config.TableName)
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &VectorStore{
		config: config,
		pool:   pool,
	}, nil
}

// Replace swaps the table contents for ix in a single transaction.
func (vs *VectorStore) Replace(ctx context.Context, ix *index.Index) error {
	dim := ix.Meta().Dimension

	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	// The dimension is fixed per table, so a new embedding model needs a new table.
	if _, err := tx.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", vs.config.TableName)); err != nil {
		return fmt.Errorf("failed to drop table: %w", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE %s (
			id TEXT PRIMARY KEY,
			url TEXT NOT NULL,
			chunk_index INTEGER,
			content TEXT,
			embedding vector(%d)
		)`, vs.config.TableName, dim)
	if _, err := tx.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, url, chunk_index, content, embedding)
		VALUES ($1, $2, $3, $4, $5)`,
		vs.config.TableName)

	batch := &pgx.Batch{}
	flush := func() error {
		if batch.Len() == 0 {
			return nil
		}
		err := tx.SendBatch(ctx, batch).Close()
		batch = &pgx.Batch{}
		return err
	}

	for _, r := range ix.Records() {
		batch.Queue(stmt,
			r.ID,
			sanitizeUTF8(r.Source),
			r.Index,
			sanitizeUTF8(r.Text),
			pgvector.NewVector(r.Vector),
		)
		if batch.Len() >= vs.config.BatchSize {
			if err := flush(); err != nil {
				return fmt.Errorf("failed to insert chunks: %w", err)
			}
		}
	}
	if err := flush(); err != nil {
		return fmt.Errorf("failed to insert chunks: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Search returns the limit nearest chunks by cosine distance. The table holds
// a few articles at most, so there is no approximate index and the scan is
// exact.
func (vs *VectorStore) Search(ctx context.Context, embedding []float32, limit int) ([]models.Match, error) {
	if limit <= 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT id, url, chunk_index, content, embedding <=> $1 AS distance
		FROM %s
		ORDER BY embedding <=> $1
		LIMIT $2`,
		vs.config.TableName)

	rows, err := vs.pool.Query(ctx, query, pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var matches []models.Match
	for rows.Next() {
		var m models.Match
		var distance float64
		if err := rows.Scan(&m.Chunk.ID, &m.Chunk.Source, &m.Chunk.Index, &m.Chunk.Text, &distance); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		m.Similarity = float32(1 - distance)
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	return matches, nil
}

// Len reports the number of mirrored chunks, or 0 if the count fails.
func (vs *VectorStore) Len() int {
	n, err := vs.count(context.Background())
	if err != nil {
		return 0
	}
	return n
}

func (vs *VectorStore) count(ctx context.Context) (int, error) {
	var n int
	err := vs.pool.QueryRow(ctx, fmt.Sprintf("SELECT count(*) FROM %s", vs.config.TableName)).Scan(&n)
	return n, err
}

// Open checks that the mirror holds an index and returns it as a retriever.
func (vs *VectorStore) Open(ctx context.Context) (types.Retriever, error) {
	n, err := vs.count(ctx)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUndefinedTable {
			return nil, types.ErrIndexNotFound
		}
		return nil, fmt.Errorf("failed to read mirror: %w", err)
	}
	if n == 0 {
		return nil, types.ErrIndexNotFound
	}
	return vs, nil
}

func (vs *VectorStore) Close() {
	if vs.pool != nil {
		vs.pool.Close()
	}
}

// sanitizeUTF8 drops invalid bytes and NULs, which Postgres TEXT rejects.
func sanitizeUTF8(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for i, r := range s {
			if r == utf8.RuneError {
				_, size := utf8.DecodeRuneInString(s[i:])
				if size == 1 {
					continue
				}
			}
			v = append(v, r)
		}
		return string(v)
	}
	return s
}
