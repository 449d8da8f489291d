// Package vectorstore adapts a Postgres/pgvector index for chunk storage
// and similarity search. The store owns the embedding model handle and
// embeds queries itself; callers see only texts, metadata, and scores.
package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/docrag/api/internal/embeddings"
)

// ChunkMeta is the metadata attached to every indexed chunk.
type ChunkMeta struct {
	DocID      string
	Page       int
	ChunkIndex int
	Source     string
	FileType   string
}

// Result is one similarity search hit.
//
// Score is the cosine distance reported by pgvector's <=> operator:
// lower means more similar, in [0, 2]. It is passed through unchanged;
// result order always comes from the store, never from re-sorting scores.
type Result struct {
	Text  string
	Meta  ChunkMeta
	Score float64
}

// Store is a pgvector-backed chunk index.
type Store struct {
	pool *pgxpool.Pool
	emb  embeddings.Embedder
}

// New connects to Postgres, ensures the schema exists, and returns the
// store. dim is the embedding dimension the chunks table is created with.
func New(ctx context.Context, connString string, dim int, emb embeddings.Embedder) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{pool: pool, emb: emb}
	if err := s.initSchema(ctx, dim); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) initSchema(ctx context.Context, dim int) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunks (
			id UUID PRIMARY KEY,
			doc_id TEXT NOT NULL,
			page INT NOT NULL,
			chunk_index INT NOT NULL,
			source TEXT NOT NULL,
			file_type TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%d),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, dim),
		`CREATE INDEX IF NOT EXISTS chunks_doc_id_idx ON chunks (doc_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

// AddTexts embeds each text and inserts the chunks in one batch.
func (s *Store) AddTexts(ctx context.Context, texts []string, metas []ChunkMeta) error {
	if len(texts) != len(metas) {
		return fmt.Errorf("texts and metadatas length mismatch: %d != %d", len(texts), len(metas))
	}
	if len(texts) == 0 {
		return nil
	}

	vecs, err := s.emb.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed chunks: %w", err)
	}

	batch := &pgx.Batch{}
	for i := range texts {
		batch.Queue(
			`INSERT INTO chunks (id, doc_id, page, chunk_index, source, file_type, content, embedding)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			uuid.New(), metas[i].DocID, metas[i].Page, metas[i].ChunkIndex,
			metas[i].Source, metas[i].FileType, texts[i], pgvector.NewVector(vecs[i]),
		)
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < len(texts); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", i, err)
		}
	}
	return nil
}

// Search embeds the query and returns the k nearest chunks by cosine
// distance. A non-empty docIDs slice restricts results to those documents.
func (s *Store) Search(ctx context.Context, query string, k int, docIDs []string) ([]Result, error) {
	if k <= 0 {
		k = 5
	}

	vec, err := s.emb.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	var filter []string
	if len(docIDs) > 0 {
		filter = docIDs
	}
	rows, err := s.pool.Query(ctx,
		`SELECT doc_id, page, chunk_index, source, file_type, content, embedding <=> $1 AS score
		 FROM chunks
		 WHERE embedding IS NOT NULL AND ($2::text[] IS NULL OR doc_id = ANY($2))
		 ORDER BY embedding <=> $1
		 LIMIT $3`,
		pgvector.NewVector(vec), filter, k,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(
			&r.Meta.DocID, &r.Meta.Page, &r.Meta.ChunkIndex,
			&r.Meta.Source, &r.Meta.FileType, &r.Text, &r.Score,
		); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// DeleteDoc removes every chunk indexed under docID.
func (s *Store) DeleteDoc(ctx context.Context, docID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM chunks WHERE doc_id = $1`, docID); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}
