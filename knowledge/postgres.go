package knowledge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/hupe1980/supportflow/core"
)

// Embedder turns text into vectors. The postgres backend needs one for both
// indexing and query embedding.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

const createDocumentsTable = `
CREATE EXTENSION IF NOT EXISTS vector;
CREATE TABLE IF NOT EXISTS knowledge_chunks (
	id        UUID PRIMARY KEY,
	content   TEXT NOT NULL,
	metadata  JSONB NOT NULL DEFAULT '{}',
	embedding vector(1536) NOT NULL
);
CREATE INDEX IF NOT EXISTS knowledge_chunks_embedding_idx
	ON knowledge_chunks USING hnsw (embedding vector_cosine_ops);`

// PostgresBackend stores document chunks with pgvector embeddings and ranks
// search results by cosine similarity.
type PostgresBackend struct {
	dsn      string
	pool     *pgxpool.Pool
	embedder Embedder
}

// NewPostgresBackend creates an uninitialized postgres backend. The pool is
// opened during Initialize so a bad DSN surfaces at startup, not mid-request.
func NewPostgresBackend(dsn string, embedder Embedder) *PostgresBackend {
	return &PostgresBackend{dsn: dsn, embedder: embedder}
}

// Name implements Backend.
func (b *PostgresBackend) Name() string { return "postgres" }

// Initialize implements Backend. It opens the pool, verifies connectivity and
// ensures the schema exists.
func (b *PostgresBackend) Initialize(ctx context.Context) error {
	if b.embedder == nil {
		return fmt.Errorf("postgres backend requires an embedder")
	}

	pool, err := pgxpool.New(ctx, b.dsn)
	if err != nil {
		return fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, createDocumentsTable); err != nil {
		pool.Close()
		return fmt.Errorf("ensure schema: %w", err)
	}
	b.pool = pool
	return nil
}

// Index implements Backend. Chunks are embedded in one batch call and
// inserted inside a transaction so a partial document never becomes visible.
func (b *PostgresBackend) Index(ctx context.Context, content string, metadata map[string]any) ([]string, error) {
	if b.pool == nil {
		return nil, fmt.Errorf("postgres backend not initialized")
	}

	chunks := chunkContent(content, 1000)
	vectors, err := b.embedder.Embed(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("got %d embeddings for %d chunks", len(vectors), len(chunks))
	}

	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	ids := make([]string, len(chunks))
	for i, chunk := range chunks {
		ids[i] = core.NewID()
		_, err := tx.Exec(ctx,
			`INSERT INTO knowledge_chunks (id, content, metadata, embedding)
			 VALUES ($1, $2, $3, $4)`,
			ids[i], chunk, metaJSON, pgvector.NewVector(vectors[i]),
		)
		if err != nil {
			return nil, fmt.Errorf("insert chunk: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return ids, nil
}

// Search implements Backend. Cosine similarity already lands in [0, 1] for
// normalized embeddings, so scores need no further scaling.
func (b *PostgresBackend) Search(ctx context.Context, query string, opts SearchOptions) ([]core.RetrievedDocument, error) {
	if b.pool == nil {
		return nil, fmt.Errorf("postgres backend not initialized")
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = 5
	}

	vectors, err := b.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty query embedding")
	}
	vec := pgvector.NewVector(vectors[0])

	rows, err := b.pool.Query(ctx,
		`SELECT id, content, metadata, 1 - (embedding <=> $1) AS score
		 FROM knowledge_chunks
		 ORDER BY embedding <=> $1
		 LIMIT $2`,
		vec, topK,
	)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var docs []core.RetrievedDocument
	for rows.Next() {
		var (
			doc      core.RetrievedDocument
			metaJSON []byte
		)
		if err := rows.Scan(&doc.ID, &doc.Content, &metaJSON, &doc.Score); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		if doc.Score < opts.MinScore {
			continue
		}
		if len(metaJSON) > 0 {
			_ = json.Unmarshal(metaJSON, &doc.Metadata)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return docs, nil
}

// Close implements Backend.
func (b *PostgresBackend) Close() error {
	if b.pool != nil {
		b.pool.Close()
		b.pool = nil
	}
	return nil
}
