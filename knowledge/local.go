package knowledge

import (
	"context"
	"fmt"
	"sync"

	"github.com/blevesearch/bleve/v2"

	"github.com/hupe1980/supportflow/core"
)

// localDocument is the shape indexed into bleve. Content and metadata fields
// are stored so search hits can be materialized without a side store.
type localDocument struct {
	Content string `json:"content"`
	Title   string `json:"title"`
	Source  string `json:"source"`
}

// LocalBackend is an in-memory full-text index backed by bleve. It needs no
// external services, which makes it the fallback of last resort: retrieval
// stays available even when every configured backend is down.
type LocalBackend struct {
	mu    sync.RWMutex
	index bleve.Index
}

// NewLocalBackend creates an uninitialized local backend.
func NewLocalBackend() *LocalBackend {
	return &LocalBackend{}
}

// Name implements Backend.
func (b *LocalBackend) Name() string { return "local" }

// Initialize implements Backend. It builds a memory-only bleve index.
func (b *LocalBackend) Initialize(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.index != nil {
		return nil
	}

	mapping := bleve.NewIndexMapping()
	index, err := bleve.NewMemOnly(mapping)
	if err != nil {
		return fmt.Errorf("create bleve index: %w", err)
	}
	b.index = index
	return nil
}

// Index implements Backend. Content is chunked on paragraph boundaries and
// each chunk indexed as its own document.
func (b *LocalBackend) Index(ctx context.Context, content string, metadata map[string]any) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.index == nil {
		return nil, fmt.Errorf("local backend not initialized")
	}

	title, _ := metadata["title"].(string)
	source, _ := metadata["source"].(string)

	chunks := chunkContent(content, 1000)
	ids := make([]string, 0, len(chunks))
	batch := b.index.NewBatch()
	for _, chunk := range chunks {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		id := core.NewID()
		doc := localDocument{Content: chunk, Title: title, Source: source}
		if err := batch.Index(id, doc); err != nil {
			return nil, fmt.Errorf("index chunk: %w", err)
		}
		ids = append(ids, id)
	}
	if err := b.index.Batch(batch); err != nil {
		return nil, fmt.Errorf("commit batch: %w", err)
	}
	return ids, nil
}

// Search implements Backend. Relevance scores are normalized against the best
// hit so thresholds behave consistently across backends.
func (b *LocalBackend) Search(ctx context.Context, query string, opts SearchOptions) ([]core.RetrievedDocument, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.index == nil {
		return nil, fmt.Errorf("local backend not initialized")
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = 5
	}

	matchQuery := bleve.NewMatchQuery(query)
	req := bleve.NewSearchRequestOptions(matchQuery, topK, 0, false)
	req.Fields = []string{"*"}

	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("bleve search: %w", err)
	}

	docs := make([]core.RetrievedDocument, 0, len(res.Hits))
	for _, hit := range res.Hits {
		score := hit.Score
		if res.MaxScore > 0 {
			score = hit.Score / res.MaxScore
		}
		if score < opts.MinScore {
			continue
		}

		content, _ := hit.Fields["content"].(string)
		metadata := map[string]any{}
		if title, ok := hit.Fields["title"].(string); ok && title != "" {
			metadata["title"] = title
		}
		if source, ok := hit.Fields["source"].(string); ok && source != "" {
			metadata["source"] = source
		}
		docs = append(docs, core.RetrievedDocument{
			ID:       hit.ID,
			Content:  content,
			Score:    score,
			Metadata: metadata,
		})
	}
	return docs, nil
}

// Close implements Backend.
func (b *LocalBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.index == nil {
		return nil
	}
	err := b.index.Close()
	b.index = nil
	return err
}
