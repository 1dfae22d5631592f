package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hupe1980/supportflow/core"
)

// RemoteOptions configure the remote HTTP backend.
type RemoteOptions struct {
	// BaseURL is the root of the retrieval service, without trailing slash.
	BaseURL string
	// APIKey, when set, is sent as a bearer token.
	APIKey string
	// Timeout bounds each HTTP call.
	Timeout time.Duration
	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
}

// RemoteBackend talks to an external retrieval service over HTTP. The wire
// contract is a POST /index accepting {content, metadata} and a POST /search
// accepting {query, top_k} returning {documents: [{id, content, score,
// metadata}]}.
type RemoteBackend struct {
	opts   RemoteOptions
	client *http.Client
}

// NewRemoteBackend creates a remote backend for the given service URL.
func NewRemoteBackend(optFns ...func(o *RemoteOptions)) *RemoteBackend {
	opts := RemoteOptions{Timeout: 10 * time.Second}
	for _, fn := range optFns {
		fn(&opts)
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	return &RemoteBackend{opts: opts, client: client}
}

// Name implements Backend.
func (b *RemoteBackend) Name() string { return "remote" }

// Initialize implements Backend. A health probe verifies the service is
// reachable before the router commits to it.
func (b *RemoteBackend) Initialize(ctx context.Context) error {
	if b.opts.BaseURL == "" {
		return fmt.Errorf("remote backend requires a base URL")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.opts.BaseURL+"/health", nil)
	if err != nil {
		return err
	}
	b.authorize(req)

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("probe retrieval service: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("retrieval service unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

type remoteIndexRequest struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type remoteIndexResponse struct {
	IDs []string `json:"ids"`
}

type remoteSearchRequest struct {
	Query    string  `json:"query"`
	TopK     int     `json:"top_k"`
	MinScore float64 `json:"min_score,omitempty"`
}

type remoteSearchResponse struct {
	Documents []struct {
		ID       string         `json:"id"`
		Content  string         `json:"content"`
		Score    float64        `json:"score"`
		Metadata map[string]any `json:"metadata"`
	} `json:"documents"`
}

// Index implements Backend.
func (b *RemoteBackend) Index(ctx context.Context, content string, metadata map[string]any) ([]string, error) {
	var out remoteIndexResponse
	err := b.post(ctx, "/index", remoteIndexRequest{Content: content, Metadata: metadata}, &out)
	if err != nil {
		return nil, err
	}
	return out.IDs, nil
}

// Search implements Backend.
func (b *RemoteBackend) Search(ctx context.Context, query string, opts SearchOptions) ([]core.RetrievedDocument, error) {
	topK := opts.TopK
	if topK <= 0 {
		topK = 5
	}

	var out remoteSearchResponse
	err := b.post(ctx, "/search", remoteSearchRequest{Query: query, TopK: topK, MinScore: opts.MinScore}, &out)
	if err != nil {
		return nil, err
	}

	docs := make([]core.RetrievedDocument, 0, len(out.Documents))
	for _, d := range out.Documents {
		if d.Score < opts.MinScore {
			continue
		}
		docs = append(docs, core.RetrievedDocument{
			ID:       d.ID,
			Content:  d.Content,
			Score:    d.Score,
			Metadata: d.Metadata,
		})
	}
	return docs, nil
}

// Close implements Backend.
func (b *RemoteBackend) Close() error { return nil }

func (b *RemoteBackend) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.opts.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	b.authorize(req)

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("call retrieval service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("retrieval service %s: status %d: %s", path, resp.StatusCode, string(data))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (b *RemoteBackend) authorize(req *http.Request) {
	if b.opts.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.opts.APIKey)
	}
}
