// Package knowledge implements the retrieval subsystem: pluggable backends
// supporting content indexing and similarity search, selected through a
// priority chain with transparent fallback to an always-available local
// index.
package knowledge

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/hupe1980/supportflow/core"
)

// SearchOptions bound a single search call.
type SearchOptions struct {
	// TopK caps the number of returned documents.
	TopK int
	// MinScore drops hits scoring below this normalized threshold.
	MinScore float64
}

// Backend is an opaque store supporting content indexing and ranked search.
// Implementations must be safe for concurrent use after Initialize.
type Backend interface {
	// Name identifies the backend in logs and health diagnostics.
	Name() string

	// Initialize prepares the backend (connections, indexes). Called once
	// at startup; a failure makes the router substitute the local fallback.
	Initialize(ctx context.Context) error

	// Index stores content and returns the generated chunk ids.
	Index(ctx context.Context, content string, metadata map[string]any) ([]string, error)

	// Search returns ranked documents for the query.
	Search(ctx context.Context, query string, opts SearchOptions) ([]core.RetrievedDocument, error)

	// Close releases backend resources.
	Close() error
}

// chunkContent splits document content into indexable chunks on paragraph
// boundaries, merging pieces until maxLen. Retrieval quality degrades with
// very large chunks, so long paragraphs are split hard at maxLen.
func chunkContent(content string, maxLen int) []string {
	if maxLen <= 0 {
		maxLen = 1000
	}
	paragraphs := strings.Split(content, "\n\n")

	var chunks []string
	var current strings.Builder
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			chunks = append(chunks, s)
		}
		current.Reset()
	}

	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		for len(p) > maxLen {
			flush()
			// Back off to a rune boundary so a hard split never produces
			// invalid UTF-8.
			cut := maxLen
			for cut > 0 && !utf8.RuneStart(p[cut]) {
				cut--
			}
			if cut == 0 {
				cut = maxLen
			}
			chunks = append(chunks, p[:cut])
			p = p[cut:]
		}
		if current.Len() > 0 && current.Len()+len(p)+2 > maxLen {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(p)
	}
	flush()

	if len(chunks) == 0 {
		return []string{""}
	}
	return chunks
}
