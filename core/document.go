package core

// RetrievedDocument is a ranked knowledge-base hit returned by a search.
// Score is normalized to 0.0-1.0 where higher means more relevant.
type RetrievedDocument struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
