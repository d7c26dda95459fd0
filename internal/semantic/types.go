// Package semantic provides the local, file-backed vector index.
package semantic

import "time"

// SemanticIndex holds embeddings and filter metadata for all indexed papers.
type SemanticIndex struct {
	// Version is the format version for compatibility checking.
	// Check against CurrentIndexVersion when loading.
	Version int `json:"version"`

	// Metadata about the index
	ModelName  string    `json:"model_name"` // e.g., "all-minilm:l6-v2"
	Dimensions int       `json:"dimensions"` // fixed by the first embedding when zero
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	PaperCount int       `json:"paper_count"`

	// Entries map paper IDs to their vectors and filterable metadata
	Entries map[string]Entry `json:"-"` // Not included in JSON output
}

// Entry is one indexed paper.
type Entry struct {
	Vector    []float32
	Session   string
	Topic     string
	EventType string
}

// SearchResult represents a paper found by semantic search.
type SearchResult struct {
	PaperID  string  `json:"id"`
	Distance float64 `json:"distance"` // 1 - cosine similarity
}
