// Package retrieval connects embedding providers to vector stores: it defines
// the Store contract, answers similarity queries, and builds the index.
package retrieval

import (
	"context"
	"errors"

	"github.com/matsen/paperchat/internal/paper"
)

var (
	// ErrStoreUnavailable is wrapped by stores when the backing service cannot be reached.
	ErrStoreUnavailable = errors.New("vector store unavailable")

	// ErrNotIndexed is returned when a paper has no embedding to compare with.
	ErrNotIndexed = errors.New("paper not in index")
)

// Document is one paper embedding plus the metadata used for filtering.
type Document struct {
	PaperID   string
	Vector    []float32
	Session   string
	Topic     string
	EventType string
}

// DocumentFor builds a Document from a paper and its vector.
func DocumentFor(p paper.Paper, vector []float32) Document {
	return Document{
		PaperID:   p.ID,
		Vector:    vector,
		Session:   p.Session,
		Topic:     p.Topic,
		EventType: p.EventType,
	}
}

// Hit is one search result. Lower Distance means more similar.
type Hit struct {
	PaperID  string  `json:"id"`
	Distance float64 `json:"distance"`
}

// Store is a vector store holding paper embeddings.
type Store interface {
	// Upsert inserts or replaces documents keyed by PaperID.
	Upsert(ctx context.Context, docs []Document) error

	// Search returns up to n hits matching filter, most similar first.
	Search(ctx context.Context, vector []float32, n int, filter paper.Filter) ([]Hit, error)

	// Count returns the number of stored documents.
	Count(ctx context.Context) (int, error)

	// Clear removes every document.
	Clear(ctx context.Context) error
}

// NeighborFinder is implemented by stores that can rank neighbors of a stored
// paper from its own vector. The paper itself is never returned.
type NeighborFinder interface {
	Similar(ctx context.Context, paperID string, n int, filter paper.Filter) ([]Hit, error)
}

// Flusher is implemented by stores that buffer writes, such as file-backed indexes.
type Flusher interface {
	Flush() error
}
