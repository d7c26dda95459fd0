package semantic

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/matsen/paperchat/internal/paper"
	"github.com/matsen/paperchat/internal/retrieval"
)

// Store adapts a SemanticIndex at a file path to retrieval.Store.
// Writes stay in memory until Flush.
type Store struct {
	mu   sync.RWMutex
	path string
	idx  *SemanticIndex
}

// OpenStore loads the index at path, or starts an empty one for model when
// the file does not exist yet.
func OpenStore(path, modelName string, dimensions int) (*Store, error) {
	idx, err := Load(path)
	if errors.Is(err, ErrIndexNotFound) {
		idx = NewSemanticIndex(modelName, dimensions)
	} else if err != nil {
		return nil, err
	}
	return &Store{path: path, idx: idx}, nil
}

// Index exposes the underlying index metadata.
func (s *Store) Index() *SemanticIndex {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx
}

// CheckModel reports an error when the index was built by a different model.
func (s *Store) CheckModel(modelName string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.idx.PaperCount > 0 && s.idx.ModelName != modelName {
		return fmt.Errorf("index was built with model %s, but %s is configured (rebuild with 'paperchat index build')",
			s.idx.ModelName, modelName)
	}
	return nil
}

// Upsert implements retrieval.Store.
func (s *Store) Upsert(_ context.Context, docs []retrieval.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range docs {
		err := s.idx.AddEmbedding(d.PaperID, Entry{
			Vector:    d.Vector,
			Session:   d.Session,
			Topic:     d.Topic,
			EventType: d.EventType,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Search implements retrieval.Store.
func (s *Store) Search(_ context.Context, vector []float32, n int, filter paper.Filter) ([]retrieval.Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.idx.PaperCount == 0 {
		return nil, fmt.Errorf("%w: %s is empty (run 'paperchat index build')", ErrIndexNotFound, s.path)
	}
	if len(vector) != s.idx.Dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, index has %d", len(vector), s.idx.Dimensions)
	}

	results := s.idx.Search(vector, n, filter)
	hits := make([]retrieval.Hit, len(results))
	for i, r := range results {
		hits[i] = retrieval.Hit{PaperID: r.PaperID, Distance: r.Distance}
	}
	return hits, nil
}

// Similar implements retrieval.NeighborFinder.
func (s *Store) Similar(_ context.Context, paperID string, n int, filter paper.Filter) ([]retrieval.Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.idx.HasPaper(paperID) {
		return nil, fmt.Errorf("%w: %s", retrieval.ErrNotIndexed, paperID)
	}
	results, err := s.idx.FindSimilar(paperID, n, filter)
	if err != nil {
		return nil, err
	}
	hits := make([]retrieval.Hit, len(results))
	for i, r := range results {
		hits[i] = retrieval.Hit{PaperID: r.PaperID, Distance: r.Distance}
	}
	return hits, nil
}

// Count implements retrieval.Store.
func (s *Store) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx.PaperCount, nil
}

// Clear implements retrieval.Store.
func (s *Store) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idx.Reset()
	return nil
}

// Flush writes the index to disk.
func (s *Store) Flush() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx.Save(s.path)
}
