package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/matsen/paperchat/internal/embedding"
	"github.com/matsen/paperchat/internal/paper"
)

// Retriever answers free-text similarity queries against a Store.
type Retriever struct {
	provider embedding.Provider
	store    Store
}

// NewRetriever creates a retriever that embeds queries with provider.
func NewRetriever(provider embedding.Provider, store Store) *Retriever {
	return &Retriever{provider: provider, store: store}
}

// Search embeds query and returns up to n hits honoring filter.
func (r *Retriever) Search(ctx context.Context, query string, n int, filter paper.Filter) ([]Hit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("empty query")
	}
	if n <= 0 {
		return nil, fmt.Errorf("n must be positive, got %d", n)
	}

	emb, err := r.provider.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	hits, err := r.store.Search(ctx, emb.Vector, n, filter)
	if err != nil {
		return nil, fmt.Errorf("searching store: %w", err)
	}
	return hits, nil
}

// Similar returns up to n papers closest to p, excluding p. Stores that keep
// vectors addressable by id answer directly; otherwise p's title and abstract
// are embedded again and searched.
func (r *Retriever) Similar(ctx context.Context, p paper.Paper, n int, filter paper.Filter) ([]Hit, error) {
	if n <= 0 {
		return nil, fmt.Errorf("n must be positive, got %d", n)
	}

	if nf, ok := r.store.(NeighborFinder); ok {
		hits, err := nf.Similar(ctx, p.ID, n, filter)
		if err != nil {
			return nil, fmt.Errorf("finding neighbors of %s: %w", p.ID, err)
		}
		return hits, nil
	}

	if strings.TrimSpace(p.Abstract) == "" {
		return nil, fmt.Errorf("%w: %s has no abstract", ErrNotIndexed, p.ID)
	}
	emb, err := r.provider.Embed(ctx, EmbedText(p.Title, p.Abstract))
	if err != nil {
		return nil, fmt.Errorf("embedding paper %s: %w", p.ID, err)
	}
	hits, err := r.store.Search(ctx, emb.Vector, n+1, filter)
	if err != nil {
		return nil, fmt.Errorf("searching store: %w", err)
	}

	out := make([]Hit, 0, n)
	for _, h := range hits {
		if h.PaperID == p.ID {
			continue
		}
		out = append(out, h)
		if len(out) == n {
			break
		}
	}
	return out, nil
}
