// Package embedding turns paper text and chat queries into vectors.
//
// Two providers are available: a local Ollama server and any
// OpenAI-compatible /embeddings endpoint. Both embed in batches when asked to
// through EmbedAll; the index builder relies on that to keep request counts
// low on large conferences.
package embedding

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNoEmbedding is returned when a response decodes but carries no vector.
	ErrNoEmbedding = errors.New("no embedding returned")

	// ErrDimensionMismatch is returned when a vector has the wrong length.
	ErrDimensionMismatch = errors.New("unexpected embedding dimensions")
)

// Embedding is a single vector produced by a Provider.
type Embedding struct {
	Vector []float32
}

// Dimensions returns the length of the vector.
func (e Embedding) Dimensions() int {
	return len(e.Vector)
}

// Provider generates embeddings from text.
type Provider interface {
	Embed(ctx context.Context, text string) (Embedding, error)

	// ModelName identifies the model; the index records it so a model change
	// is detected as staleness.
	ModelName() string

	// Dimensions is the expected vector length, or zero when unconstrained.
	Dimensions() int
}

// BatchProvider is a Provider that can embed several texts in one request.
type BatchProvider interface {
	Provider
	EmbedBatch(ctx context.Context, texts []string) ([]Embedding, error)
}

// EmbedAll embeds texts in order, in one request when p supports batching.
func EmbedAll(ctx context.Context, p Provider, texts []string) ([]Embedding, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if bp, ok := p.(BatchProvider); ok {
		out, err := bp.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(out) != len(texts) {
			return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrNoEmbedding, len(out), len(texts))
		}
		return out, nil
	}

	out := make([]Embedding, 0, len(texts))
	for _, text := range texts {
		emb, err := p.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out = append(out, emb)
	}
	return out, nil
}

// checkVectors validates a batch response against the request and the
// configured dimensions (zero accepts any length).
func checkVectors(vectors [][]float32, want, dims int) ([]Embedding, error) {
	if len(vectors) != want {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrNoEmbedding, len(vectors), want)
	}
	out := make([]Embedding, len(vectors))
	for i, v := range vectors {
		if len(v) == 0 {
			return nil, ErrNoEmbedding
		}
		if dims > 0 && len(v) != dims {
			return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v), dims)
		}
		out[i] = Embedding{Vector: v}
	}
	return out, nil
}

// first returns the single embedding of a one-text batch.
func first(out []Embedding, err error) (Embedding, error) {
	if err != nil {
		return Embedding{}, err
	}
	return out[0], nil
}
