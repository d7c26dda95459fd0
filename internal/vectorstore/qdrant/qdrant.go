// Package qdrant is a minimal REST client storing paper embeddings in Qdrant.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/matsen/paperchat/internal/paper"
	"github.com/matsen/paperchat/internal/retrieval"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 15 * time.Second

// pointNamespace derives deterministic point ids from paper ids.
var pointNamespace = uuid.MustParse("6f2c0a6e-3d4b-5c8e-9a71-2b0f4e8d1c55")

// errCollectionMissing marks a 404 on the collection itself.
var errCollectionMissing = errors.New("collection does not exist")

// Config configures a Store.
type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Store implements retrieval.Store on a Qdrant collection using cosine distance.
// The collection is created on first upsert with the size of the first vector.
type Store struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client
}

// NewStore creates a Qdrant-backed store.
func NewStore(cfg Config) *Store {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &Store{
		url:        strings.TrimSuffix(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     client,
	}
}

// PointID returns the Qdrant point id for a paper id.
func PointID(paperID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(paperID)).String()
}

func (s *Store) collectionURL() string {
	return fmt.Sprintf("%s/collections/%s", s.url, s.collection)
}

// ensureCollection creates the collection if it does not exist.
func (s *Store) ensureCollection(ctx context.Context, dimension int) error {
	err := s.do(ctx, http.MethodGet, s.collectionURL(), nil, nil)
	if err == nil {
		return nil
	}
	if !errors.Is(err, errCollectionMissing) {
		return err
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	return s.do(ctx, http.MethodPut, s.collectionURL(), body, nil)
}

// Upsert implements retrieval.Store.
func (s *Store) Upsert(ctx context.Context, docs []retrieval.Document) error {
	if len(docs) == 0 {
		return nil
	}
	if err := s.ensureCollection(ctx, len(docs[0].Vector)); err != nil {
		return err
	}

	points := make([]map[string]any, len(docs))
	for i, d := range docs {
		points[i] = map[string]any{
			"id":     PointID(d.PaperID),
			"vector": d.Vector,
			"payload": map[string]any{
				"paper_id":      d.PaperID,
				"session":       d.Session,
				"topic":         d.Topic,
				"eventtype":     d.EventType,
				"session_key":   strings.ToLower(d.Session),
				"topic_key":     strings.ToLower(d.Topic),
				"eventtype_key": strings.ToLower(d.EventType),
			},
		}
	}
	body := map[string]any{"points": points}
	return s.do(ctx, http.MethodPut, s.collectionURL()+"/points?wait=true", body, nil)
}

// buildFilter renders a paper.Filter as a Qdrant filter: one must condition
// per constrained dimension, each matching any of its lowercased values.
func buildFilter(filter paper.Filter) map[string]any {
	filter = filter.Normalize()
	var must []map[string]any
	for _, dim := range []struct {
		key    string
		values []string
	}{
		{"session_key", filter.Sessions},
		{"topic_key", filter.Topics},
		{"eventtype_key", filter.EventTypes},
	} {
		if len(dim.values) == 0 {
			continue
		}
		lowered := make([]string, len(dim.values))
		for i, v := range dim.values {
			lowered[i] = strings.ToLower(v)
		}
		must = append(must, map[string]any{
			"key":   dim.key,
			"match": map[string]any{"any": lowered},
		})
	}
	if len(must) == 0 {
		return nil
	}
	return map[string]any{"must": must}
}

type searchResponse struct {
	Result []struct {
		Score   float64        `json:"score"`
		Payload map[string]any `json:"payload"`
	} `json:"result"`
}

// Search implements retrieval.Store. Qdrant reports cosine similarity as the
// score; it is converted to distance 1 - score.
func (s *Store) Search(ctx context.Context, vector []float32, n int, filter paper.Filter) ([]retrieval.Hit, error) {
	req := map[string]any{
		"vector":       vector,
		"limit":        n,
		"with_payload": true,
	}
	if f := buildFilter(filter); f != nil {
		req["filter"] = f
	}

	var resp searchResponse
	err := s.do(ctx, http.MethodPost, s.collectionURL()+"/points/search", req, &resp)
	if errors.Is(err, errCollectionMissing) {
		return nil, fmt.Errorf("qdrant collection %s does not exist (run 'paperchat index build')", s.collection)
	}
	if err != nil {
		return nil, err
	}

	hits := make([]retrieval.Hit, 0, len(resp.Result))
	for _, r := range resp.Result {
		id, ok := r.Payload["paper_id"].(string)
		if !ok || id == "" {
			return nil, fmt.Errorf("qdrant search result without paper_id payload")
		}
		hits = append(hits, retrieval.Hit{PaperID: id, Distance: 1 - r.Score})
	}
	return hits, nil
}

// Count implements retrieval.Store. A missing collection counts as empty.
func (s *Store) Count(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	err := s.do(ctx, http.MethodPost, s.collectionURL()+"/points/count", map[string]any{"exact": true}, &resp)
	if errors.Is(err, errCollectionMissing) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

// Clear implements retrieval.Store by dropping the collection.
func (s *Store) Clear(ctx context.Context) error {
	err := s.do(ctx, http.MethodDelete, s.collectionURL(), nil, nil)
	if errors.Is(err, errCollectionMissing) {
		return nil
	}
	return err
}

// Ping checks that the Qdrant server is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.do(ctx, http.MethodGet, s.url+"/collections", nil, nil)
}

func (s *Store) do(ctx context.Context, method, url string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding qdrant request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("creating qdrant request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", retrieval.ErrStoreUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errCollectionMissing
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: qdrant %s returned %s", retrieval.ErrStoreUnavailable, method, resp.Status)
	}
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("qdrant %s %s failed: %s: %s", method, url, resp.Status, strings.TrimSpace(string(msg)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding qdrant response: %w", err)
		}
	}
	return nil
}
