package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matsen/paperchat/internal/config"
)

func noSleep(context.Context, time.Duration) error { return nil }

func TestOpenAIProvider_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("path = %s, want /v1/embeddings", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		var req openAIEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if req.Model != "embed-small" || len(req.Input) != 1 || req.Input[0] != "graph neural networks" {
			t.Errorf("request = %+v", req)
		}
		w.Write([]byte(`{"data":[{"embedding":[0.1,0.2,0.3]}]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL + "/v1/", APIKey: "sk-test", Model: "embed-small"})
	emb, err := p.Embed(context.Background(), "graph neural networks")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if emb.Dimensions() != 3 {
		t.Errorf("Dimensions() = %d, want 3", emb.Dimensions())
	}
}

func TestOpenAIProvider_EmbedBatchOrdersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openAIEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if len(req.Input) != 2 {
			t.Errorf("input = %v, want 2 texts", req.Input)
		}
		w.Write([]byte(`{"data":[{"index":1,"embedding":[0,1]},{"index":0,"embedding":[1,0]}]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL, Dimensions: 2})
	out, err := EmbedAll(context.Background(), p, []string{"first", "second"})
	if err != nil {
		t.Fatalf("EmbedAll() error = %v", err)
	}
	if out[0].Vector[0] != 1 || out[1].Vector[1] != 1 {
		t.Errorf("vectors out of order: %v", out)
	}
}

func TestOpenAIProvider_RetriesThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"data":[{"embedding":[1,0]}]}`))
	}))
	defer srv.Close()

	var delays []time.Duration
	p := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL})
	p.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	if _, err := p.Embed(context.Background(), "x"); err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if len(delays) != 2 || delays[0] != time.Second {
		t.Errorf("delays = %v, want two delays of 1s from Retry-After", delays)
	}
}

func TestOpenAIProvider_FinalErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		dims      int
		wantCalls int32
		wantErr   error
	}{
		{"client error not retried", http.StatusUnauthorized, `{"error":"bad key"}`, 0, 1, nil},
		{"empty data", http.StatusOK, `{"data":[]}`, 0, 1, ErrNoEmbedding},
		{"wrong size", http.StatusOK, `{"data":[{"embedding":[1,2]}]}`, 3, 1, ErrDimensionMismatch},
		{"server error exhausts retries", http.StatusBadGateway, "", 0, 3, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			p := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL, Dimensions: tt.dims, MaxRetries: 2})
			p.sleep = noSleep

			_, err := p.Embed(context.Background(), "x")
			if err == nil {
				t.Fatal("Embed() should fail")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Embed() error = %v, want %v", err, tt.wantErr)
			}
			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
		})
	}
}

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{-1, 200 * time.Millisecond},
		{0, 200 * time.Millisecond},
		{1, 400 * time.Millisecond},
		{3, 1600 * time.Millisecond},
		{10, 5 * time.Second},
	}
	for _, tt := range tests {
		if got := retryDelay(tt.attempt); got != tt.want {
			t.Errorf("retryDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestParseRetryAfter(t *testing.T) {
	if got := parseRetryAfter("3"); got != 3*time.Second {
		t.Errorf("parseRetryAfter(3) = %v", got)
	}
	if got := parseRetryAfter("Wed, 21 Oct 2015 07:28:00 GMT"); got != 0 {
		t.Errorf("parseRetryAfter(date) = %v, want 0", got)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.EmbeddingConfig
		wantModel string
		wantDims  int
		wantErr   bool
	}{
		{"default ollama", config.EmbeddingConfig{Provider: "ollama"}, DefaultModel, DefaultDimensions, false},
		{"custom ollama model", config.EmbeddingConfig{Provider: "ollama", Model: "nomic-embed-text"}, "nomic-embed-text", 0, false},
		{"openai", config.EmbeddingConfig{Provider: "openai", Dimensions: 256}, DefaultOpenAIModel, 256, false},
		{"unknown", config.EmbeddingConfig{Provider: "cohere"}, "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.cfg, "key")
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if p.ModelName() != tt.wantModel {
				t.Errorf("ModelName() = %q, want %q", p.ModelName(), tt.wantModel)
			}
			if p.Dimensions() != tt.wantDims {
				t.Errorf("Dimensions() = %d, want %d", p.Dimensions(), tt.wantDims)
			}
		})
	}
}

func TestOpenAIProvider_ImplementsBatchProvider(t *testing.T) {
	var _ BatchProvider = (*OpenAIProvider)(nil)
}
