package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewOllamaProvider_Options(t *testing.T) {
	tests := []struct {
		name      string
		opts      []OllamaOption
		wantURL   string
		wantModel string
		wantDims  int
	}{
		{"defaults", nil, DefaultOllamaURL, DefaultModel, DefaultDimensions},
		{
			name:      "custom",
			opts:      []OllamaOption{WithBaseURL("http://gpu-box:11434/"), WithModel("nomic-embed-text"), WithDimensions(768)},
			wantURL:   "http://gpu-box:11434",
			wantModel: "nomic-embed-text",
			wantDims:  768,
		},
		{"unconstrained size", []OllamaOption{WithDimensions(0)}, DefaultOllamaURL, DefaultModel, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewOllamaProvider(tt.opts...)
			if p.baseURL != tt.wantURL {
				t.Errorf("baseURL = %s, want %s", p.baseURL, tt.wantURL)
			}
			if p.ModelName() != tt.wantModel {
				t.Errorf("ModelName() = %s, want %s", p.ModelName(), tt.wantModel)
			}
			if p.Dimensions() != tt.wantDims {
				t.Errorf("Dimensions() = %d, want %d", p.Dimensions(), tt.wantDims)
			}
		})
	}

	p := NewOllamaProvider(WithTimeout(time.Minute))
	if p.client.Timeout != time.Minute {
		t.Errorf("timeout = %v, want 1m", p.client.Timeout)
	}
}

func TestFormatErrorBody(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"model not found\n", "model not found"},
		{"", ""},
		{`{"error": "not found"}`, `{"error": "not found"}`},
		{strings.Repeat("x", 5000), strings.Repeat("x", 4096)},
	}

	for _, tt := range tests {
		if got := formatErrorBody(strings.NewReader(tt.input)); got != tt.expected {
			t.Errorf("formatErrorBody(%.20q) = %.20q, want %.20q", tt.input, got, tt.expected)
		}
	}
}

// ollamaServer fakes /api/embed (2-d vectors from text length) and /api/tags.
func ollamaServer(t *testing.T, models ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case apiPathEmbed:
			var req ollamaEmbedRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if !req.Truncate {
				t.Error("request should ask Ollama to truncate long inputs")
			}
			var resp ollamaEmbedResponse
			for _, in := range req.Input {
				resp.Embeddings = append(resp.Embeddings, []float32{float32(len(in)), 1})
			}
			json.NewEncoder(w).Encode(resp)
		case apiPathTags:
			var resp ollamaTagsResponse
			for _, m := range models {
				resp.Models = append(resp.Models, struct {
					Name string `json:"name"`
				}{m})
			}
			json.NewEncoder(w).Encode(resp)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOllamaProvider_Embed(t *testing.T) {
	srv := ollamaServer(t, "tiny:latest")
	ctx := context.Background()

	p := NewOllamaProvider(WithBaseURL(srv.URL), WithModel("tiny"), WithDimensions(2))
	emb, err := p.Embed(ctx, "hello")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if emb.Dimensions() != 2 || emb.Vector[0] != 5 {
		t.Errorf("Embed() = %v", emb.Vector)
	}

	out, err := EmbedAll(ctx, p, []string{"a", "abc"})
	if err != nil {
		t.Fatalf("EmbedAll() error = %v", err)
	}
	if len(out) != 2 || out[1].Vector[0] != 3 {
		t.Errorf("EmbedAll() = %v", out)
	}

	wrongSize := NewOllamaProvider(WithBaseURL(srv.URL), WithDimensions(384))
	if _, err := wrongSize.Embed(ctx, "hello"); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Embed() error = %v, want ErrDimensionMismatch", err)
	}
}

func TestOllamaProvider_HasModel(t *testing.T) {
	srv := ollamaServer(t, "tiny:latest", "all-minilm:l6-v2")
	ctx := context.Background()

	tests := []struct {
		model string
		want  bool
	}{
		{"tiny", true},
		{"tiny:latest", true},
		{"all-minilm:l6-v2", true},
		{"all-minilm", false},
		{"nomic-embed-text", false},
	}
	for _, tt := range tests {
		p := NewOllamaProvider(WithBaseURL(srv.URL), WithModel(tt.model))
		got, err := p.HasModel(ctx)
		if err != nil {
			t.Fatalf("HasModel(%s) error = %v", tt.model, err)
		}
		if got != tt.want {
			t.Errorf("HasModel(%s) = %v, want %v", tt.model, got, tt.want)
		}
	}
}

func TestOllamaProvider_IsAvailable(t *testing.T) {
	srv := ollamaServer(t)
	if err := NewOllamaProvider(WithBaseURL(srv.URL)).IsAvailable(context.Background()); err != nil {
		t.Errorf("IsAvailable() error = %v", err)
	}

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()
	if err := NewOllamaProvider(WithBaseURL(down.URL)).IsAvailable(context.Background()); err == nil {
		t.Error("IsAvailable() should fail when the server errors")
	}
}

func TestOllamaProvider_ImplementsBatchProvider(t *testing.T) {
	var _ BatchProvider = (*OllamaProvider)(nil)
}
