package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultOpenAIURL is the default OpenAI-compatible API base URL.
	DefaultOpenAIURL = "https://api.openai.com/v1"

	// DefaultOpenAIModel is the default OpenAI embedding model.
	DefaultOpenAIModel = "text-embedding-3-small"

	// DefaultOpenAIDimensions matches text-embedding-3-small.
	DefaultOpenAIDimensions = 1536

	// DefaultMaxRetries bounds retries on 429 and 5xx responses.
	DefaultMaxRetries = 5

	maxRetryDelay = 5 * time.Second
)

// OpenAIConfig configures an OpenAIProvider.
type OpenAIConfig struct {
	BaseURL    string
	APIKey     string // may be empty for local servers (LM Studio, vLLM)
	Model      string
	Dimensions int // zero accepts any size
	Timeout    time.Duration
	MaxRetries int
	HTTPClient *http.Client
}

// OpenAIProvider generates embeddings from an OpenAI-compatible /embeddings endpoint.
type OpenAIProvider struct {
	baseURL    string
	apiKey     string
	model      string
	dimensions int
	maxRetries int
	client     *http.Client
	sleep      func(context.Context, time.Duration) error
}

// NewOpenAIProvider creates a new OpenAI-compatible embedding provider.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenAIURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &OpenAIProvider{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		maxRetries: cfg.MaxRetries,
		client:     client,
		sleep:      sleepContext,
	}
}

// ModelName returns the name of the embedding model.
func (p *OpenAIProvider) ModelName() string {
	return p.model
}

// Dimensions returns the expected vector dimensions, or zero if unconstrained.
func (p *OpenAIProvider) Dimensions() int {
	return p.dimensions
}

type openAIEmbedRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed embeds a single text.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) (Embedding, error) {
	return first(p.EmbedBatch(ctx, []string{text}))
}

// EmbedBatch embeds texts in one request, retrying 429 and 5xx responses
// with exponential backoff (honoring Retry-After).
func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([]Embedding, error) {
	body, err := json.Marshal(openAIEmbedRequest{Input: texts, Model: p.model})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		out, retryAfter, err := p.embedOnce(ctx, body, len(texts))
		if err == nil {
			return out, nil
		}
		lastErr = err
		if retryAfter < 0 || attempt == p.maxRetries {
			break
		}

		delay := retryDelay(attempt)
		if retryAfter > 0 {
			delay = retryAfter
		}
		if err := p.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

// embedOnce performs one request. A negative retryAfter means the error is final;
// zero means retry with the default backoff.
func (p *OpenAIProvider) embedOnce(ctx context.Context, body []byte, want int) ([]Embedding, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, -1, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, -1, ctx.Err()
		}
		return nil, 0, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, parseRetryAfter(resp.Header.Get("Retry-After")),
			fmt.Errorf("embeddings endpoint returned status %d: %s", resp.StatusCode, formatErrorBody(resp.Body))
	}
	if resp.StatusCode >= 300 {
		return nil, -1, fmt.Errorf("embeddings endpoint returned status %d: %s", resp.StatusCode, formatErrorBody(resp.Body))
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("reading response: %w", err)
	}

	var out openAIEmbedResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, -1, fmt.Errorf("decoding response: %w", err)
	}
	sort.SliceStable(out.Data, func(i, j int) bool { return out.Data[i].Index < out.Data[j].Index })
	vectors := make([][]float32, len(out.Data))
	for i, d := range out.Data {
		vectors[i] = d.Embedding
	}
	embs, err := checkVectors(vectors, want, p.dimensions)
	if err != nil {
		return nil, -1, err
	}
	return embs, 0, nil
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// retryDelay is exponential backoff from 200ms, capped at 5s.
func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := 200 * time.Millisecond << attempt
	if d > maxRetryDelay || d <= 0 {
		d = maxRetryDelay
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
