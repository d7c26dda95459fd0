// Package config handles repository configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents repository configuration stored in .paperchat/config.yml.
type Config struct {
	Conference  string            `yaml:"conference" json:"conference"` // e.g. "neurips"
	Year        int               `yaml:"year" json:"year"`
	Download    DownloadConfig    `yaml:"download" json:"download"`
	Embedding   EmbeddingConfig   `yaml:"embedding" json:"embedding"`
	VectorStore VectorStoreConfig `yaml:"vector_store" json:"vector_store"`
	LLM         LLMConfig         `yaml:"llm" json:"llm"`
	Chat        ChatConfig        `yaml:"chat" json:"chat"`
	Web         WebConfig         `yaml:"web" json:"web"`
}

// DownloadConfig configures the conference API client.
type DownloadConfig struct {
	BaseURL     string  `yaml:"base_url" json:"base_url"`
	RateLimit   float64 `yaml:"rate_limit" json:"rate_limit"` // requests per second
	TimeoutSecs int     `yaml:"timeout_secs" json:"timeout_secs"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider" json:"provider"` // ollama or openai
	BaseURL    string `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	Model      string `yaml:"model,omitempty" json:"model,omitempty"`
	Dimensions int    `yaml:"dimensions,omitempty" json:"dimensions,omitempty"`
	APIKeyEnv  string `yaml:"api_key_env,omitempty" json:"api_key_env,omitempty"`
}

// VectorStoreConfig selects and configures the vector store.
type VectorStoreConfig struct {
	Type   string       `yaml:"type" json:"type"` // local or qdrant
	Qdrant QdrantConfig `yaml:"qdrant,omitempty" json:"qdrant,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant server.
type QdrantConfig struct {
	URL         string `yaml:"url,omitempty" json:"url,omitempty"`
	APIKey      string `yaml:"api_key,omitempty" json:"-"`
	Collection  string `yaml:"collection,omitempty" json:"collection,omitempty"`
	TimeoutSecs int    `yaml:"timeout_secs,omitempty" json:"timeout_secs,omitempty"`
}

// LLMConfig configures the OpenAI-compatible inference endpoint.
type LLMConfig struct {
	BaseURL     string  `yaml:"base_url" json:"base_url"`
	Model       string  `yaml:"model" json:"model"`
	APIKeyEnv   string  `yaml:"api_key_env,omitempty" json:"api_key_env,omitempty"`
	Temperature float64 `yaml:"temperature" json:"temperature"`
	MaxTokens   int     `yaml:"max_tokens" json:"max_tokens"`
	TimeoutSecs int     `yaml:"timeout_secs" json:"timeout_secs"`
}

// ChatConfig tunes the conversational retrieval loop.
type ChatConfig struct {
	NResults         int     `yaml:"n_results" json:"n_results"`
	MaxResults       int     `yaml:"max_results" json:"max_results"`
	HistoryWindow    int     `yaml:"history_window" json:"history_window"`
	MaxAbstractChars int     `yaml:"max_abstract_chars" json:"max_abstract_chars"`
	Rewriter         string  `yaml:"rewriter" json:"rewriter"` // heuristic, llm or none
	ReuseThreshold   float64 `yaml:"reuse_threshold" json:"reuse_threshold"`
	SystemPrompt     string  `yaml:"system_prompt,omitempty" json:"system_prompt,omitempty"`
}

// WebConfig configures the web UI server.
type WebConfig struct {
	Addr           string `yaml:"addr" json:"addr"`
	SessionTTLMins int    `yaml:"session_ttl_mins" json:"session_ttl_mins"`
}

const (
	PaperchatDir  = ".paperchat"
	ConfigFile    = "config.yml"
	PapersFile    = "papers.jsonl"
	CacheDir      = "cache"
	DownloadsDir  = "downloads"
	ExportsDir    = "exports"
	DBFile        = "papers.db"
	IndexFileName = "embeddings.gob"
)

// Defaults for zero-valued configuration fields.
const (
	DefaultConference       = "neurips"
	DefaultYear             = 2025
	DefaultDownloadBaseURL  = "https://neurips.cc/static/virtual/data"
	DefaultRateLimit        = 2.0
	DefaultDownloadTimeout  = 60
	DefaultEmbeddingProv    = "ollama"
	DefaultVectorStore      = "local"
	DefaultQdrantURL        = "http://localhost:6333"
	DefaultQdrantCollection = "papers"
	DefaultLLMBaseURL       = "http://localhost:1234/v1"
	DefaultLLMModel         = "local-model"
	DefaultTemperature      = 0.7
	DefaultMaxTokens        = 1000
	DefaultLLMTimeout       = 120
	DefaultNResults         = 5
	DefaultMaxResults       = 20
	DefaultHistoryWindow    = 6
	DefaultMaxAbstractChars = 800
	DefaultRewriter         = "heuristic"
	DefaultReuseThreshold   = 0.9
	DefaultWebAddr          = "127.0.0.1:8080"
	DefaultSessionTTLMins   = 60
)

// Valid option values, checked by Validate.
var (
	ValidEmbeddingProviders = []string{"ollama", "openai"}
	ValidVectorStores       = []string{"local", "qdrant"}
	ValidRewriters          = []string{"heuristic", "llm", "none"}
)

// PaperchatPath returns the path to the .paperchat directory from a root path.
func PaperchatPath(root string) string {
	return filepath.Join(root, PaperchatDir)
}

// ConfigPath returns the path to config.yml from a root path.
func ConfigPath(root string) string {
	return filepath.Join(root, PaperchatDir, ConfigFile)
}

// PapersPath returns the path to papers.jsonl, the source of truth for paper records.
func PapersPath(root string) string {
	return filepath.Join(root, PaperchatDir, PapersFile)
}

// CachePath returns the path to the cache directory from a root path.
func CachePath(root string) string {
	return filepath.Join(root, PaperchatDir, CacheDir)
}

// DBPath returns the path to papers.db from a root path.
func DBPath(root string) string {
	return filepath.Join(root, PaperchatDir, CacheDir, DBFile)
}

// IndexPath returns the path to the local embeddings index from a root path.
func IndexPath(root string) string {
	return filepath.Join(root, PaperchatDir, CacheDir, IndexFileName)
}

// DownloadsPath returns the path to the raw download cache from a root path.
func DownloadsPath(root string) string {
	return filepath.Join(root, PaperchatDir, CacheDir, DownloadsDir)
}

// ExportsPath returns the default directory for conversation exports.
func ExportsPath(root string) string {
	return filepath.Join(root, PaperchatDir, ExportsDir)
}

// IsRepository checks if the given path contains a paperchat repository.
func IsRepository(root string) bool {
	info, err := os.Stat(PaperchatPath(root))
	return err == nil && info.IsDir()
}

// FindRepository walks up from the given path to find a paperchat repository.
// Returns the repository root path or an error if not found.
func FindRepository(start string) (string, error) {
	abs, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}

	for {
		if IsRepository(abs) {
			return abs, nil
		}

		parent := filepath.Dir(abs)
		if parent == abs {
			return "", fmt.Errorf("not in a paperchat repository (no .paperchat directory found)")
		}
		abs = parent
	}
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.LLM.Temperature = DefaultTemperature
	cfg.ApplyDefaults()
	return cfg
}

// Load reads configuration from the repository at the given root.
// A missing config file yields the defaults.
func Load(root string) (*Config, error) {
	data, err := os.ReadFile(ConfigPath(root))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	// 0 is a valid temperature, so only a missing key takes the default
	var present struct {
		LLM struct {
			Temperature *float64 `yaml:"temperature"`
		} `yaml:"llm"`
	}
	if err := yaml.Unmarshal(data, &present); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if present.LLM.Temperature == nil {
		cfg.LLM.Temperature = DefaultTemperature
	}
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes configuration to the repository at the given root.
func (c *Config) Save(root string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(ConfigPath(root), data, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// ApplyDefaults fills zero-valued fields with defaults. LLM.Temperature is
// left alone since zero is meaningful; Default and Load set it.
func (c *Config) ApplyDefaults() {
	if c.Conference == "" {
		c.Conference = DefaultConference
	}
	if c.Year == 0 {
		c.Year = DefaultYear
	}

	d := &c.Download
	if d.BaseURL == "" {
		d.BaseURL = DefaultDownloadBaseURL
	}
	if d.RateLimit == 0 {
		d.RateLimit = DefaultRateLimit
	}
	if d.TimeoutSecs == 0 {
		d.TimeoutSecs = DefaultDownloadTimeout
	}

	if c.Embedding.Provider == "" {
		c.Embedding.Provider = DefaultEmbeddingProv
	}

	v := &c.VectorStore
	if v.Type == "" {
		v.Type = DefaultVectorStore
	}
	if v.Type == "qdrant" {
		if v.Qdrant.URL == "" {
			v.Qdrant.URL = DefaultQdrantURL
		}
		if v.Qdrant.Collection == "" {
			v.Qdrant.Collection = DefaultQdrantCollection
		}
	}

	l := &c.LLM
	if l.BaseURL == "" {
		l.BaseURL = DefaultLLMBaseURL
	}
	if l.Model == "" {
		l.Model = DefaultLLMModel
	}
	if l.MaxTokens == 0 {
		l.MaxTokens = DefaultMaxTokens
	}
	if l.TimeoutSecs == 0 {
		l.TimeoutSecs = DefaultLLMTimeout
	}

	ch := &c.Chat
	if ch.NResults == 0 {
		ch.NResults = DefaultNResults
	}
	if ch.MaxResults == 0 {
		ch.MaxResults = DefaultMaxResults
	}
	if ch.HistoryWindow == 0 {
		ch.HistoryWindow = DefaultHistoryWindow
	}
	if ch.MaxAbstractChars == 0 {
		ch.MaxAbstractChars = DefaultMaxAbstractChars
	}
	if ch.Rewriter == "" {
		ch.Rewriter = DefaultRewriter
	}
	if ch.ReuseThreshold == 0 {
		ch.ReuseThreshold = DefaultReuseThreshold
	}

	if c.Web.Addr == "" {
		c.Web.Addr = DefaultWebAddr
	}
	if c.Web.SessionTTLMins == 0 {
		c.Web.SessionTTLMins = DefaultSessionTTLMins
	}
}

// Validate checks option names and numeric ranges.
func (c *Config) Validate() error {
	if !contains(ValidEmbeddingProviders, c.Embedding.Provider) {
		return fmt.Errorf("invalid embedding.provider: %s (valid: %v)", c.Embedding.Provider, ValidEmbeddingProviders)
	}
	if !contains(ValidVectorStores, c.VectorStore.Type) {
		return fmt.Errorf("invalid vector_store.type: %s (valid: %v)", c.VectorStore.Type, ValidVectorStores)
	}
	if !contains(ValidRewriters, c.Chat.Rewriter) {
		return fmt.Errorf("invalid chat.rewriter: %s (valid: %v)", c.Chat.Rewriter, ValidRewriters)
	}
	if c.Year < 1987 {
		return fmt.Errorf("invalid year: %d", c.Year)
	}
	if c.Chat.NResults < 1 {
		return fmt.Errorf("chat.n_results must be positive, got %d", c.Chat.NResults)
	}
	if c.Chat.MaxResults < c.Chat.NResults {
		return fmt.Errorf("chat.max_results (%d) must be >= chat.n_results (%d)", c.Chat.MaxResults, c.Chat.NResults)
	}
	if c.Chat.ReuseThreshold < 0 || c.Chat.ReuseThreshold > 1 {
		return fmt.Errorf("chat.reuse_threshold must be within [0, 1], got %v", c.Chat.ReuseThreshold)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be within [0, 2], got %v", c.LLM.Temperature)
	}
	if c.Download.RateLimit < 0 {
		return fmt.Errorf("download.rate_limit must not be negative, got %v", c.Download.RateLimit)
	}
	return nil
}

// LLMTimeout returns the inference timeout as a duration.
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSecs) * time.Second
}

// DownloadTimeout returns the download timeout as a duration.
func (c *Config) DownloadTimeout() time.Duration {
	return time.Duration(c.Download.TimeoutSecs) * time.Second
}

// SessionTTL returns the web session idle expiry as a duration.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Web.SessionTTLMins) * time.Minute
}

// ExpandPath expands ~ to the user's home directory.
// Returns the original path unchanged if it doesn't start with ~.
func ExpandPath(path string) string {
	if len(path) == 0 || path[0] != '~' {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path // Return original if we can't get home directory
	}

	return filepath.Join(home, path[1:])
}

func contains(values []string, v string) bool {
	for _, valid := range values {
		if v == valid {
			return true
		}
	}
	return false
}
