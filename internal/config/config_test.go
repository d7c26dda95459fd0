package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPathFunctions(t *testing.T) {
	root := "/test/repo"

	tests := []struct {
		name string
		fn   func(string) string
		want string
	}{
		{"PaperchatPath", PaperchatPath, "/test/repo/.paperchat"},
		{"ConfigPath", ConfigPath, "/test/repo/.paperchat/config.yml"},
		{"PapersPath", PapersPath, "/test/repo/.paperchat/papers.jsonl"},
		{"CachePath", CachePath, "/test/repo/.paperchat/cache"},
		{"DBPath", DBPath, "/test/repo/.paperchat/cache/papers.db"},
		{"IndexPath", IndexPath, "/test/repo/.paperchat/cache/embeddings.gob"},
		{"DownloadsPath", DownloadsPath, "/test/repo/.paperchat/cache/downloads"},
		{"ExportsPath", ExportsPath, "/test/repo/.paperchat/exports"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.fn(root)
			if got != tt.want {
				t.Errorf("%s(%q) = %q, want %q", tt.name, root, got, tt.want)
			}
		})
	}
}

func TestIsRepository(t *testing.T) {
	tmpDir := t.TempDir()

	if IsRepository(tmpDir) {
		t.Error("IsRepository() = true for non-repo directory")
	}

	if err := os.Mkdir(filepath.Join(tmpDir, PaperchatDir), 0755); err != nil {
		t.Fatalf("Failed to create .paperchat: %v", err)
	}

	if !IsRepository(tmpDir) {
		t.Error("IsRepository() = false for repo directory")
	}
}

func TestIsRepository_FileNotDir(t *testing.T) {
	tmpDir := t.TempDir()

	if err := os.WriteFile(filepath.Join(tmpDir, PaperchatDir), []byte("not a dir"), 0644); err != nil {
		t.Fatalf("Failed to create .paperchat file: %v", err)
	}

	if IsRepository(tmpDir) {
		t.Error("IsRepository() = true when .paperchat is a file")
	}
}

func TestFindRepository(t *testing.T) {
	tmpDir := t.TempDir()
	repoDir := filepath.Join(tmpDir, "repo")
	nestedDir := filepath.Join(repoDir, "notes", "2025")

	if err := os.MkdirAll(nestedDir, 0755); err != nil {
		t.Fatalf("Failed to create nested dirs: %v", err)
	}
	if err := os.Mkdir(filepath.Join(repoDir, PaperchatDir), 0755); err != nil {
		t.Fatalf("Failed to create .paperchat: %v", err)
	}

	found, err := FindRepository(nestedDir)
	if err != nil {
		t.Fatalf("FindRepository() error = %v", err)
	}
	if found != repoDir {
		t.Errorf("FindRepository() = %q, want %q", found, repoDir)
	}

	if _, err := FindRepository(tmpDir); err == nil {
		t.Error("FindRepository() should return error when no repo found")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Conference != DefaultConference {
		t.Errorf("Conference = %q, want %q", cfg.Conference, DefaultConference)
	}
	if cfg.Chat.NResults != DefaultNResults {
		t.Errorf("Chat.NResults = %d, want %d", cfg.Chat.NResults, DefaultNResults)
	}
	if cfg.Chat.Rewriter != DefaultRewriter {
		t.Errorf("Chat.Rewriter = %q, want %q", cfg.Chat.Rewriter, DefaultRewriter)
	}
	if cfg.VectorStore.Type != "local" {
		t.Errorf("VectorStore.Type = %q, want local", cfg.VectorStore.Type)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should validate, got %v", err)
	}
}

func TestApplyDefaults_QdrantOnlyWhenSelected(t *testing.T) {
	cfg := &Config{VectorStore: VectorStoreConfig{Type: "qdrant"}}
	cfg.ApplyDefaults()

	if cfg.VectorStore.Qdrant.URL != DefaultQdrantURL {
		t.Errorf("Qdrant.URL = %q, want %q", cfg.VectorStore.Qdrant.URL, DefaultQdrantURL)
	}
	if cfg.VectorStore.Qdrant.Collection != DefaultQdrantCollection {
		t.Errorf("Qdrant.Collection = %q, want %q", cfg.VectorStore.Qdrant.Collection, DefaultQdrantCollection)
	}

	local := Default()
	if local.VectorStore.Qdrant.URL != "" {
		t.Errorf("Qdrant.URL = %q for local store, want empty", local.VectorStore.Qdrant.URL)
	}
}

func TestConfig_SaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.Mkdir(filepath.Join(tmpDir, PaperchatDir), 0755); err != nil {
		t.Fatalf("Failed to create .paperchat: %v", err)
	}

	cfg := Default()
	cfg.Conference = "iclr"
	cfg.Year = 2024
	cfg.LLM.Model = "qwen2.5-7b-instruct"
	cfg.Chat.NResults = 8
	if err := cfg.Save(tmpDir); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if loaded.Conference != "iclr" {
		t.Errorf("Conference = %q, want iclr", loaded.Conference)
	}
	if loaded.Year != 2024 {
		t.Errorf("Year = %d, want 2024", loaded.Year)
	}
	if loaded.LLM.Model != "qwen2.5-7b-instruct" {
		t.Errorf("LLM.Model = %q, want qwen2.5-7b-instruct", loaded.LLM.Model)
	}
	if loaded.Chat.NResults != 8 {
		t.Errorf("Chat.NResults = %d, want 8", loaded.Chat.NResults)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LLM.BaseURL != DefaultLLMBaseURL {
		t.Errorf("LLM.BaseURL = %q, want %q", cfg.LLM.BaseURL, DefaultLLMBaseURL)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.Mkdir(filepath.Join(tmpDir, PaperchatDir), 0755); err != nil {
		t.Fatalf("Failed to create .paperchat: %v", err)
	}
	if err := os.WriteFile(ConfigPath(tmpDir), []byte("chat: [unclosed"), 0644); err != nil {
		t.Fatalf("Failed to write invalid config: %v", err)
	}

	if _, err := Load(tmpDir); err == nil {
		t.Error("Load() should return error for invalid YAML")
	}
}

func TestLoad_PartialFile(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.Mkdir(filepath.Join(tmpDir, PaperchatDir), 0755); err != nil {
		t.Fatalf("Failed to create .paperchat: %v", err)
	}
	data := "year: 2023\nchat:\n  rewriter: llm\n"
	if err := os.WriteFile(ConfigPath(tmpDir), []byte(data), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Year != 2023 {
		t.Errorf("Year = %d, want 2023", cfg.Year)
	}
	if cfg.Chat.Rewriter != "llm" {
		t.Errorf("Chat.Rewriter = %q, want llm", cfg.Chat.Rewriter)
	}
	if cfg.Chat.MaxResults != DefaultMaxResults {
		t.Errorf("Chat.MaxResults = %d, want default %d", cfg.Chat.MaxResults, DefaultMaxResults)
	}
}

func TestLoad_Temperature(t *testing.T) {
	tests := []struct {
		name string
		data string
		want float64
	}{
		{"explicit zero kept", "llm:\n  temperature: 0\n", 0},
		{"explicit value", "llm:\n  temperature: 1.2\n", 1.2},
		{"llm section without key", "llm:\n  model: local\n", DefaultTemperature},
		{"no llm section", "year: 2024\n", DefaultTemperature},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			if err := os.Mkdir(filepath.Join(tmpDir, PaperchatDir), 0755); err != nil {
				t.Fatal(err)
			}
			if err := os.WriteFile(ConfigPath(tmpDir), []byte(tt.data), 0644); err != nil {
				t.Fatal(err)
			}

			cfg, err := Load(tmpDir)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.LLM.Temperature != tt.want {
				t.Errorf("LLM.Temperature = %v, want %v", cfg.LLM.Temperature, tt.want)
			}
		})
	}

	if got := Default().LLM.Temperature; got != DefaultTemperature {
		t.Errorf("Default().LLM.Temperature = %v, want %v", got, DefaultTemperature)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"openai embeddings", func(c *Config) { c.Embedding.Provider = "openai" }, false},
		{"unknown embedding provider", func(c *Config) { c.Embedding.Provider = "cohere" }, true},
		{"unknown vector store", func(c *Config) { c.VectorStore.Type = "chroma" }, true},
		{"unknown rewriter", func(c *Config) { c.Chat.Rewriter = "magic" }, true},
		{"negative n_results", func(c *Config) { c.Chat.NResults = -1 }, true},
		{"ceiling below default", func(c *Config) { c.Chat.MaxResults = 2 }, true},
		{"threshold above one", func(c *Config) { c.Chat.ReuseThreshold = 1.5 }, true},
		{"temperature too high", func(c *Config) { c.LLM.Temperature = 3 }, true},
		{"ancient year", func(c *Config) { c.Year = 1900 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr = %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvLLMURL, "http://llm.internal:8000/v1")
	t.Setenv(EnvLLMModel, "mistral")
	t.Setenv(EnvLLMTemperature, "0.2")
	t.Setenv(EnvQdrantURL, "http://qdrant:6333")

	cfg := Default()
	cfg.ApplyEnv()

	if cfg.LLM.BaseURL != "http://llm.internal:8000/v1" {
		t.Errorf("LLM.BaseURL = %q", cfg.LLM.BaseURL)
	}
	if cfg.LLM.Model != "mistral" {
		t.Errorf("LLM.Model = %q, want mistral", cfg.LLM.Model)
	}
	if cfg.LLM.Temperature != 0.2 {
		t.Errorf("LLM.Temperature = %v, want 0.2", cfg.LLM.Temperature)
	}
	if cfg.VectorStore.Qdrant.URL != "http://qdrant:6333" {
		t.Errorf("Qdrant.URL = %q", cfg.VectorStore.Qdrant.URL)
	}
}

func TestApplyEnv_BadTemperatureIgnored(t *testing.T) {
	t.Setenv(EnvLLMTemperature, "warm")

	cfg := Default()
	cfg.ApplyEnv()

	if cfg.LLM.Temperature != DefaultTemperature {
		t.Errorf("LLM.Temperature = %v, want %v", cfg.LLM.Temperature, DefaultTemperature)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("Cannot get home directory")
	}

	if got := ExpandPath("~/papers"); got != filepath.Join(home, "papers") {
		t.Errorf("ExpandPath(~/papers) = %q", got)
	}
	if got := ExpandPath("/abs/path"); got != "/abs/path" {
		t.Errorf("ExpandPath(/abs/path) = %q", got)
	}
	if got := ExpandPath(""); got != "" {
		t.Errorf("ExpandPath(\"\") = %q", got)
	}
}
