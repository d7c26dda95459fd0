package config

import (
	"os"
	"strconv"
)

// Environment variables that override values from config.yml.
// Callers load .env files (godotenv) before calling ApplyEnv.
const (
	EnvLLMURL         = "PAPERCHAT_LLM_URL"
	EnvLLMModel       = "PAPERCHAT_LLM_MODEL"
	EnvLLMTemperature = "PAPERCHAT_LLM_TEMPERATURE"
	EnvEmbeddingURL   = "PAPERCHAT_EMBEDDING_URL"
	EnvEmbeddingModel = "PAPERCHAT_EMBEDDING_MODEL"
	EnvQdrantURL      = "PAPERCHAT_QDRANT_URL"
	EnvQdrantAPIKey   = "PAPERCHAT_QDRANT_API_KEY"
	EnvWebAddr        = "PAPERCHAT_WEB_ADDR"
)

// ApplyEnv overrides configuration fields from the environment.
// Unparseable numeric values are ignored.
func (c *Config) ApplyEnv() {
	setString(&c.LLM.BaseURL, EnvLLMURL)
	setString(&c.LLM.Model, EnvLLMModel)
	setString(&c.Embedding.BaseURL, EnvEmbeddingURL)
	setString(&c.Embedding.Model, EnvEmbeddingModel)
	setString(&c.VectorStore.Qdrant.URL, EnvQdrantURL)
	setString(&c.VectorStore.Qdrant.APIKey, EnvQdrantAPIKey)
	setString(&c.Web.Addr, EnvWebAddr)

	if v := os.Getenv(EnvLLMTemperature); v != "" {
		if t, err := strconv.ParseFloat(v, 64); err == nil {
			c.LLM.Temperature = t
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
