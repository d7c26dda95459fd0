package embedding

import (
	"fmt"

	"github.com/matsen/paperchat/internal/config"
)

// New builds the provider selected by cfg.Provider.
// apiKey is only used by the openai provider.
func New(cfg config.EmbeddingConfig, apiKey string) (Provider, error) {
	switch cfg.Provider {
	case "", "ollama":
		opts := []OllamaOption{}
		if cfg.BaseURL != "" {
			opts = append(opts, WithBaseURL(cfg.BaseURL))
		}
		if cfg.Model != "" {
			opts = append(opts, WithModel(cfg.Model))
			// a custom model has unknown size unless configured
			opts = append(opts, WithDimensions(cfg.Dimensions))
		} else if cfg.Dimensions > 0 {
			opts = append(opts, WithDimensions(cfg.Dimensions))
		}
		return NewOllamaProvider(opts...), nil
	case "openai":
		return NewOpenAIProvider(OpenAIConfig{
			BaseURL:    cfg.BaseURL,
			APIKey:     apiKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		}), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
}
