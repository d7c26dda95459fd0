package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// GlobalConfig represents configuration stored in ~/.config/paperchat/config.yml.
type GlobalConfig struct {
	DataPath     string `yaml:"data_path,omitempty"`
	OpenAIAPIKey string `yaml:"openai_api_key,omitempty"`
	QdrantAPIKey string `yaml:"qdrant_api_key,omitempty"`
}

const (
	// GlobalConfigDir is the directory name under XDG_CONFIG_HOME.
	GlobalConfigDir = "paperchat"
	// GlobalConfigFile is the config file name.
	GlobalConfigFile = "config.yml"
)

// globalConfigCache caches the loaded global config.
var globalConfigCache *GlobalConfig

// GlobalConfigPath returns the path to the global config file.
// Respects XDG_CONFIG_HOME, defaults to ~/.config/paperchat/config.yml.
func GlobalConfigPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, GlobalConfigDir, GlobalConfigFile)
}

// LoadGlobalConfig loads the global configuration file.
// Returns an empty config (not an error) if the file doesn't exist.
func LoadGlobalConfig() (*GlobalConfig, error) {
	if globalConfigCache != nil {
		return globalConfigCache, nil
	}

	path := GlobalConfigPath()
	if path == "" {
		return &GlobalConfig{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &GlobalConfig{}, nil
		}
		return nil, fmt.Errorf("reading global config: %w", err)
	}

	var cfg GlobalConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing global config: %w", err)
	}

	if cfg.DataPath != "" {
		cfg.DataPath = ExpandPath(cfg.DataPath)
	}

	globalConfigCache = &cfg
	return &cfg, nil
}

// ResetGlobalConfigCache clears the cached global config.
// Useful for testing.
func ResetGlobalConfigCache() {
	globalConfigCache = nil
}

// GetDataPath returns the configured data path from global config.
func GetDataPath() string {
	cfg, err := LoadGlobalConfig()
	if err != nil {
		return ""
	}
	return cfg.DataPath
}

// GetOpenAIAPIKey returns the OpenAI-compatible API key from global config.
func GetOpenAIAPIKey() string {
	cfg, err := LoadGlobalConfig()
	if err != nil {
		return ""
	}
	return cfg.OpenAIAPIKey
}

// GetQdrantAPIKey returns the Qdrant API key from global config.
func GetQdrantAPIKey() string {
	cfg, err := LoadGlobalConfig()
	if err != nil {
		return ""
	}
	return cfg.QdrantAPIKey
}

// ErrDataPathNotExist is returned when the configured data_path doesn't exist.
var ErrDataPathNotExist = errors.New("data_path does not exist")

// ValidateDataPath returns the data path from global config after validation.
// An unset data_path yields "" and no error.
func ValidateDataPath() (string, error) {
	path := GetDataPath()
	if path == "" {
		return "", nil
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%w: %s", ErrDataPathNotExist, path)
	}
	return path, nil
}

// HelpfulConfigMessage returns a helpful message when no repository is found.
func HelpfulConfigMessage() string {
	configPath := GlobalConfigPath()
	return fmt.Sprintf(`No paperchat repository found.

Run 'paperchat init' in the directory that should hold your paper data,
or create %s to set a default:
  mkdir -p %s
  echo 'data_path: /path/to/your/papers' > %s`,
		configPath,
		filepath.Dir(configPath),
		configPath)
}
