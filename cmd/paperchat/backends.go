package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/matsen/paperchat/internal/config"
	"github.com/matsen/paperchat/internal/embedding"
	"github.com/matsen/paperchat/internal/llm"
	"github.com/matsen/paperchat/internal/logging"
	"github.com/matsen/paperchat/internal/rag"
	"github.com/matsen/paperchat/internal/retrieval"
	"github.com/matsen/paperchat/internal/semantic"
	"github.com/matsen/paperchat/internal/storage"
	"github.com/matsen/paperchat/internal/vectorstore/qdrant"
)

// backendCheckTimeout bounds the availability probes run before long operations.
const backendCheckTimeout = 5 * time.Second

// apiKeyFrom reads the key from the named environment variable, falling back
// to the global config.
func apiKeyFrom(envName string) string {
	if envName != "" {
		if v := os.Getenv(envName); v != "" {
			return v
		}
	}
	return config.GetOpenAIAPIKey()
}

// mustEmbeddingProvider builds the configured embedding provider, exits on error.
// For Ollama it also verifies the server is up and the model is pulled.
func mustEmbeddingProvider(ctx context.Context, cfg *config.Config) embedding.Provider {
	provider, err := embeddingProviderNoCheck(cfg)
	if err != nil {
		exitWithError(ExitConfigError, "%v", err)
	}
	if ollama, ok := provider.(*embedding.OllamaProvider); ok {
		mustValidateOllama(ctx, ollama)
	}
	return provider
}

// mustValidateOllama checks that Ollama is running and the embedding model is available.
func mustValidateOllama(ctx context.Context, provider *embedding.OllamaProvider) {
	ctx, cancel := context.WithTimeout(ctx, backendCheckTimeout)
	defer cancel()

	if err := provider.IsAvailable(ctx); err != nil {
		exitWithError(ExitBackendError, "Ollama is not running\n\nStart Ollama with 'ollama serve' or install from https://ollama.ai")
	}

	hasModel, err := provider.HasModel(ctx)
	if err != nil {
		exitWithError(ExitError, "checking model availability: %v", err)
	}
	if !hasModel {
		exitWithError(ExitModelNotFound, "embedding model %q not found\n\nRun 'ollama pull %s' to download it.", provider.ModelName(), provider.ModelName())
	}
}

// openVectorStore opens the configured vector store. The local store is loaded
// from the index file; with mustExist a missing index is an error.
func openVectorStore(ctx context.Context, repoRoot string, cfg *config.Config, provider embedding.Provider, mustExist bool) (retrieval.Store, error) {
	switch cfg.VectorStore.Type {
	case "qdrant":
		q := cfg.VectorStore.Qdrant
		apiKey := q.APIKey
		if apiKey == "" {
			apiKey = config.GetQdrantAPIKey()
		}
		store := qdrant.NewStore(qdrant.Config{
			URL:        q.URL,
			APIKey:     apiKey,
			Collection: q.Collection,
			Timeout:    time.Duration(q.TimeoutSecs) * time.Second,
		})
		pingCtx, cancel := context.WithTimeout(ctx, backendCheckTimeout)
		defer cancel()
		if err := store.Ping(pingCtx); err != nil {
			return nil, err
		}
		return store, nil
	default:
		path := config.IndexPath(repoRoot)
		if mustExist && !semantic.Exists(path) {
			return nil, semantic.ErrIndexNotFound
		}
		store, err := semantic.OpenStore(path, provider.ModelName(), provider.Dimensions())
		if err != nil {
			return nil, err
		}
		if mustExist {
			if err := store.CheckModel(provider.ModelName()); err != nil {
				return nil, err
			}
		}
		return store, nil
	}
}

// mustOpenVectorStore is openVectorStore with CLI error handling.
func mustOpenVectorStore(ctx context.Context, repoRoot string, cfg *config.Config, provider embedding.Provider, mustExist bool) retrieval.Store {
	store, err := openVectorStore(ctx, repoRoot, cfg, provider, mustExist)
	switch {
	case err == nil:
		return store
	case errors.Is(err, semantic.ErrIndexNotFound):
		exitWithError(ExitConfigError, "semantic index not found\n\nRun 'paperchat index build' to create it.")
	default:
		exitWithError(ExitBackendError, "opening vector store: %v", err)
	}
	return nil
}

// newLLMClient builds the chat completion client from configuration.
func newLLMClient(cfg *config.Config) *llm.OpenAIClient {
	return llm.NewOpenAIClient(
		llm.WithBaseURL(cfg.LLM.BaseURL),
		llm.WithModel(cfg.LLM.Model),
		llm.WithAPIKey(apiKeyFrom(cfg.LLM.APIKeyEnv)),
		llm.WithTimeout(cfg.LLMTimeout()),
	)
}

// newLoop wires retriever, paper store and inference client into a chat loop.
func newLoop(cfg *config.Config, provider embedding.Provider, store retrieval.Store, db *storage.DB) (*rag.Loop, error) {
	client := newLLMClient(cfg)
	rewriter, err := rag.NewRewriter(cfg.Chat.Rewriter, client)
	if err != nil {
		return nil, fmt.Errorf("configuring rewriter: %w", err)
	}
	return rag.New(
		retrieval.NewRetriever(provider, store),
		db,
		client,
		rag.WithSettings(rag.SettingsFromConfig(cfg)),
		rag.WithRewriter(rewriter),
		rag.WithTimeout(cfg.LLMTimeout()),
		rag.WithLogger(logging.NewLogger("rag")),
	), nil
}

// chatEnv holds everything an interactive command needs. Close releases it.
type chatEnv struct {
	repoRoot string
	cfg      *config.Config
	db       *storage.DB
	provider embedding.Provider
	store    retrieval.Store
	loop     *rag.Loop
}

func (e *chatEnv) Close() {
	e.db.Close()
}

// mustChatEnv opens the repository and all backends for a chat command.
func mustChatEnv(ctx context.Context) *chatEnv {
	repoRoot := mustFindRepository()
	cfg := mustLoadConfig(repoRoot)
	db := mustOpenDatabase(repoRoot)

	provider := mustEmbeddingProvider(ctx, cfg)
	store := mustOpenVectorStore(ctx, repoRoot, cfg, provider, true)

	loop, err := newLoop(cfg, provider, store, db)
	if err != nil {
		db.Close()
		exitWithError(ExitConfigError, "%v", err)
	}
	return &chatEnv{repoRoot: repoRoot, cfg: cfg, db: db, provider: provider, store: store, loop: loop}
}

// embeddingProviderNoCheck builds the configured provider without probing it.
func embeddingProviderNoCheck(cfg *config.Config) (embedding.Provider, error) {
	return embedding.New(cfg.Embedding, apiKeyFrom(cfg.Embedding.APIKeyEnv))
}
