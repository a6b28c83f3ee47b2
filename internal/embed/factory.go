package embed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/NguyenDuy1910/chatbot/internal/errors"
)

// ProviderType represents an embedding provider
type ProviderType string

const (
	// ProviderStatic uses hash-based embeddings (default, offline)
	ProviderStatic ProviderType = "static"

	// ProviderOllama uses Ollama API for embeddings
	ProviderOllama ProviderType = "ollama"

	// ProviderOpenAI uses an OpenAI-compatible embeddings API
	ProviderOpenAI ProviderType = "openai"
)

// Config selects and configures an embedder.
type Config struct {
	Provider      ProviderType
	Model         string
	Dimensions    int
	OllamaHost    string
	OpenAIBaseURL string
	OpenAIAPIKey  string
	CacheSize     int // 0 = default, negative disables the cache
	Timeout       time.Duration
	MaxRetries    int
}

// NewEmbedder builds the configured embedder. Remote providers are wrapped
// in a ResilientEmbedder; every provider gets the LRU cache unless
// CacheSize is negative.
func NewEmbedder(ctx context.Context, cfg Config) (Embedder, error) {
	var (
		base   Embedder
		remote bool
		err    error
	)

	switch ProviderType(strings.ToLower(string(cfg.Provider))) {
	case ProviderStatic, "":
		base = NewStaticEmbedder(cfg.Dimensions)

	case ProviderOllama:
		ocfg := DefaultOllamaConfig()
		if cfg.OllamaHost != "" {
			ocfg.Host = cfg.OllamaHost
		}
		if cfg.Model != "" {
			ocfg.Model = cfg.Model
		}
		ocfg.Dimensions = cfg.Dimensions
		base, err = NewOllamaEmbedder(ctx, ocfg)
		remote = true

	case ProviderOpenAI:
		base, err = NewOpenAIEmbedder(OpenAIConfig{
			APIKey:     cfg.OpenAIAPIKey,
			BaseURL:    cfg.OpenAIBaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		})
		remote = true

	default:
		return nil, errors.ConfigError(fmt.Sprintf("unknown embedding provider %q", cfg.Provider), nil).
			WithSuggestion("use one of: static, ollama, openai")
	}
	if err != nil {
		return nil, err
	}

	embedder := base
	if remote {
		rcfg := DefaultResilientConfig()
		if cfg.Timeout > 0 {
			rcfg.Timeout = cfg.Timeout
		}
		if cfg.MaxRetries > 0 {
			rcfg.Retry.MaxRetries = cfg.MaxRetries
		}
		embedder = NewResilientEmbedder(embedder, rcfg)
	}
	if cfg.CacheSize >= 0 {
		embedder = NewCachedEmbedder(embedder, cfg.CacheSize)
	}

	slog.Debug("embedder_created",
		slog.String("provider", string(cfg.Provider)),
		slog.String("model", embedder.ModelName()),
		slog.Int("dimensions", embedder.Dimensions()))
	return embedder, nil
}

// Unwrap peels decorators off e down to the backend.
func Unwrap(e Embedder) Embedder {
	for {
		switch w := e.(type) {
		case *CachedEmbedder:
			e = w.inner
		case *ResilientEmbedder:
			e = w.inner
		default:
			return e
		}
	}
}
