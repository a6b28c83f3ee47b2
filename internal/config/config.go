// Package config loads chatbot configuration from defaults, YAML files,
// a .env file and CHATBOT_* environment variables.
package config

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/NguyenDuy1910/chatbot/internal/errors"
	"github.com/NguyenDuy1910/chatbot/internal/logging"
)

const (
	// ProjectConfigName is the per-directory config file.
	ProjectConfigName = ".chatbot.yaml"
	// DefaultDataDir holds the document store, logs and the vector snapshot.
	DefaultDataDir = ".chatbot"
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "CHATBOT_"
)

// Embedding providers.
const (
	ProviderStatic = "static"
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// Vector index backends.
const (
	BackendHNSW = "hnsw"
	BackendFlat = "flat"
)

// Config is the complete chatbot configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	DataDir    string           `yaml:"data_dir" json:"data_dir"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Index      IndexConfig      `yaml:"index" json:"index"`
	Server     ServerConfig     `yaml:"server" json:"server"`
	Watch      WatchConfig      `yaml:"watch" json:"watch"`
}

// SearchConfig configures hybrid fusion.
type SearchConfig struct {
	// LexicalWeight and VectorWeight must each be in [0,1] and sum to 1.
	LexicalWeight float64 `yaml:"lexical_weight" json:"lexical_weight"`
	VectorWeight  float64 `yaml:"vector_weight" json:"vector_weight"`

	// DefaultTopN is used when a caller passes top_n <= 0.
	DefaultTopN int `yaml:"default_top_n" json:"default_top_n"`

	// OversampleFactor multiplies top_n to size each index's candidate list.
	OversampleFactor int `yaml:"oversample_factor" json:"oversample_factor"`

	// DefaultCertainty is the raw vector similarity floor used when a
	// caller does not pass one. 0 disables it.
	DefaultCertainty float64 `yaml:"default_certainty" json:"default_certainty"`

	// MinSimilarity is the raw similarity a candidate without any lexical
	// match needs to count as a result.
	MinSimilarity float64 `yaml:"min_similarity" json:"min_similarity"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	Provider   string `yaml:"provider" json:"provider"`
	Model      string `yaml:"model" json:"model"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`

	OllamaHost      string `yaml:"ollama_host" json:"ollama_host"`
	OpenAIBaseURL   string `yaml:"openai_base_url" json:"openai_base_url"`
	OpenAIAPIKeyEnv string `yaml:"openai_api_key_env" json:"openai_api_key_env"`

	// CacheSize is the LRU entry count in front of the provider. 0 disables it.
	CacheSize  int           `yaml:"cache_size" json:"cache_size"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
	MaxRetries int           `yaml:"max_retries" json:"max_retries"`
}

// IndexConfig configures the indexes and the indexer.
type IndexConfig struct {
	VectorBackend string `yaml:"vector_backend" json:"vector_backend"`
	HNSWM         int    `yaml:"hnsw_m" json:"hnsw_m"`
	HNSWEfSearch  int    `yaml:"hnsw_ef_search" json:"hnsw_ef_search"`

	PurgeInterval    time.Duration `yaml:"purge_interval" json:"purge_interval"`
	PurgeMaxRetries  int           `yaml:"purge_max_retries" json:"purge_max_retries"`
	OperationTimeout time.Duration `yaml:"operation_timeout" json:"operation_timeout"`

	// SyncSimilarityThreshold: a synced document whose text is more similar
	// than this to the stored text is left untouched.
	SyncSimilarityThreshold float64 `yaml:"sync_similarity_threshold" json:"sync_similarity_threshold"`
}

// ServerConfig configures the MCP server.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
}

// WatchConfig configures directory ingestion.
type WatchConfig struct {
	// Extensions lists the file suffixes ingested as documents.
	Extensions []string `yaml:"extensions" json:"extensions"`
	// Ignore holds glob patterns matched against slash-separated relative
	// paths and base names.
	Ignore       []string      `yaml:"ignore" json:"ignore"`
	Debounce     time.Duration `yaml:"debounce" json:"debounce"`
	PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval"`
}

// NewConfig creates a Config with defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		DataDir: DefaultDataDir,
		Search: SearchConfig{
			LexicalWeight:    0.5,
			VectorWeight:     0.5,
			DefaultTopN:      3,
			OversampleFactor: 4,
			DefaultCertainty: 0,
			MinSimilarity:    0.25,
		},
		Embeddings: EmbeddingsConfig{
			Provider:        ProviderStatic,
			Model:           "static-hash",
			Dimensions:      256,
			OllamaHost:      "http://localhost:11434",
			OpenAIAPIKeyEnv: "OPENAI_API_KEY",
			CacheSize:       1000,
			Timeout:         30 * time.Second,
			MaxRetries:      3,
		},
		Index: IndexConfig{
			VectorBackend:           BackendHNSW,
			HNSWM:                   16,
			HNSWEfSearch:            64,
			PurgeInterval:           2 * time.Second,
			PurgeMaxRetries:         5,
			OperationTimeout:        30 * time.Second,
			SyncSimilarityThreshold: 0.85,
		},
		Server: ServerConfig{
			Transport: "stdio",
			LogLevel:  "info",
		},
		Watch: WatchConfig{
			Extensions:   []string{".txt", ".md"},
			Debounce:     200 * time.Millisecond,
			PollInterval: 5 * time.Second,
		},
	}
}

// GetUserConfigPath returns the user configuration file:
//   - $XDG_CONFIG_HOME/chatbot/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/chatbot/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "chatbot", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "chatbot", "config.yaml")
	}
	return filepath.Join(home, ".config", "chatbot", "config.yaml")
}

// Load loads configuration for the project rooted at dir.
// Precedence, lowest first:
//  1. Defaults
//  2. User config ($XDG_CONFIG_HOME/chatbot/config.yaml)
//  3. Project config (.chatbot.yaml in dir)
//  4. dir/.env, which only fills variables not already set
//  5. CHATBOT_* environment variables
//
// A relative data_dir is resolved against dir.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if path := GetUserConfigPath(); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}
	if path := filepath.Join(dir, ProjectConfigName); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	if path := filepath.Join(dir, ".env"); fileExists(path) {
		if err := godotenv.Load(path); err != nil {
			return nil, errors.ConfigError(fmt.Sprintf("failed to load .env file: %v", err), err).WithDetail("path", path)
		}
	}
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, errors.ConfigError(fmt.Sprintf("invalid environment override: %v", err), err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.ConfigError(fmt.Sprintf("invalid configuration: %v", err), err)
	}

	if !filepath.IsAbs(cfg.DataDir) {
		cfg.DataDir = filepath.Join(dir, cfg.DataDir)
	}
	return cfg, nil
}

// loadYAML decodes path over c. Keys absent from the file keep their
// current value, so an explicit 0 in the file is honored.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.New(errors.ErrCodeConfigNotFound, "failed to read config file", err).WithDetail("path", path)
	}

	parsed := *c
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&parsed); err != nil && !stderrors.Is(err, io.EOF) {
		return errors.ConfigError(fmt.Sprintf("failed to parse config file: %v", err), err).WithDetail("path", path)
	}
	*c = parsed
	return nil
}

// applyEnvOverrides applies CHATBOT_* variables over c.
func (c *Config) applyEnvOverrides() error {
	strs := map[string]*string{
		"DATA_DIR":            &c.DataDir,
		"EMBEDDINGS_PROVIDER": &c.Embeddings.Provider,
		"EMBEDDINGS_MODEL":    &c.Embeddings.Model,
		"OLLAMA_HOST":         &c.Embeddings.OllamaHost,
		"OPENAI_BASE_URL":     &c.Embeddings.OpenAIBaseURL,
		"VECTOR_BACKEND":      &c.Index.VectorBackend,
		"TRANSPORT":           &c.Server.Transport,
		"LOG_LEVEL":           &c.Server.LogLevel,
	}
	for name, dst := range strs {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}

	floats := map[string]*float64{
		"LEXICAL_WEIGHT": &c.Search.LexicalWeight,
		"VECTOR_WEIGHT":  &c.Search.VectorWeight,
		"CERTAINTY":      &c.Search.DefaultCertainty,
		"MIN_SIMILARITY": &c.Search.MinSimilarity,
	}
	for name, dst := range floats {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
			}
			*dst = f
		}
	}

	ints := map[string]*int{
		"TOP_N":                 &c.Search.DefaultTopN,
		"EMBEDDINGS_DIMENSIONS": &c.Embeddings.Dimensions,
	}
	for name, dst := range ints {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
			}
			*dst = n
		}
	}
	return nil
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	s := c.Search
	if s.LexicalWeight < 0 || s.LexicalWeight > 1 {
		return fmt.Errorf("search.lexical_weight must be between 0 and 1, got %g", s.LexicalWeight)
	}
	if s.VectorWeight < 0 || s.VectorWeight > 1 {
		return fmt.Errorf("search.vector_weight must be between 0 and 1, got %g", s.VectorWeight)
	}
	if sum := s.LexicalWeight + s.VectorWeight; math.Abs(sum-1.0) > 0.01 {
		return fmt.Errorf("search.lexical_weight + search.vector_weight must equal 1.0, got %.2f", sum)
	}
	if s.DefaultTopN <= 0 {
		return fmt.Errorf("search.default_top_n must be positive, got %d", s.DefaultTopN)
	}
	if s.OversampleFactor <= 0 {
		return fmt.Errorf("search.oversample_factor must be positive, got %d", s.OversampleFactor)
	}
	if s.DefaultCertainty < 0 || s.DefaultCertainty > 1 {
		return fmt.Errorf("search.default_certainty must be between 0 and 1, got %g", s.DefaultCertainty)
	}
	if s.MinSimilarity < -1 || s.MinSimilarity > 1 {
		return fmt.Errorf("search.min_similarity must be between -1 and 1, got %g", s.MinSimilarity)
	}

	e := c.Embeddings
	switch strings.ToLower(e.Provider) {
	case ProviderStatic, ProviderOllama, ProviderOpenAI:
	default:
		return fmt.Errorf("embeddings.provider must be 'static', 'ollama' or 'openai', got %q", e.Provider)
	}
	if e.Dimensions < 0 {
		return fmt.Errorf("embeddings.dimensions must be non-negative, got %d", e.Dimensions)
	}
	if strings.EqualFold(e.Provider, ProviderStatic) && e.Dimensions == 0 {
		return fmt.Errorf("embeddings.dimensions is required for the static provider")
	}
	if e.CacheSize < 0 || e.MaxRetries < 0 {
		return fmt.Errorf("embeddings.cache_size and embeddings.max_retries must be non-negative")
	}

	ix := c.Index
	switch strings.ToLower(ix.VectorBackend) {
	case BackendHNSW, BackendFlat:
	default:
		return fmt.Errorf("index.vector_backend must be 'hnsw' or 'flat', got %q", ix.VectorBackend)
	}
	if ix.HNSWM < 2 {
		return fmt.Errorf("index.hnsw_m must be at least 2, got %d", ix.HNSWM)
	}
	if ix.HNSWEfSearch <= 0 {
		return fmt.Errorf("index.hnsw_ef_search must be positive, got %d", ix.HNSWEfSearch)
	}
	if ix.PurgeInterval <= 0 || ix.OperationTimeout <= 0 {
		return fmt.Errorf("index.purge_interval and index.operation_timeout must be positive")
	}
	if ix.SyncSimilarityThreshold < 0 || ix.SyncSimilarityThreshold > 1 {
		return fmt.Errorf("index.sync_similarity_threshold must be between 0 and 1, got %g", ix.SyncSimilarityThreshold)
	}

	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if !strings.EqualFold(c.Server.Transport, "stdio") {
		return fmt.Errorf("server.transport must be 'stdio', got %q", c.Server.Transport)
	}
	if !logging.ValidLevel(c.Server.LogLevel) {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %q", c.Server.LogLevel)
	}

	w := c.Watch
	if len(w.Extensions) == 0 {
		return fmt.Errorf("watch.extensions must not be empty")
	}
	if w.Debounce <= 0 || w.PollInterval <= 0 {
		return fmt.Errorf("watch.debounce and watch.poll_interval must be positive")
	}
	return nil
}

// WriteYAML writes the configuration to a YAML file, creating its directory.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
