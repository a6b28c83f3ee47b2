package embed

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	"github.com/NguyenDuy1910/chatbot/internal/errors"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "text-embedding-3-small"

// OpenAIConfig configures the OpenAI-compatible embedder.
type OpenAIConfig struct {
	APIKey string

	// BaseURL points at any OpenAI-compatible endpoint (empty = api.openai.com).
	BaseURL string

	Model string

	// Dimensions requests shortened embeddings from models that support it
	// (0 = the model's native size).
	Dimensions int

	BatchSize int
}

// OpenAIEmbedder uses an OpenAI-compatible /embeddings API.
// It makes one attempt per call; wrap it in a ResilientEmbedder for retries.
type OpenAIEmbedder struct {
	client    *openai.Client
	model     string
	dims      int
	requested int
	batchSize int

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates an OpenAI embedder.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, errors.ConfigError("OpenAI API key is not set", nil).
			WithSuggestion("export OPENAI_API_KEY or set embeddings.openai_api_key_env")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = DefaultBatchSize
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	dims := cfg.Dimensions
	if dims == 0 {
		dims = openAIModelDimensions(cfg.Model)
	}
	if dims == 0 {
		return nil, errors.ConfigError("unknown OpenAI model dimension", nil).
			WithDetail("model", cfg.Model).
			WithSuggestion("set embeddings.dimensions")
	}

	return &OpenAIEmbedder{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     cfg.Model,
		dims:      dims,
		requested: cfg.Dimensions,
		batchSize: cfg.BatchSize,
	}, nil
}

func openAIModelDimensions(model string) int {
	switch model {
	case "text-embedding-3-small", "text-embedding-ada-002":
		return 1536
	case "text-embedding-3-large":
		return 3072
	default:
		return 0
	}
}

// Embed generates an embedding for a single text
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings in requests of at most BatchSize texts.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, errClosed()
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if err := checkTexts(texts); err != nil {
		return nil, err
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		vecs, err := e.doEmbed(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (e *OpenAIEmbedder) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model:      openai.EmbeddingModel(e.model),
		Input:      texts,
		Dimensions: e.requested,
	})
	if err != nil {
		return nil, classifyOpenAIError(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	out := make([][]float32, len(data))
	for i, d := range data {
		if len(d.Embedding) != e.dims {
			return nil, errors.New(errors.ErrCodeDimensionMismatch, "provider returned unexpected dimension", nil).
				WithDetail("expected", fmt.Sprint(e.dims)).
				WithDetail("got", fmt.Sprint(len(d.Embedding)))
		}
		v := make([]float32, len(d.Embedding))
		for j, x := range d.Embedding {
			v[j] = float32(x)
		}
		out[i] = normalizeVector(v)
	}
	return out, nil
}

// classifyOpenAIError keeps 400-class request errors out of the retry loop.
func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if stderrors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity:
			return errors.ValidationError("embedding request rejected: "+apiErr.Message, err).
				WithDetail("status", fmt.Sprint(apiErr.HTTPStatusCode))
		case http.StatusUnauthorized, http.StatusForbidden:
			return errors.ConfigError("embedding provider rejected credentials", err).
				WithDetail("status", fmt.Sprint(apiErr.HTTPStatusCode))
		}
		return errors.UpstreamError(fmt.Sprintf("embedding failed with status %d", apiErr.HTTPStatusCode), err)
	}
	var reqErr *openai.RequestError
	if stderrors.As(err, &reqErr) {
		return errors.UpstreamError(fmt.Sprintf("embedding failed with status %d", reqErr.HTTPStatusCode), err)
	}
	return err
}

// Dimensions returns the embedding dimension
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dims
}

// ModelName returns the model identifier
func (e *OpenAIEmbedder) ModelName() string {
	return "openai:" + e.model
}

// Available reports true until closed; reachability shows on first use.
func (e *OpenAIEmbedder) Available(_ context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

// Close implements Embedder.
func (e *OpenAIEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
