// Package embed turns text into fixed-dimension vectors.
//
// Backends are a deterministic hash embedder (static), Ollama and any
// OpenAI-compatible endpoint. CachedEmbedder and ResilientEmbedder wrap a
// backend with an LRU cache and with retries behind a circuit breaker.
package embed

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/NguyenDuy1910/chatbot/internal/errors"
	"github.com/NguyenDuy1910/chatbot/internal/textproc"
)

const (
	// DefaultBatchSize is the default batch size for embedding requests
	DefaultBatchSize = 32

	// MaxBatchSize caps a single remote request
	MaxBatchSize = 256

	// DefaultTimeout bounds one remote embedding request
	DefaultTimeout = 30 * time.Second

	// DefaultMaxRetries is the default number of retry attempts
	DefaultMaxRetries = 3

	// StaticDimensions is the default dimension of the static embedder
	StaticDimensions = 256
)

// Embedder generates vector embeddings for text
type Embedder interface {
	// Embed generates embedding for a single text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, in order
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension
	Dimensions() int

	// ModelName returns the model identifier
	ModelName() string

	// Available checks if the embedder is ready
	Available(ctx context.Context) bool

	// Close releases resources
	Close() error
}

// EmptyTextError reports text with nothing left to embed after
// normalization. It is never retried.
func EmptyTextError() *errors.ChatbotError {
	return errors.New(errors.ErrCodeEmptyText, "text is empty after normalization", nil)
}

func checkText(text string) error {
	if textproc.IsBlank(text) {
		return EmptyTextError()
	}
	return nil
}

func checkTexts(texts []string) error {
	for i, t := range texts {
		if textproc.IsBlank(t) {
			return EmptyTextError().WithDetail("index", strconv.Itoa(i))
		}
	}
	return nil
}

func errClosed() error {
	return errors.New(errors.ErrCodeUpstreamUnavailable, "embedder is closed", nil)
}

// normalizeVector normalizes a vector to unit length.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
