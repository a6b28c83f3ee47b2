package embed

import (
	"context"
	"hash/fnv"
	"strconv"
	"sync"

	"github.com/NguyenDuy1910/chatbot/internal/textproc"
)

// StaticModelName identifies the static embedder in the document store.
const StaticModelName = "static-hash"

// Weights for vector generation
const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

// StaticEmbedder generates embeddings by feature hashing.
// Works without external dependencies (no network, no model download).
// Terms and character trigrams are hashed into signed buckets, so texts
// sharing words land close together and unrelated texts stay near
// orthogonal. Tokenization is the same Unicode pipeline as the lexical
// index, so equivalent spellings embed identically.
type StaticEmbedder struct {
	dims int

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*StaticEmbedder)(nil)

// NewStaticEmbedder creates a static embedder. Non-positive dims fall back
// to StaticDimensions.
func NewStaticEmbedder(dims int) *StaticEmbedder {
	if dims <= 0 {
		dims = StaticDimensions
	}
	return &StaticEmbedder{dims: dims}
}

// Embed generates embedding for a single text.
func (e *StaticEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, errClosed()
	}
	if err := checkText(text); err != nil {
		return nil, err
	}
	return normalizeVector(e.generateVector(text)), nil
}

// EmbedBatch generates embeddings for multiple texts.
func (e *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := checkTexts(texts); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (e *StaticEmbedder) generateVector(text string) []float32 {
	vector := make([]float32, e.dims)
	tokens := textproc.Tokenize(text)

	for _, token := range tokens {
		idx, sign := e.bucket("t:" + token)
		vector[idx] += sign * tokenWeight
	}

	// Trigrams over runes, per token, so diacritics count as characters.
	for _, token := range tokens {
		for _, gram := range runeNgrams(token, ngramSize) {
			idx, sign := e.bucket("g:" + gram)
			vector[idx] += sign * ngramWeight
		}
	}
	return vector
}

// bucket hashes a feature to an index and a sign.
func (e *StaticEmbedder) bucket(feature string) (int, float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	sign := float32(1)
	if sum>>63 == 1 {
		sign = -1
	}
	return int(sum % uint64(e.dims)), sign
}

func runeNgrams(token string, n int) []string {
	runes := []rune(token)
	if len(runes) < n {
		return []string{token}
	}
	out := make([]string, 0, len(runes)-n+1)
	for i := 0; i+n <= len(runes); i++ {
		out = append(out, string(runes[i:i+n]))
	}
	return out
}

// Dimensions returns the embedding dimension.
func (e *StaticEmbedder) Dimensions() int {
	return e.dims
}

// ModelName returns the model identifier.
func (e *StaticEmbedder) ModelName() string {
	return StaticModelName + "-" + strconv.Itoa(e.dims)
}

// Available reports true until the embedder is closed.
func (e *StaticEmbedder) Available(_ context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

// Close marks the embedder closed. It is idempotent.
func (e *StaticEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
