// Package search answers queries over the indexed documents.
//
// Hybrid mode fuses lexical and vector signals with min-max normalization
// and a weighted sum. Structured mode ("/sql") filters and sorts documents
// by id, version and metadata without touching either index.
package search

import (
	"fmt"
	"math"
	"time"

	"github.com/NguyenDuy1910/chatbot/internal/errors"
)

// SearchOptions configures a search query.
type SearchOptions struct {
	// TopN is the maximum number of results. <= 0 uses Config.DefaultTopN.
	TopN int

	// CertaintyThreshold drops candidates whose raw vector similarity is
	// below it. Nil uses Config.DefaultCertainty.
	CertaintyThreshold *float64

	// Weights overrides the default lexical/vector weights.
	Weights *Weights
}

// Weights configures the relative importance of the lexical and vector signals.
type Weights struct {
	// Lexical is the weight for keyword relevance (0-1, default: 0.5).
	Lexical float64 `yaml:"lexical" json:"lexical"`

	// Vector is the weight for embedding similarity (0-1, default: 0.5).
	Vector float64 `yaml:"vector" json:"vector"`
}

// DefaultWeights returns equal weighting.
func DefaultWeights() Weights {
	return Weights{Lexical: 0.5, Vector: 0.5}
}

// Validate checks that both weights are in [0,1] and sum to 1.
func (w Weights) Validate() error {
	if w.Lexical < 0 || w.Lexical > 1 || w.Vector < 0 || w.Vector > 1 {
		return errors.ValidationError("weights must be in [0, 1]", nil).
			WithDetail("lexical", fmt.Sprint(w.Lexical)).
			WithDetail("vector", fmt.Sprint(w.Vector))
	}
	if math.Abs(w.Lexical+w.Vector-1) > 1e-6 {
		return errors.ValidationError("weights must sum to 1", nil).
			WithDetail("lexical", fmt.Sprint(w.Lexical)).
			WithDetail("vector", fmt.Sprint(w.Vector))
	}
	return nil
}

// Result is one ranked document.
type Result struct {
	ID string `json:"id"`

	// Score is the fused score in [0,1].
	Score float64 `json:"score"`

	// LexicalScore is the raw bleve TF-IDF score.
	LexicalScore float64 `json:"lexical_score"`

	// VectorScore is the raw cosine similarity in [-1,1].
	VectorScore float64 `json:"vector_score"`

	Version  int64          `json:"version"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Config configures the planner.
type Config struct {
	// DefaultTopN is used when a caller passes top_n <= 0 (default: 3).
	DefaultTopN int

	// MaxTopN is the largest top_n a caller may ask for (default: 100).
	MaxTopN int

	// OversampleFactor sizes each index's candidate list as a multiple of
	// top_n (default: 4).
	OversampleFactor int

	// Weights are the default fusion weights.
	Weights Weights

	// DefaultCertainty applies when a caller passes no threshold. 0 disables it.
	DefaultCertainty float64

	// MinSimilarity is the raw vector similarity a candidate without any
	// lexical match needs to be a result (default: 0.25).
	MinSimilarity float64

	// Timeout bounds a search when the caller sets no deadline (default: 10s).
	Timeout time.Duration
}

// DefaultConfig returns the planner defaults.
func DefaultConfig() Config {
	return Config{
		DefaultTopN:      3,
		MaxTopN:          100,
		OversampleFactor: 4,
		Weights:          DefaultWeights(),
		MinSimilarity:    0.25,
		Timeout:          10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.DefaultTopN <= 0 {
		c.DefaultTopN = def.DefaultTopN
	}
	if c.MaxTopN <= 0 {
		c.MaxTopN = def.MaxTopN
	}
	if c.OversampleFactor <= 0 {
		c.OversampleFactor = def.OversampleFactor
	}
	if c.Weights == (Weights{}) {
		c.Weights = def.Weights
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	return c
}
