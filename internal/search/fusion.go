package search

import (
	"sort"

	"github.com/NguyenDuy1910/chatbot/internal/store"
)

// candidate is one live document in the pool with its raw signals, both
// taken from the same published row version.
type candidate struct {
	row     *store.Document
	lexical float64
	vector  float64
	fused   float64
}

// MinMaxNormalize rescales values into [0,1] within the slice. When every
// value is equal the result is 1 for a positive value and 0 otherwise.
func MinMaxNormalize(values []float64) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}

	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}

	if hi == lo {
		if hi > 0 {
			for i := range out {
				out[i] = 1
			}
		}
		return out
	}

	span := hi - lo
	for i, v := range values {
		out[i] = (v - lo) / span
	}
	return out
}

// fuse sets the fused score of every candidate as the weighted sum of its
// normalized signals over the whole pool.
func fuse(cands []*candidate, w Weights) {
	lex := make([]float64, len(cands))
	vec := make([]float64, len(cands))
	for i, c := range cands {
		lex[i] = c.lexical
		vec[i] = c.vector
	}
	lex = MinMaxNormalize(lex)
	vec = MinMaxNormalize(vec)
	for i, c := range cands {
		c.fused = w.Lexical*lex[i] + w.Vector*vec[i]
	}
}

// rank orders candidates by fused score desc, then id asc.
func rank(cands []*candidate) {
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].fused != cands[j].fused {
			return cands[i].fused > cands[j].fused
		}
		return cands[i].row.ID < cands[j].row.ID
	})
}
