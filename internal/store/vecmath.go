package store

import (
	"sort"

	"github.com/viant/vec/search"
)

// Magnitude returns the Euclidean norm of v.
func Magnitude(v []float32) float32 {
	return search.Float32s(v).Magnitude()
}

// Cosine returns the cosine similarity of a and b in [-1, 1]. A zero
// vector is similar to nothing.
func Cosine(a, b []float32) float64 {
	return cosineWithMagnitude(a, b, Magnitude(a), Magnitude(b))
}

// cosineWithMagnitude takes precomputed magnitudes so callers holding them
// can skip zero vectors without a pass over the data.
func cosineWithMagnitude(a, b []float32, ma, mb float32) float64 {
	if len(a) != len(b) || ma == 0 || mb == 0 {
		return 0
	}
	sim := 1 - float64(search.Float32s(a).CosineDistance(b))
	if sim > 1 {
		return 1
	}
	if sim < -1 {
		return -1
	}
	return sim
}

// normalized returns a unit-length copy of v.
func normalized(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	m := Magnitude(v)
	if m == 0 {
		return out
	}
	inv := 1 / m
	for i := range out {
		out[i] *= inv
	}
	return out
}

func sortVectorMatches(matches []VectorMatch) {
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].ID < matches[j].ID
	})
}

func checkVector(vec []float32, dims int) error {
	if len(vec) != dims {
		return DimensionMismatch(dims, len(vec))
	}
	return nil
}
