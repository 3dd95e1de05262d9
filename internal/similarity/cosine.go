package similarity

import (
	"gonum.org/v1/gonum/floats"
)

// Cosine returns the cosine similarity of a and b. Mismatched lengths and
// zero-magnitude vectors yield 0.
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	normA := floats.Norm(a, 2)
	normB := floats.Norm(b, 2)
	if normA == 0 || normB == 0 {
		return 0
	}

	return floats.Dot(a, b) / (normA * normB)
}

// ToFloat64 widens an embedding returned by the API.
func ToFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
