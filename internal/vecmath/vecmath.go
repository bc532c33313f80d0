// Package vecmath holds the small amount of dense-vector arithmetic used by
// profile blending and scoring. Vectors are float32 to match the embedding
// encoding used on disk.
package vecmath

import (
	"math"

	embedding "github.com/matthewjhunter/go-embedding"
)

// Dim is the embedding width produced by the configured model.
const Dim = 384

// Zero returns a zero vector of length n.
func Zero(n int) []float32 {
	return make([]float32, n)
}

// Norm returns the L2 norm of v.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Normalize returns v scaled to unit length. A zero vector is returned
// unchanged.
func Normalize(v []float32) []float32 {
	n := Norm(v)
	if n == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / n)
	}
	return out
}

// Blend returns normalize(acc*(1-a) + v*a). acc and v must share a length;
// when they differ, acc is returned untouched.
func Blend(acc, v []float32, a float64) []float32 {
	if len(acc) != len(v) {
		return acc
	}
	mixed := make([]float32, len(acc))
	for i := range acc {
		mixed[i] = float32(float64(acc[i])*(1-a) + float64(v[i])*a)
	}
	return Normalize(mixed)
}

// Cosine is the cosine similarity of a and b, defined as 0 when either is a
// zero vector or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	if Norm(a) == 0 || Norm(b) == 0 {
		return 0
	}
	return embedding.CosineSimilarity(a, b)
}

// CosineToUnit maps a cosine in [-1, 1] onto [0, 1].
func CosineToUnit(c float64) float64 {
	return 0.5 * (c + 1)
}
