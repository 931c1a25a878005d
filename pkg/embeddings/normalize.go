// Package embeddings provides utilities for embedding vectors (e.g. L2 normalization).
package embeddings

import (
	"math"
)

// NormalizeL2 scales a raw embedding vector to unit length in-place.
// Query vectors are normalized before a cosine-distance scan so that scores
// stay within [0,1] even when a provider returns un-normalized vectors.
func NormalizeL2(vector []float32) {
	var sumSquares float64

	for _, v := range vector {
		sumSquares += float64(v) * float64(v)
	}

	// A zero vector stays zero; there is no direction to preserve.
	if sumSquares == 0 {
		return
	}

	magnitude := math.Sqrt(sumSquares)

	for i := range vector {
		vector[i] = float32(float64(vector[i]) / magnitude)
	}
}
