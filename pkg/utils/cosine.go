package utils

import "math"

// CosineSimilarity returns the normalized dot product of a and b in [-1, 1].
// Mismatched lengths or zero vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	// A single sqrt of the product keeps identical vectors at exactly 1.0:
	// dot, normA, and normB are then bitwise equal and sqrt(x*x) == x,
	// where sqrt(normA)*sqrt(normB) can round below dot and make an exact
	// duplicate miss a threshold of 1.0. The clamp guards the bounds.
	return math.Max(-1, math.Min(1, dot/math.Sqrt(normA*normB)))
}
