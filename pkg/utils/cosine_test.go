package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosineSimilarity_Identical(t *testing.T) {
	v := []float32{0.3, 0.5, 0.2}
	assert.InDelta(t, 1.0, CosineSimilarity(v, v), 1e-9)
}

func TestCosineSimilarity_IdenticalIsExactlyOne(t *testing.T) {
	// these components round sqrt(d)*sqrt(d) below d without clamping
	vectors := [][]float32{
		{0.7, 0.7},
		{0.1, 0.2, 0.3},
		{0.9, 0.3},
	}
	for _, v := range vectors {
		assert.Equal(t, 1.0, CosineSimilarity(v, v))
	}
}

func TestCosineSimilarity_OppositeIsExactlyMinusOne(t *testing.T) {
	a := []float32{0.7, 0.7}
	b := []float32{-0.7, -0.7}
	assert.Equal(t, -1.0, CosineSimilarity(a, b))
}

func TestCosineSimilarity_Orthogonal(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	assert.InDelta(t, 0.0, CosineSimilarity(a, b), 1e-9)
}

func TestCosineSimilarity_Opposite(t *testing.T) {
	a := []float32{1, 2}
	b := []float32{-1, -2}
	assert.InDelta(t, -1.0, CosineSimilarity(a, b), 1e-9)
}

func TestCosineSimilarity_Degenerate(t *testing.T) {
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1, 2}, []float32{1}))
	assert.Equal(t, 0.0, CosineSimilarity(nil, nil))
	assert.Equal(t, 0.0, CosineSimilarity([]float32{0, 0}, []float32{1, 1}))
}
