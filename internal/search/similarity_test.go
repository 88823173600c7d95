package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float32
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"zero left", []float32{0, 0}, []float32{1, 1}, 0},
		{"zero right", []float32{1, 1}, []float32{0, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, cosineSimilarity(tt.a, tt.b), 1e-6)
		})
	}
}

func TestCosineSimilarityScaleInvariant(t *testing.T) {
	a := []float32{0.3, 0.7, 0.1}
	scaled := []float32{3, 7, 1}
	assert.InDelta(t, 1.0, cosineSimilarity(a, scaled), 1e-6)
}
