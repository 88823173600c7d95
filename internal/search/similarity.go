package search

import "math"

// cosineSimilarity computes the cosine of the angle between two vectors of
// equal dimension. A zero-magnitude vector on either side yields 0 rather
// than NaN so degenerate embeddings sort last instead of poisoning results.
func cosineSimilarity(a, b []float32) float32 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
