package helper

import "gonum.org/v1/gonum/floats"

// CosineSimilarity returns the cosine of the angle between a and b clamped to
// [0,1], so it can be stored as a match confidence. Anti-correlated vectors,
// mismatched lengths, empty or zero vectors all score 0.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	normA := floats.Norm(a, 2)
	normB := floats.Norm(b, 2)
	if normA == 0 || normB == 0 {
		return 0
	}

	similarity := floats.Dot(a, b) / (normA * normB)
	if similarity > 1 {
		similarity = 1
	}
	if similarity < 0 {
		similarity = 0
	}
	return similarity
}
