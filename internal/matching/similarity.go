package matching

import (
	"math"
	"strconv"
)

// CosineSimilarity returns the cosine of the angle between a and b. It is 0
// when either vector has zero norm or the lengths differ, and never NaN.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if math.IsNaN(sim) || math.IsInf(sim, 0) {
		return 0
	}
	return sim
}

// Percent converts a similarity to a percentage rounded to two decimals:
// 0.8375 becomes 83.75. The exact value of sim*100 is rounded once, halves to
// even, so 0.72345 becomes 72.34.
func Percent(sim float64) float64 {
	rounded, err := strconv.ParseFloat(strconv.FormatFloat(sim*100, 'f', 2, 64), 64)
	if err != nil {
		return 0
	}
	return rounded
}
