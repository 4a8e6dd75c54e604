package service

import (
	"fmt"
	"math"

	"github.com/medqa-sponsor-engine/internal/domain"
)

// CosineSimilarity returns the cosine of the angle between a and b. A zero-norm
// vector has similarity 0. Vectors of different length are a programming error
// and fail with ErrDimensionMismatch.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", domain.ErrDimensionMismatch, len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}
