package helper

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// DefaultStoredWeight is the share of the stored encoding kept on every merge.
const DefaultStoredWeight = 0.7

var (
	ErrDimensionMismatch = errors.New("face encoding dimension mismatch")
	ErrInvalidWeight     = errors.New("stored weight must be within [0, 1]")
)

// MergeEncoding blends a newly observed face encoding into the stored one:
//
//	merged[i] = storedWeight*stored[i] + (1-storedWeight)*observed[i]
//
// Neither input is modified. On error the caller must keep the stored value.
func MergeEncoding(stored, observed []float64, storedWeight float64) ([]float64, error) {
	if len(stored) != len(observed) {
		return nil, fmt.Errorf("%w: stored=%d observed=%d", ErrDimensionMismatch, len(stored), len(observed))
	}
	if storedWeight < 0 || storedWeight > 1 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidWeight, storedWeight)
	}

	merged := make([]float64, len(stored))
	floats.ScaleTo(merged, storedWeight, stored)
	floats.AddScaled(merged, 1-storedWeight, observed)
	return merged, nil
}
