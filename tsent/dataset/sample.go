package dataset

import (
	"errors"
	"math"
	"math/rand"
	"time"
)

// ErrFraction is returned for a sampling fraction outside (0, 1].
var ErrFraction = errors.New("fraction must be in (0, 1]")

// NewRand returns a source seeded with seed, or with the clock when seed is 0.
func NewRand(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

// Subsample draws round(fraction*n) records uniformly without replacement,
// in random order.
func Subsample(records []RawRecord, fraction float64, rng *rand.Rand) ([]RawRecord, error) {
	if fraction <= 0 || fraction > 1 {
		return nil, ErrFraction
	}
	k := int(math.Round(fraction * float64(len(records))))
	perm := rng.Perm(len(records))[:k]
	out := make([]RawRecord, k)
	for i, idx := range perm {
		out[i] = records[idx]
	}
	return out, nil
}
