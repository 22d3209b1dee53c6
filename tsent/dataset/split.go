package dataset

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/RoaringBitmap/roaring"

	"github.com/ZanzyTHEbar/tweet-sentiment/tsent/batch"
)

var (
	// ErrEmptyPartition is returned when a partition with a positive
	// fraction receives no examples.
	ErrEmptyPartition = errors.New("partition is empty")
	// ErrFractions is returned for negative fractions or ones not summing to 1.
	ErrFractions = errors.New("split fractions must be non-negative and sum to 1")
)

// Fractions names the share of the dataset each partition receives.
type Fractions struct {
	Train      float64
	Validation float64
	Test       float64
}

// DefaultFractions is the 50/40/10 train/validation/test split.
var DefaultFractions = Fractions{Train: 0.5, Validation: 0.4, Test: 0.1}

func (f Fractions) validate() error {
	if f.Train < 0 || f.Validation < 0 || f.Test < 0 {
		return ErrFractions
	}
	if math.Abs(f.Train+f.Validation+f.Test-1) > 1e-6 {
		return ErrFractions
	}
	return nil
}

// Splits holds the three partitions and their index sets over the dataset.
type Splits struct {
	Train      []batch.Example
	Validation []batch.Example
	Test       []batch.Example

	TrainIdx      *roaring.Bitmap
	ValidationIdx *roaring.Bitmap
	TestIdx       *roaring.Bitmap
}

// Split permutes the dataset and cuts it into train, validation and test.
// Train and validation get round(f*n) examples; test gets the remainder so
// the partitions always cover the dataset.
func (d *Dataset) Split(f Fractions, rng *rand.Rand) (Splits, error) {
	if err := f.validate(); err != nil {
		return Splits{}, err
	}
	n := len(d.Examples)
	nTrain := min(int(math.Round(f.Train*float64(n))), n)
	nVal := min(int(math.Round(f.Validation*float64(n))), n-nTrain)

	perm := rng.Perm(n)
	s := Splits{
		TrainIdx:      roaring.New(),
		ValidationIdx: roaring.New(),
		TestIdx:       roaring.New(),
	}
	for i, idx := range perm {
		ex := d.Examples[idx]
		switch {
		case i < nTrain:
			s.Train = append(s.Train, ex)
			s.TrainIdx.AddInt(idx)
		case i < nTrain+nVal:
			s.Validation = append(s.Validation, ex)
			s.ValidationIdx.AddInt(idx)
		default:
			s.Test = append(s.Test, ex)
			s.TestIdx.AddInt(idx)
		}
	}

	for _, p := range []struct {
		name string
		frac float64
		size int
	}{
		{"train", f.Train, len(s.Train)},
		{"validation", f.Validation, len(s.Validation)},
		{"test", f.Test, len(s.Test)},
	} {
		if p.frac > 0 && p.size == 0 {
			return Splits{}, fmt.Errorf("%w: %s (%d examples)", ErrEmptyPartition, p.name, n)
		}
	}
	return s, nil
}

// Verify checks that the partitions are pairwise disjoint and cover n examples.
func (s Splits) Verify(n int) error {
	if roaring.And(s.TrainIdx, s.ValidationIdx).GetCardinality() != 0 ||
		roaring.And(s.TrainIdx, s.TestIdx).GetCardinality() != 0 ||
		roaring.And(s.ValidationIdx, s.TestIdx).GetCardinality() != 0 {
		return fmt.Errorf("partitions overlap")
	}
	union := roaring.FastOr(s.TrainIdx, s.ValidationIdx, s.TestIdx)
	if union.GetCardinality() != uint64(n) {
		return fmt.Errorf("partitions cover %d of %d examples", union.GetCardinality(), n)
	}
	if n > 0 && (union.Minimum() != 0 || union.Maximum() != uint32(n-1)) {
		return fmt.Errorf("partition indices out of range")
	}
	return nil
}
