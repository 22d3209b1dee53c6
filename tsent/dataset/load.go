package dataset

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/ZanzyTHEbar/tweet-sentiment/tsent/batch"
	"github.com/ZanzyTHEbar/tweet-sentiment/tsent/config"
)

// LoadOptions drives Load.
type LoadOptions struct {
	Path           string
	SampleFraction float64
	Fractions      Fractions
	BatchSize      int
	DropPartial    bool
	Rand           *rand.Rand
}

// OptionsFromConfig builds LoadOptions from the application config.
func OptionsFromConfig(cfg *config.Config, rng *rand.Rand) LoadOptions {
	return LoadOptions{
		Path:           cfg.Data.Path,
		SampleFraction: cfg.Data.SampleFraction,
		Fractions: Fractions{
			Train:      cfg.Data.Split.Train,
			Validation: cfg.Data.Split.Validation,
			Test:       cfg.Data.Split.Test,
		},
		BatchSize:   cfg.Training.BatchSize,
		DropPartial: cfg.Training.DropPartialBatches,
		Rand:        rng,
	}
}

// Iterators are the three partition iterators Load returns.
type Iterators struct {
	Train      *batch.Iterator
	Validation *batch.Iterator
	Test       *batch.Iterator
}

// Load reads, subsamples, remaps, cleans, encodes and splits the corpus, and
// wraps each partition in a batch iterator. Only the train iterator
// shuffles.
func Load(ctx context.Context, opts LoadOptions, b *Builder) (Iterators, error) {
	rng := opts.Rand
	if rng == nil {
		rng = NewRand(0)
	}
	records, err := ReadCorpus(opts.Path)
	if err != nil {
		return Iterators{}, err
	}
	total := len(records)
	records, err = Subsample(records, opts.SampleFraction, rng)
	if err != nil {
		return Iterators{}, err
	}
	if err := RemapAll(records); err != nil {
		return Iterators{}, err
	}
	ds, err := b.Build(ctx, records)
	if err != nil {
		return Iterators{}, err
	}
	fr := opts.Fractions
	if fr == (Fractions{}) {
		fr = DefaultFractions
	}
	splits, err := ds.Split(fr, rng)
	if err != nil {
		return Iterators{}, err
	}
	if err := splits.Verify(ds.Len()); err != nil {
		return Iterators{}, err
	}

	var its Iterators
	if its.Train, err = batch.New(splits.Train, opts.BatchSize, batch.Options{Shuffle: true, DropPartial: opts.DropPartial, Rand: rng}); err != nil {
		return Iterators{}, fmt.Errorf("train iterator: %w", err)
	}
	if its.Validation, err = batch.New(splits.Validation, opts.BatchSize, batch.Options{DropPartial: opts.DropPartial}); err != nil {
		return Iterators{}, fmt.Errorf("validation iterator: %w", err)
	}
	if its.Test, err = batch.New(splits.Test, opts.BatchSize, batch.Options{DropPartial: opts.DropPartial}); err != nil {
		return Iterators{}, fmt.Errorf("test iterator: %w", err)
	}

	b.Logger.Info().
		Int("rows", total).
		Int("sampled", ds.Len()).
		Int("train", its.Train.Len()).
		Int("validation", its.Validation.Len()).
		Int("test", its.Test.Len()).
		Msg("dataset loaded")
	return its, nil
}
