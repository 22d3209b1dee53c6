// Package batch groups encoded examples into fixed-size batches for the
// training and evaluation passes.
package batch

import (
	"errors"
	"math/rand"
	"time"
)

// ErrBatchSize is returned for a non-positive batch size.
var ErrBatchSize = errors.New("batch size must be positive")

// Example is one encoded tweet: fixed-length token ids, the matching
// attention mask and the 0/1 sentiment label.
type Example struct {
	TokenIDs      []int64
	AttentionMask []int64
	Label         int
}

// Batch is an ordered group of examples together with their positions in the
// iterator's example slice.
type Batch struct {
	Examples []Example
	Indices  []int
}

func (b Batch) Len() int { return len(b.Examples) }

func (b Batch) TokenIDs() [][]int64 {
	out := make([][]int64, len(b.Examples))
	for i, ex := range b.Examples {
		out[i] = ex.TokenIDs
	}
	return out
}

func (b Batch) Masks() [][]int64 {
	out := make([][]int64, len(b.Examples))
	for i, ex := range b.Examples {
		out[i] = ex.AttentionMask
	}
	return out
}

func (b Batch) Labels() []int {
	out := make([]int, len(b.Examples))
	for i, ex := range b.Examples {
		out[i] = ex.Label
	}
	return out
}

// Options controls iteration order and the handling of the trailing batch.
type Options struct {
	// Shuffle reorders the examples on every Reset.
	Shuffle bool
	// DropPartial skips a trailing batch smaller than the batch size.
	DropPartial bool
	// Rand drives shuffling; nil means a time-seeded source.
	Rand *rand.Rand
}

// Iterator yields batches over a borrowed example slice. It is not safe for
// concurrent use.
type Iterator struct {
	examples []Example
	size     int
	opts     Options
	order    []int
	pos      int
}

// New returns an iterator positioned at the first batch. A shuffling
// iterator is shuffled immediately.
func New(examples []Example, size int, opts Options) (*Iterator, error) {
	if size <= 0 {
		return nil, ErrBatchSize
	}
	if opts.Shuffle && opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	it := &Iterator{
		examples: examples,
		size:     size,
		opts:     opts,
		order:    make([]int, len(examples)),
	}
	for i := range it.order {
		it.order[i] = i
	}
	it.Reset()
	return it, nil
}

// Reset rewinds to the first batch and reshuffles when shuffling is on.
func (it *Iterator) Reset() {
	it.pos = 0
	if it.opts.Shuffle {
		it.opts.Rand.Shuffle(len(it.order), func(i, j int) {
			it.order[i], it.order[j] = it.order[j], it.order[i]
		})
	}
}

// Next returns the next batch, or false once the pass is exhausted.
func (it *Iterator) Next() (Batch, bool) {
	remaining := len(it.order) - it.pos
	if remaining <= 0 || (it.opts.DropPartial && remaining < it.size) {
		return Batch{}, false
	}
	end := min(it.pos+it.size, len(it.order))
	b := Batch{
		Examples: make([]Example, 0, end-it.pos),
		Indices:  make([]int, 0, end-it.pos),
	}
	for _, idx := range it.order[it.pos:end] {
		b.Examples = append(b.Examples, it.examples[idx])
		b.Indices = append(b.Indices, idx)
	}
	it.pos = end
	return b, true
}

// NumBatches is the number of batches one pass yields.
func (it *Iterator) NumBatches() int {
	n := len(it.examples) / it.size
	if !it.opts.DropPartial && len(it.examples)%it.size != 0 {
		n++
	}
	return n
}

// Dropped is the number of examples a pass skips.
func (it *Iterator) Dropped() int {
	if !it.opts.DropPartial {
		return 0
	}
	return len(it.examples) % it.size
}

// Len is the number of examples behind the iterator.
func (it *Iterator) Len() int { return len(it.examples) }

func (it *Iterator) BatchSize() int { return it.size }
