package dataset

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/ZanzyTHEbar/tweet-sentiment/tsent/batch"
	"github.com/ZanzyTHEbar/tweet-sentiment/tsent/embedding/tokenizer"
	"github.com/ZanzyTHEbar/tweet-sentiment/tsent/textclean"
)

// ErrLengthMismatch is returned when the tokenizer yields a row whose ids or
// mask length differs from MaxLength.
var ErrLengthMismatch = errors.New("encoded length differs from max length")

const defaultChunkSize = 1024

// Dataset is the ordered list of encoded examples built from the corpus.
type Dataset struct {
	Examples  []batch.Example
	MaxLength int
}

func (d *Dataset) Len() int { return len(d.Examples) }

// Builder cleans and tokenizes records into a Dataset.
type Builder struct {
	Cleaner   *textclean.Cleaner
	Tokenizer tokenizer.Tokenizer
	MaxLength int
	Workers   int
	ChunkSize int
	Logger    zerolog.Logger
}

// Build encodes records in chunks on a bounded pool. Output order matches
// input order.
func (b *Builder) Build(ctx context.Context, records []RawRecord) (*Dataset, error) {
	if b.Tokenizer == nil {
		return nil, fmt.Errorf("dataset builder requires a tokenizer")
	}
	chunk := b.ChunkSize
	if chunk <= 0 {
		chunk = defaultChunkSize
	}
	workers := max(b.Workers, 1)

	examples := make([]batch.Example, len(records))
	p := pool.New().WithMaxGoroutines(workers).WithContext(ctx).WithCancelOnError()
	for start := 0; start < len(records); start += chunk {
		end := min(start+chunk, len(records))
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return b.encodeChunk(records[start:end], examples[start:end])
		})
	}
	if err := p.Wait(); err != nil {
		return nil, fmt.Errorf("failed to encode corpus: %w", err)
	}

	b.Logger.Debug().Int("examples", len(examples)).Int("max_length", b.MaxLength).Msg("encoded corpus")
	return &Dataset{Examples: examples, MaxLength: b.MaxLength}, nil
}

func (b *Builder) encodeChunk(records []RawRecord, out []batch.Example) error {
	texts := make([]string, len(records))
	for i, r := range records {
		if b.Cleaner != nil {
			texts[i] = b.Cleaner.Clean(r.Text)
		} else {
			texts[i] = r.Text
		}
	}
	ids, masks, err := b.Tokenizer.Tokenize(texts)
	if err != nil {
		return err
	}
	if len(ids) != len(records) || len(masks) != len(records) {
		return fmt.Errorf("%w: tokenizer returned %d rows for %d texts", ErrLengthMismatch, len(ids), len(records))
	}
	for i := range records {
		if len(ids[i]) != b.MaxLength || len(masks[i]) != b.MaxLength {
			return fmt.Errorf("%w: record %s has %d ids and %d mask entries, want %d",
				ErrLengthMismatch, records[i].ID, len(ids[i]), len(masks[i]), b.MaxLength)
		}
		out[i] = batch.Example{TokenIDs: ids[i], AttentionMask: masks[i], Label: records[i].Label}
	}
	return nil
}
