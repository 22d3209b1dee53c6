package dataset

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/tweet-sentiment/tsent/batch"
	"github.com/ZanzyTHEbar/tweet-sentiment/tsent/config"
	"github.com/ZanzyTHEbar/tweet-sentiment/tsent/embedding/tokenizer"
	"github.com/ZanzyTHEbar/tweet-sentiment/tsent/textclean"
)

var testVocab = []string{"[PAD]", "[UNK]", "[CLS]", "[SEP]", "love", "hate", "day", "##s", "work"}

func corpusRow(polarity, i int, text string) string {
	return fmt.Sprintf("\"%d\",\"%d\",\"Mon Apr 06 22:19:45 PDT 2009\",\"NO_QUERY\",\"user%d\",\"%s\"\n", polarity, 1467810000+i, i, text)
}

func writeCorpus(t *testing.T, n int) string {
	t.Helper()
	var buf bytes.Buffer
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			buf.WriteString(corpusRow(0, i, "@someone I hate work days http://t.co/x"))
		} else {
			buf.WriteString(corpusRow(4, i, "I love this day!"))
		}
	}
	path := filepath.Join(t.TempDir(), "corpus.csv")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func newBuilder(maxLen int) *Builder {
	return &Builder{
		Cleaner:   textclean.NewCleaner(textclean.English()),
		Tokenizer: tokenizer.NewWordPiece(testVocab, maxLen),
		MaxLength: maxLen,
		Workers:   3,
		ChunkSize: 3,
		Logger:    zerolog.Nop(),
	}
}

func TestParseCorpus(t *testing.T) {
	in := corpusRow(0, 1, "is upset that he can't update his Facebook") +
		"\"4\",\"2\",\"date\",\"NO_QUERY\",\"bob\",\"caf\xe9 time\"\n"

	records, err := ParseCorpus(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, 0, records[0].Polarity)
	assert.Equal(t, "user1", records[0].User)
	assert.Equal(t, "NO_QUERY", records[0].Flag)
	assert.Equal(t, "is upset that he can't update his Facebook", records[0].Text)
	assert.Equal(t, 4, records[1].Polarity)
	assert.Equal(t, "café time", records[1].Text)
}

func TestParseCorpus_Malformed(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{name: "too few columns", in: "\"0\",\"1\",\"date\",\"flag\",\"text\"\n"},
		{name: "too many columns", in: "\"0\",\"1\",\"date\",\"flag\",\"user\",\"text\",\"extra\"\n"},
		{name: "non integer target", in: corpusRow(0, 1, "ok") + "\"pos\",\"1\",\"d\",\"f\",\"u\",\"t\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCorpus(strings.NewReader(tt.in))
			assert.ErrorIs(t, err, ErrMalformedRow)
		})
	}
}

func TestReadCorpus_Missing(t *testing.T) {
	_, err := ReadCorpus(filepath.Join(t.TempDir(), "missing.csv"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRemapPolarity(t *testing.T) {
	got, err := RemapPolarity(0)
	require.NoError(t, err)
	assert.Equal(t, 0, got)

	got, err = RemapPolarity(4)
	require.NoError(t, err)
	assert.Equal(t, 1, got)

	for _, bad := range []int{1, 2, 3, 5, -1} {
		_, err := RemapPolarity(bad)
		assert.ErrorIs(t, err, ErrUnknownPolarity, "polarity %d", bad)
	}

	records := []RawRecord{{Polarity: 4}, {Polarity: 0}}
	require.NoError(t, RemapAll(records))
	assert.Equal(t, 1, records[0].Label)
	assert.Equal(t, 0, records[1].Label)

	assert.ErrorIs(t, RemapAll([]RawRecord{{Polarity: 2}}), ErrUnknownPolarity)
}

func TestSubsample(t *testing.T) {
	records := make([]RawRecord, 100)
	for i := range records {
		records[i].ID = fmt.Sprint(i)
	}

	got, err := Subsample(records, 0.1, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Len(t, got, 10)
	seen := make(map[string]bool)
	for _, r := range got {
		assert.False(t, seen[r.ID], "duplicate %s", r.ID)
		seen[r.ID] = true
	}

	all, err := Subsample(records, 1, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Len(t, all, 100)

	_, err = Subsample(records, 0, rand.New(rand.NewSource(1)))
	assert.ErrorIs(t, err, ErrFraction)
	_, err = Subsample(records, 1.5, rand.New(rand.NewSource(1)))
	assert.ErrorIs(t, err, ErrFraction)
}

func TestBuilder_Build(t *testing.T) {
	records, err := ReadCorpus(writeCorpus(t, 7))
	require.NoError(t, err)
	require.NoError(t, RemapAll(records))

	ds, err := newBuilder(8).Build(context.Background(), records)
	require.NoError(t, err)
	require.Equal(t, 7, ds.Len())

	for i, ex := range ds.Examples {
		assert.Len(t, ex.TokenIDs, 8)
		assert.Len(t, ex.AttentionMask, 8)
		assert.Equal(t, records[i].Label, ex.Label, "order preserved at %d", i)
	}
	// "hate work days" -> hate work day ##s
	assert.Equal(t, []int64{2, 5, 8, 6, 7, 3, 0, 0}, ds.Examples[0].TokenIDs)
	// "love day"
	assert.Equal(t, []int64{2, 4, 6, 3, 0, 0, 0, 0}, ds.Examples[1].TokenIDs)
}

type badTokenizer struct{}

func (badTokenizer) Tokenize(texts []string) ([][]int64, [][]int64, error) {
	ids := make([][]int64, len(texts))
	masks := make([][]int64, len(texts))
	for i := range texts {
		ids[i] = []int64{101, 102}
		masks[i] = []int64{1, 1}
	}
	return ids, masks, nil
}

func TestBuilder_LengthMismatch(t *testing.T) {
	b := newBuilder(8)
	b.Tokenizer = badTokenizer{}
	_, err := b.Build(context.Background(), []RawRecord{{Text: "hello"}})
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestBuilder_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newBuilder(8).Build(ctx, []RawRecord{{Text: "hello"}})
	assert.Error(t, err)
}

func TestDataset_Split(t *testing.T) {
	for _, n := range []int{10, 20, 33, 101} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			ds := &Dataset{Examples: make([]batch.Example, n)}
			for i := range ds.Examples {
				ds.Examples[i] = batch.Example{TokenIDs: []int64{int64(i)}}
			}

			s, err := ds.Split(DefaultFractions, rand.New(rand.NewSource(3)))
			require.NoError(t, err)
			require.NoError(t, s.Verify(n))
			assert.Equal(t, n, len(s.Train)+len(s.Validation)+len(s.Test))
			assert.EqualValues(t, len(s.Train), s.TrainIdx.GetCardinality())
			assert.EqualValues(t, len(s.Validation), s.ValidationIdx.GetCardinality())
			assert.EqualValues(t, len(s.Test), s.TestIdx.GetCardinality())

			for _, ex := range s.Train {
				assert.True(t, s.TrainIdx.ContainsInt(int(ex.TokenIDs[0])))
			}
		})
	}
}

func TestDataset_SplitSizes(t *testing.T) {
	ds := &Dataset{Examples: make([]batch.Example, 20)}
	s, err := ds.Split(DefaultFractions, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Len(t, s.Train, 10)
	assert.Len(t, s.Validation, 8)
	assert.Len(t, s.Test, 2)
}

func TestDataset_SplitErrors(t *testing.T) {
	ds := &Dataset{Examples: make([]batch.Example, 20)}

	_, err := ds.Split(Fractions{Train: 0.5, Validation: 0.5, Test: 0.5}, rand.New(rand.NewSource(1)))
	assert.ErrorIs(t, err, ErrFractions)

	_, err = ds.Split(Fractions{Train: 1.2, Validation: -0.2}, rand.New(rand.NewSource(1)))
	assert.ErrorIs(t, err, ErrFractions)

	tiny := &Dataset{Examples: make([]batch.Example, 2)}
	_, err = tiny.Split(DefaultFractions, rand.New(rand.NewSource(1)))
	assert.ErrorIs(t, err, ErrEmptyPartition)
}

func TestSplits_VerifyDetectsOverlap(t *testing.T) {
	ds := &Dataset{Examples: make([]batch.Example, 10)}
	s, err := ds.Split(DefaultFractions, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	first := s.TestIdx.Minimum()
	s.TrainIdx.Add(first)
	assert.Error(t, s.Verify(10))
}

func TestLoad(t *testing.T) {
	path := writeCorpus(t, 20)
	opts := LoadOptions{
		Path:           path,
		SampleFraction: 1,
		Fractions:      DefaultFractions,
		BatchSize:      4,
		DropPartial:    true,
		Rand:           rand.New(rand.NewSource(9)),
	}

	its, err := Load(context.Background(), opts, newBuilder(8))
	require.NoError(t, err)

	assert.Equal(t, 10, its.Train.Len())
	assert.Equal(t, 8, its.Validation.Len())
	assert.Equal(t, 2, its.Test.Len())

	assert.Equal(t, 2, its.Train.NumBatches())
	assert.Equal(t, 2, its.Train.Dropped())
	assert.Equal(t, 2, its.Validation.NumBatches())
	assert.Equal(t, 0, its.Test.NumBatches())
	assert.Equal(t, 2, its.Test.Dropped())

	b, ok := its.Train.Next()
	require.True(t, ok)
	assert.Equal(t, 4, b.Len())
	for _, ids := range b.TokenIDs() {
		assert.Len(t, ids, 8)
	}
}

func TestLoad_Subsamples(t *testing.T) {
	opts := LoadOptions{
		Path:           writeCorpus(t, 100),
		SampleFraction: 0.2,
		BatchSize:      2,
		Rand:           rand.New(rand.NewSource(5)),
	}
	its, err := Load(context.Background(), opts, newBuilder(8))
	require.NoError(t, err)
	assert.Equal(t, 20, its.Train.Len()+its.Validation.Len()+its.Test.Len())
}

func TestLoad_BadPolarity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte(corpusRow(2, 1, "neutral tweet")), 0o644))

	_, err := Load(context.Background(), LoadOptions{Path: path, SampleFraction: 1, BatchSize: 1}, newBuilder(8))
	assert.ErrorIs(t, err, ErrUnknownPolarity)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.Data.Path = "x.csv"
	cfg.Data.SampleFraction = 0.1
	cfg.Data.Split = config.SplitConfig{Train: 0.5, Validation: 0.4, Test: 0.1}
	cfg.Training.BatchSize = 1024
	cfg.Training.DropPartialBatches = true

	opts := OptionsFromConfig(cfg, nil)
	assert.Equal(t, "x.csv", opts.Path)
	assert.Equal(t, DefaultFractions, opts.Fractions)
	assert.Equal(t, 1024, opts.BatchSize)
	assert.True(t, opts.DropPartial)
}
