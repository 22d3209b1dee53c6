package training

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
	"github.com/stretchr/testify/suite"

	"github.com/ZanzyTHEbar/tweet-sentiment/tsent/batch"
	"github.com/ZanzyTHEbar/tweet-sentiment/tsent/checkpoint"
	"github.com/ZanzyTHEbar/tweet-sentiment/tsent/config"
	"github.com/ZanzyTHEbar/tweet-sentiment/tsent/db"
	"github.com/ZanzyTHEbar/tweet-sentiment/tsent/embedding"
	"github.com/ZanzyTHEbar/tweet-sentiment/tsent/evaluation"
	"github.com/ZanzyTHEbar/tweet-sentiment/tsent/model"
	"github.com/ZanzyTHEbar/tweet-sentiment/tsent/ports"
)

var vocab = []string{"[PAD]", "[UNK]", "[CLS]", "[SEP]", "love", "hate", "day", "##s", "work", "sunny"}

type PipelineTestSuite struct {
	suite.Suite
	dir      string
	cfg      *config.Config
	registry *db.MockRegistry
}

func (s *PipelineTestSuite) SetupTest() {
	s.dir = s.T().TempDir()

	var corpus bytes.Buffer
	for i := 0; i < 20; i++ {
		polarity, text := 0, "@boss I hate work days http://t.co/abc"
		if i%2 == 1 {
			polarity, text = 4, "I love this sunny day!"
		}
		fmt.Fprintf(&corpus, "\"%d\",\"%d\",\"Mon Apr 06 22:19:45 PDT 2009\",\"NO_QUERY\",\"user%d\",\"%s\"\n", polarity, 1000+i, i, text)
	}
	dataPath := filepath.Join(s.dir, "corpus.csv")
	s.Require().NoError(os.WriteFile(dataPath, corpus.Bytes(), 0o644))

	vocabPath := filepath.Join(s.dir, "vocab.txt")
	s.Require().NoError(os.WriteFile(vocabPath, []byte(strings.Join(vocab, "\n")+"\n"), 0o644))

	s.cfg = &config.Config{
		Data: config.DataConfig{
			Path:           dataPath,
			SampleFraction: 1,
			Split:          config.SplitConfig{Train: 0.5, Validation: 0.4, Test: 0.1},
			StopWords:      "english",
			Workers:        2,
		},
		Training: config.TrainingConfig{
			BatchSize:          4,
			Epochs:             1,
			LearningRate:       1e-3,
			MaxLength:          8,
			DropPartialBatches: true,
			Seed:               7,
		},
		Pretrained: config.PretrainedConfig{
			Repo:      "bert-base-uncased",
			VocabPath: vocabPath,
			Provider:  "hash",
			Dims:      16,
		},
		Checkpoint: config.CheckpointConfig{Dir: filepath.Join(s.dir, "models"), Prefix: "sentiment"},
	}
	s.Require().NoError(s.cfg.Validate())
	s.registry = db.NewMockRegistry()
}

func (s *PipelineTestSuite) build() *Pipeline {
	p, err := Build(context.Background(), s.cfg, Deps{
		Registry:   s.registry,
		Interactor: ports.Silent{},
		Logger:     zerolog.Nop(),
	})
	s.Require().NoError(err)
	return p
}

func (s *PipelineTestSuite) TestEndToEndOneEpoch() {
	p := s.build()
	defer p.Close()

	its := p.Iterators
	s.Equal(10, its.Train.Len())
	s.Equal(8, its.Validation.Len())
	s.Equal(2, its.Test.Len())

	summary, err := p.Run(context.Background())
	s.Require().NoError(err)
	s.Require().Len(summary.Epochs, 1)

	ep := summary.Epochs[0]
	s.Equal(2, ep.Train.Batches)
	s.Equal(8, ep.Train.Examples)
	s.Equal(2, ep.Train.Dropped)
	s.Equal(8, ep.Validation.Examples)
	s.Equal(0, ep.Validation.Dropped)
	s.True(ep.Validation.Accuracy >= 0 && ep.Validation.Accuracy <= 1)
	s.True(ep.Validation.F1Micro >= 0 && ep.Validation.F1Micro <= 1)

	entries, err := checkpoint.List(s.cfg.Checkpoint.Dir, s.cfg.Checkpoint.Prefix)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(0, entries[0].Epoch)
	s.Equal(checkpoint.Path(s.cfg.Checkpoint.Dir, "sentiment", 0), ep.Checkpoint)

	files, err := os.ReadDir(s.cfg.Checkpoint.Dir)
	s.Require().NoError(err)
	s.Len(files, 1, "no temp files left behind")

	ck, err := checkpoint.Load(ep.Checkpoint)
	s.Require().NoError(err)
	s.Equal(summary.RunID, ck.RunID)
	s.Equal(16, ck.Encoder.Dims)
	s.Equal(ep.Validation.Accuracy, ck.Validation.Accuracy)

	recs, err := s.registry.ListCheckpoints(summary.RunID)
	s.Require().NoError(err)
	s.Require().Len(recs, 1)
	s.Equal(ep.Checkpoint, recs[0].Path)
	s.Equal(ck.ID, recs[0].ID)
	s.Equal(2, recs[0].Dropped)

	s.Equal(int64(7), ck.Seed)

	s.Require().NotNil(summary.Test, "test partition scored after training")
	s.Equal(0, summary.Test.Examples)
	s.Equal(2, summary.Test.Dropped)
}

func (s *PipelineTestSuite) TestRunScoresTestPartition() {
	s.cfg.Training.DropPartialBatches = false
	p := s.build()

	summary, err := p.Run(context.Background())
	s.Require().NoError(err)
	s.Require().NotNil(summary.Test)
	s.Equal(2, summary.Test.Examples)
	s.Equal(0, summary.Test.Dropped)
	s.Equal(1, summary.Test.Batches)
	s.True(summary.Test.Accuracy >= 0 && summary.Test.Accuracy <= 1)

	direct, err := evaluation.Evaluate(context.Background(), p.Model, p.Iterators.Test, zerolog.Nop())
	s.Require().NoError(err)
	s.Equal(direct.Accuracy, summary.Test.Accuracy)
	s.Equal(direct.Loss, summary.Test.Loss)
}

func (s *PipelineTestSuite) TestUnseededRunRecordsSeed() {
	s.cfg.Training.Seed = 0
	p := s.build()

	summary, err := p.Run(context.Background())
	s.Require().NoError(err)
	ck, err := checkpoint.Load(summary.Epochs[0].Checkpoint)
	s.Require().NoError(err)
	s.NotZero(ck.Seed)
	s.Zero(s.cfg.Training.Seed, "caller config left untouched")

	runs, err := s.registry.ListRuns()
	s.Require().NoError(err)
	s.Require().Len(runs, 1)
	s.Contains(runs[0].Config, fmt.Sprintf(`"Seed":%d`, ck.Seed))
}

func (s *PipelineTestSuite) TestResumeRejectsOtherEncoder() {
	first := s.build()
	summary, err := first.Trainer.Run(context.Background())
	s.Require().NoError(err)

	s.cfg.Training.ResumeFrom = summary.Epochs[0].Checkpoint
	s.cfg.Pretrained.Repo = "distilbert-base-uncased"
	second := s.build()
	_, err = second.Trainer.Run(context.Background())
	s.ErrorIs(err, checkpoint.ErrIncompatibleCheckpoint)
}

func (s *PipelineTestSuite) TestBuildValidatesConfig() {
	s.cfg.Pretrained.Provider = "onxx"
	_, err := Build(context.Background(), s.cfg, Deps{Registry: s.registry, Logger: zerolog.Nop()})
	s.Error(err)
}

func (s *PipelineTestSuite) TestCheckpointPerEpoch() {
	s.cfg.Training.Epochs = 3
	p := s.build()

	summary, err := p.Trainer.Run(context.Background())
	s.Require().NoError(err)
	s.Len(summary.Epochs, 3)

	entries, err := checkpoint.List(s.cfg.Checkpoint.Dir, s.cfg.Checkpoint.Prefix)
	s.Require().NoError(err)
	s.Len(entries, 3)

	runs, err := s.registry.ListRuns()
	s.Require().NoError(err)
	s.Len(runs, 1)
}

func (s *PipelineTestSuite) TestResume() {
	first := s.build()
	summary, err := first.Trainer.Run(context.Background())
	s.Require().NoError(err)

	s.cfg.Training.Epochs = 0
	s.cfg.Training.ResumeFrom = summary.Epochs[0].Checkpoint
	s.cfg.Training.Seed = 99
	second := s.build()
	s.NotEqual(first.Model.Head.W.RawMatrix().Data, second.Model.Head.W.RawMatrix().Data)

	_, err = second.Trainer.Run(context.Background())
	s.Require().NoError(err)
	s.Equal(first.Model.Head.W.RawMatrix().Data, second.Model.Head.W.RawMatrix().Data)
}

func (s *PipelineTestSuite) TestResumeMissingCheckpoint() {
	s.cfg.Training.ResumeFrom = filepath.Join(s.dir, "models", "nope.ckpt")
	p := s.build()
	_, err := p.Trainer.Run(context.Background())
	s.ErrorIs(err, os.ErrNotExist)
}

func (s *PipelineTestSuite) TestKeepPartialBatches() {
	s.cfg.Training.DropPartialBatches = false
	p := s.build()

	summary, err := p.Trainer.Run(context.Background())
	s.Require().NoError(err)
	ep := summary.Epochs[0]
	s.Equal(3, ep.Train.Batches)
	s.Equal(10, ep.Train.Examples)
	s.Equal(0, ep.Train.Dropped)
}

func (s *PipelineTestSuite) TestMissingCorpus() {
	s.cfg.Data.Path = filepath.Join(s.dir, "missing.csv")
	_, err := Build(context.Background(), s.cfg, Deps{Registry: s.registry, Logger: zerolog.Nop()})
	s.ErrorIs(err, os.ErrNotExist)
}

func (s *PipelineTestSuite) TestRegistryDisabled() {
	s.cfg.Registry.Enabled = false
	p, err := Build(context.Background(), s.cfg, Deps{Logger: zerolog.Nop()})
	s.Require().NoError(err)
	s.Nil(p.Registry)

	summary, err := p.Trainer.Run(context.Background())
	s.Require().NoError(err)
	s.Len(summary.Epochs, 1)
}

func TestPipelineTestSuite(t *testing.T) {
	suite.Run(t, new(PipelineTestSuite))
}

func trainerFixture(t *testing.T, n int) (*Trainer, *batch.Iterator) {
	t.Helper()
	examples := make([]batch.Example, n)
	for i := range examples {
		examples[i] = batch.Example{TokenIDs: []int64{101, int64(i), 102}, AttentionMask: []int64{1, 1, 1}, Label: i % 2}
	}
	train, err := batch.New(examples, 2, batch.Options{Shuffle: true, DropPartial: true, Rand: rand.New(rand.NewSource(1))})
	require.NoError(t, err)
	val, err := batch.New(examples, 2, batch.Options{DropPartial: true})
	require.NoError(t, err)

	m := model.New(embedding.NewHashEncoder(4), rand.New(rand.NewSource(1)))
	opts := Options{Epochs: 2, LearningRate: 0.1, CheckpointDir: t.TempDir(), CheckpointPrefix: "sentiment"}
	return NewTrainer(opts, m, train, val, nil, nil, zerolog.Nop()), train
}

func TestTrainer_Cancelled(t *testing.T) {
	tr, _ := trainerFixture(t, 6)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tr.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	entries, err := checkpoint.List(tr.opts.CheckpointDir, "sentiment")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTrainer_LeavesModelInEvalMode(t *testing.T) {
	tr, _ := trainerFixture(t, 5)
	summary, err := tr.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, tr.model.Training())
	require.Len(t, summary.Epochs, 2)
	assert.Equal(t, 1, summary.Epochs[0].Train.Dropped)
	assert.Equal(t, 4, summary.Epochs[0].Train.Examples)
}
