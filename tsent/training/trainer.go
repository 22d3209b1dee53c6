// Package training runs the fine-tuning loop: per epoch a shuffled train
// pass, a validation pass, a checkpoint and a registry row.
package training

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/tweet-sentiment/tsent/batch"
	"github.com/ZanzyTHEbar/tweet-sentiment/tsent/checkpoint"
	"github.com/ZanzyTHEbar/tweet-sentiment/tsent/db"
	"github.com/ZanzyTHEbar/tweet-sentiment/tsent/evaluation"
	"github.com/ZanzyTHEbar/tweet-sentiment/tsent/model"
	"github.com/ZanzyTHEbar/tweet-sentiment/tsent/ports"
)

// Options are the loop hyperparameters and output locations.
type Options struct {
	Epochs           int
	LearningRate     float64
	CheckpointDir    string
	CheckpointPrefix string
	// ResumeFrom names a checkpoint loaded into the model before the first epoch.
	ResumeFrom string
	Encoder    checkpoint.EncoderInfo
	// RunConfig is stored with the run in the registry.
	RunConfig string
	// Seed is recorded in every checkpoint so the split can be rebuilt.
	Seed int64
}

// PhaseStats counts what one pass over an iterator processed.
type PhaseStats struct {
	Loss     float64
	Batches  int
	Examples int
	Dropped  int
}

// EpochResult is the outcome of one epoch.
type EpochResult struct {
	Epoch      int
	Train      PhaseStats
	Validation evaluation.Result
	Checkpoint string
}

// Summary is what Run returns. Test is set by Pipeline.Run once the
// held-out partition has been scored.
type Summary struct {
	RunID  uuid.UUID
	Epochs []EpochResult
	Test   *evaluation.Result
}

// Trainer owns the training loop. The model is borrowed and mutated in place.
type Trainer struct {
	opts       Options
	model      *model.Classifier
	train      *batch.Iterator
	validation *batch.Iterator
	registry   db.Registry
	ui         ports.Interactor
	logger     zerolog.Logger
}

// NewTrainer wires a trainer. registry may be nil; ui nil means silent.
func NewTrainer(opts Options, m *model.Classifier, train, validation *batch.Iterator, registry db.Registry, ui ports.Interactor, logger zerolog.Logger) *Trainer {
	if ui == nil {
		ui = ports.Silent{}
	}
	return &Trainer{
		opts:       opts,
		model:      m,
		train:      train,
		validation: validation,
		registry:   registry,
		ui:         ui,
		logger:     logger,
	}
}

// Run executes every epoch. Cancellation is checked between batches; the
// last written checkpoint is the recovery point.
func (t *Trainer) Run(ctx context.Context) (Summary, error) {
	if t.opts.ResumeFrom != "" {
		ck, err := checkpoint.Load(t.opts.ResumeFrom)
		if err != nil {
			return Summary{}, err
		}
		if err := ck.Apply(t.model, t.opts.Encoder); err != nil {
			return Summary{}, err
		}
		t.logger.Info().Str("checkpoint", t.opts.ResumeFrom).Int("epoch", ck.Epoch).Msg("resumed from checkpoint")
	}

	summary := Summary{RunID: uuid.New()}
	if t.registry != nil {
		run, err := t.registry.StartRun(t.opts.RunConfig)
		if err != nil {
			return Summary{}, fmt.Errorf("failed to register run: %w", err)
		}
		summary.RunID = run.ID
	}
	t.logger.Info().
		Str("run_id", summary.RunID.String()).
		Int("epochs", t.opts.Epochs).
		Int("train_examples", t.train.Len()).
		Int("validation_examples", t.validation.Len()).
		Msg("training started")

	for epoch := 0; epoch < t.opts.Epochs; epoch++ {
		res, err := t.runEpoch(ctx, summary.RunID, epoch)
		if err != nil {
			return summary, fmt.Errorf("epoch %d: %w", epoch, err)
		}
		summary.Epochs = append(summary.Epochs, res)
	}
	return summary, nil
}

func (t *Trainer) runEpoch(ctx context.Context, runID uuid.UUID, epoch int) (EpochResult, error) {
	res := EpochResult{Epoch: epoch}

	trainStats, err := t.trainPhase(ctx, epoch)
	if err != nil {
		return res, err
	}
	res.Train = trainStats

	val, err := evaluation.Evaluate(ctx, t.model, t.validation, t.logger)
	if err != nil {
		return res, fmt.Errorf("validation: %w", err)
	}
	res.Validation = val

	t.ui.Output(fmt.Sprintf("epoch %d: validation accuracy %.4f, f1 %.4f, loss %.4f (%d examples, %d dropped)",
		epoch, val.Accuracy, val.F1Micro, val.Loss, val.Examples, val.Dropped))
	t.logger.Info().
		Int("epoch", epoch).
		Float64("train_loss", trainStats.Loss).
		Int("train_dropped", trainStats.Dropped).
		Float64("val_accuracy", val.Accuracy).
		Float64("val_f1", val.F1Micro).
		Float64("val_loss", val.Loss).
		Int("val_dropped", val.Dropped).
		Msg("epoch complete")

	ck := checkpoint.New(runID, epoch, t.opts.Encoder, t.model)
	ck.Seed = t.opts.Seed
	ck.Validation = checkpoint.Metrics{
		Accuracy: val.Accuracy,
		F1Micro:  val.F1Micro,
		Loss:     val.Loss,
		Examples: val.Examples,
		Dropped:  val.Dropped,
	}
	path := checkpoint.Path(t.opts.CheckpointDir, t.opts.CheckpointPrefix, epoch)
	if err := checkpoint.Save(path, ck); err != nil {
		return res, err
	}
	res.Checkpoint = path
	t.logger.Debug().Str("path", path).Msg("checkpoint saved")

	if t.registry != nil {
		rec := &db.CheckpointRecord{
			ID:          ck.ID,
			RunID:       runID,
			Epoch:       epoch,
			Path:        path,
			ValAccuracy: val.Accuracy,
			ValF1:       val.F1Micro,
			ValLoss:     val.Loss,
			Dropped:     trainStats.Dropped + val.Dropped,
			TakenAt:     ck.CreatedAt,
		}
		if err := t.registry.RecordCheckpoint(rec); err != nil {
			// the checkpoint file is already on disk; the registry is informational
			t.logger.Warn().Err(err).Str("path", path).Msg("failed to record checkpoint")
			t.ui.Warning("checkpoint not recorded in registry: " + err.Error())
		}
	}
	return res, nil
}

func (t *Trainer) trainPhase(ctx context.Context, epoch int) (PhaseStats, error) {
	t.model.Train()
	defer t.model.Eval()
	t.train.Reset()

	stats := PhaseStats{Dropped: t.train.Dropped()}
	t.ui.StartProgress(t.train.NumBatches(), fmt.Sprintf("epoch %d", epoch))
	for {
		b, ok := t.train.Next()
		if !ok {
			break
		}
		if err := ctx.Err(); err != nil {
			t.ui.StopProgress(false, "training interrupted")
			return stats, err
		}
		if _, err := t.model.Forward(ctx, b.TokenIDs(), b.Masks()); err != nil {
			t.ui.StopProgress(false, "")
			return stats, fmt.Errorf("train batch %d: %w", stats.Batches, err)
		}
		t.model.ZeroGrad()
		loss, err := t.model.Backward(b.Labels())
		if err != nil {
			t.ui.StopProgress(false, "")
			return stats, fmt.Errorf("train batch %d: %w", stats.Batches, err)
		}
		t.model.Step(t.opts.LearningRate)

		stats.Loss += loss * float64(b.Len())
		stats.Batches++
		stats.Examples += b.Len()
		t.ui.AdvanceProgress(1)
	}
	t.ui.StopProgress(true, "")
	if stats.Dropped > 0 {
		t.logger.Debug().Int("epoch", epoch).Int("dropped", stats.Dropped).Msg("partial train batch dropped")
	}
	return stats, nil
}
