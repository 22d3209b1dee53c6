package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/tweet-sentiment/tsent/batch"
	"github.com/ZanzyTHEbar/tweet-sentiment/tsent/checkpoint"
	"github.com/ZanzyTHEbar/tweet-sentiment/tsent/evaluation"
	"github.com/ZanzyTHEbar/tweet-sentiment/tsent/training"
)

func (c *CLI) newEvaluateCommand() *cobra.Command {
	var (
		ckptPath string
		split    string
	)

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score a checkpoint on the held-out split",
		Long: `Rebuilds the dataset with the seed recorded in the checkpoint, loads the
checkpoint into a fresh classifier and prints accuracy, micro F1 and a
per-class report. Without --checkpoint the latest checkpoint in
checkpoint.dir is used.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if ckptPath == "" {
				entries, err := checkpoint.List(c.cfg.Checkpoint.Dir, c.cfg.Checkpoint.Prefix)
				if err != nil {
					return err
				}
				if len(entries) == 0 {
					return fmt.Errorf("no checkpoints in %s", c.cfg.Checkpoint.Dir)
				}
				ckptPath = entries[len(entries)-1].Path
			}
			ck, err := checkpoint.Load(ckptPath)
			if err != nil {
				return err
			}
			if err := ck.Encoder.Matches(checkpoint.EncoderInfo{Provider: c.cfg.Pretrained.Provider, Repo: c.cfg.Pretrained.Repo}); err != nil {
				return err
			}
			// the split is only held out if it is rebuilt with the training seed
			switch {
			case ck.Seed == 0 && c.cfg.Training.Seed == 0:
				return errors.New("checkpoint records no seed and training.seed is 0: the held-out split cannot be rebuilt")
			case ck.Seed != 0 && ck.Seed != c.cfg.Training.Seed:
				if c.cfg.Training.Seed != 0 {
					c.ui.Warning(fmt.Sprintf("using the checkpoint's seed %d instead of training.seed %d", ck.Seed, c.cfg.Training.Seed))
				}
				c.cfg.Training.Seed = ck.Seed
			}

			// the encoder must produce what the head was trained on
			c.cfg.Pretrained.Dims = ck.Encoder.Dims
			c.cfg.Training.Epochs = 0
			c.cfg.Training.ResumeFrom = ""
			c.cfg.Registry.Enabled = false

			p, err := training.Build(cmd.Context(), c.cfg, training.Deps{Interactor: c.ui, Logger: c.logger})
			if err != nil {
				return err
			}
			defer p.Close()
			if err := ck.Apply(p.Model, training.EncoderInfo(c.cfg, p.Model.Encoder)); err != nil {
				return err
			}

			var it *batch.Iterator
			switch split {
			case "test":
				it = p.Iterators.Test
			case "validation":
				it = p.Iterators.Validation
			default:
				return errors.New("--split must be test or validation")
			}

			res, err := evaluation.Evaluate(cmd.Context(), p.Model, it, c.logger)
			if err != nil {
				return err
			}
			c.ui.Output(res.Report.String())
			c.ui.Output(fmt.Sprintf("%s: accuracy %.4f, f1 %.4f, loss %.4f (%d examples, %d dropped)",
				split, res.Accuracy, res.F1Micro, res.Loss, res.Examples, res.Dropped))
			return nil
		},
	}

	cmd.Flags().StringVar(&ckptPath, "checkpoint", "", "checkpoint file to evaluate")
	cmd.Flags().StringVar(&split, "split", "test", "partition to score: test or validation")
	return cmd
}
