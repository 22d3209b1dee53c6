package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/tweet-sentiment/tsent/training"
)

func (c *CLI) newTrainCommand() *cobra.Command {
	var (
		epochs int
		resume string
	)

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train the sentiment head and checkpoint every epoch",
		Example: `  tsent train
  tsent train --epochs 3 --config config.yaml
  tsent train --resume models/sentiment4.ckpt`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("epochs") {
				c.cfg.Training.Epochs = epochs
			}
			if resume != "" {
				c.cfg.Training.ResumeFrom = resume
			}
			if err := c.cfg.Validate(); err != nil {
				return err
			}

			p, err := training.Build(cmd.Context(), c.cfg, training.Deps{Interactor: c.ui, Logger: c.logger})
			if err != nil {
				c.ui.Error("failed to prepare training", err)
				return err
			}
			defer p.Close()

			start := time.Now()
			summary, err := p.Run(cmd.Context())
			if err != nil {
				c.ui.Error("training stopped", err)
				return err
			}
			c.logger.Debug().Dur("duration", time.Since(start)).Msg("training completed")

			if n := len(summary.Epochs); n > 0 {
				last := summary.Epochs[n-1]
				c.ui.Output(fmt.Sprintf("run %s: %d epochs, validation accuracy %.4f, last checkpoint %s",
					summary.RunID, n, last.Validation.Accuracy, last.Checkpoint))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&epochs, "epochs", 0, "override training.epochs")
	cmd.Flags().StringVar(&resume, "resume", "", "checkpoint to load before the first epoch")
	return cmd
}
