package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/tweet-sentiment/tsent/checkpoint"
	"github.com/ZanzyTHEbar/tweet-sentiment/tsent/db"
)

func (c *CLI) newCheckpointsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "checkpoints",
		Short: "List checkpoints on disk and runs in the registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := checkpoint.List(c.cfg.Checkpoint.Dir, c.cfg.Checkpoint.Prefix)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				c.ui.Output("no checkpoints in " + c.cfg.Checkpoint.Dir)
			}
			for _, e := range entries {
				c.ui.Output(fmt.Sprintf("%4d  %s", e.Epoch, e.Path))
			}

			if !c.cfg.Registry.Enabled {
				return nil
			}
			reg, err := db.NewRunRegistry(c.cfg.Registry.DSN, c.logger)
			if err != nil {
				return err
			}
			defer reg.Close()
			return printRuns(c, reg)
		},
	}
}

func printRuns(c *CLI, reg db.Registry) error {
	runs, err := reg.ListRuns()
	if err != nil {
		return err
	}
	for _, run := range runs {
		c.ui.Output(fmt.Sprintf("run %s started %s", run.ID, run.StartedAt.Local().Format("2006-01-02 15:04:05")))
		recs, err := reg.ListCheckpoints(run.ID)
		if err != nil {
			return err
		}
		for _, r := range recs {
			c.ui.Output(fmt.Sprintf("  epoch %3d  acc %.4f  f1 %.4f  loss %10.4f  dropped %d  %s",
				r.Epoch, r.ValAccuracy, r.ValF1, r.ValLoss, r.Dropped, r.Path))
		}
	}
	return nil
}
