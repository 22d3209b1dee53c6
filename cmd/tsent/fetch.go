package main

import (
	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/tweet-sentiment/tsent/embedding/hub"
)

func (c *CLI) newFetchCommand() *cobra.Command {
	var (
		repo     string
		withONNX bool
	)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download the pretrained tokenizer (and optionally the ONNX encoder)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if repo == "" {
				repo = c.cfg.Pretrained.Repo
			}
			files := append([]string(nil), hub.DefaultFiles...)
			if withONNX {
				files = append(files, hub.DefaultONNXFile)
			}

			client := hub.NewClient(c.logger)
			client.Progress = cmd.ErrOrStderr()
			dir, err := client.Fetch(cmd.Context(), repo, files, c.cfg.Pretrained.CacheDir)
			if err != nil {
				c.ui.Error("fetch failed", err)
				return err
			}
			c.ui.Output(dir)
			return nil
		},
	}

	cmd.Flags().StringVar(&repo, "repo", "", "pretrained repo (default pretrained.repo)")
	cmd.Flags().BoolVar(&withONNX, "onnx", false, "also fetch "+hub.DefaultONNXFile)
	return cmd
}
