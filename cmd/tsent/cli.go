package main

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	internal "github.com/ZanzyTHEbar/tweet-sentiment/tsent"
	"github.com/ZanzyTHEbar/tweet-sentiment/tsent/config"
	"github.com/ZanzyTHEbar/tweet-sentiment/tsent/ports"
)

// CLI holds the state shared by every subcommand. It is populated in the
// root command's PersistentPreRunE.
type CLI struct {
	configPath string
	verbose    bool

	cfg    *config.Config
	logger zerolog.Logger
	ui     *ports.Console
}

func newCLI() *CLI {
	return &CLI{logger: internal.GetLogger()}
}

func (c *CLI) rootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   internal.DefaultAppCMDShortCut,
		Short: "Fine-tune a sentiment classifier on Sentiment140 tweets",
		Long: `tsent trains a two-class sentiment head on top of a pretrained BERT encoder.
Tweets are cleaned, tokenized to a fixed length, split into train, validation
and test partitions, and a checkpoint is written after every epoch.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(c.configPath)
			if err != nil {
				return err
			}
			if c.verbose {
				cfg.Log.Level = "debug"
			}
			c.cfg = cfg
			c.logger = internal.NewLogger(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Pretty)
			c.ui = ports.NewConsole(cmd.OutOrStdout(), cmd.ErrOrStderr())
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default is ./config.yaml)")
	cmd.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(
		c.newTrainCommand(),
		c.newEvaluateCommand(),
		c.newFetchCommand(),
		c.newCheckpointsCommand(),
		c.newCleanCommand(),
	)
	return cmd
}
