package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/tweet-sentiment/tsent/textclean"
	"github.com/ZanzyTHEbar/tweet-sentiment/tsent/training"
)

func (c *CLI) newCleanCommand() *cobra.Command {
	var showTokens bool

	cmd := &cobra.Command{
		Use:     "clean <text>",
		Short:   "Show how a tweet is cleaned (and tokenized) before training",
		Example: `  tsent clean "@bob I LOVE this!!! http://t.co/x" --tokens`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sw, err := textclean.LoadStopWords(cmd.Context(), c.cfg.Data.StopWords)
			if err != nil {
				return err
			}
			cleaned := textclean.NewCleaner(sw).Clean(strings.Join(args, " "))
			c.ui.Output(cleaned)
			if !showTokens {
				return nil
			}

			tok, err := training.NewTokenizer(cmd.Context(), c.cfg, nil, c.logger)
			if err != nil {
				return err
			}
			ids, masks, err := tok.Tokenize([]string{cleaned})
			if err != nil {
				return err
			}
			c.ui.Output(fmt.Sprint(ids[0]))
			c.ui.Output(fmt.Sprint(masks[0]))
			return nil
		},
	}

	cmd.Flags().BoolVar(&showTokens, "tokens", false, "also print token ids and attention mask")
	return cmd
}
