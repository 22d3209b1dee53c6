// Command tsent fine-tunes and evaluates a tweet sentiment classifier.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCLI().rootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
