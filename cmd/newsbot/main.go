package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/xhad/newsbot/pkg/pipeline"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		if pipeline.IsInputError(err) || errors.Is(err, pipeline.ErrBusy) {
			color.Yellow("Warning: %v", err)
			os.Exit(2)
		}
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}
