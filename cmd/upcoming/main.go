package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/beekhof/upcoming/internal/logging"
)

// version will be set at build time
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCmd(defaultOptions())
	if err := cmd.ExecuteContext(ctx); err != nil {
		logging.New(os.Stderr, false).Error("upcoming failed", logging.Err(err))
		stop()
		os.Exit(1)
	}
}
