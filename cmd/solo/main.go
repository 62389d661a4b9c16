package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/getsolo/solo/cmd/solo/app"
)

func main() {
	// Ctrl-C during a serve aborts the launch and cleans up the
	// half-started container instead of orphaning it.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmd := app.NewSoloCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
