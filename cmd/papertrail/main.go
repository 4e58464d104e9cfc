package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
)

// usageError marks invalid-argument failures so main can exit 2 instead of 1.
type usageError struct {
	msg string
}

func (e usageError) Error() string { return e.msg }

func main() {
	// Set up context with signal handling for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		var ue usageError
		if errors.As(err, &ue) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
