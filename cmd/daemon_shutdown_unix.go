//go:build !windows

package cmd

import (
	"context"
	"os/signal"
	"syscall"
)

// setupShutdownHandler returns a context cancelled on SIGTERM or SIGINT.
func setupShutdownHandler() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
}
