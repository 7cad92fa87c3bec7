package logging

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// RootContext returns a context that is canceled when the process receives
// an interrupt, SIGINT or SIGTERM.
//
// Also returns a function that can be used to cancel the context.
func RootContext() (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())

	procDone := make(chan os.Signal, 1)

	signal.Notify(procDone, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer cancel()
		defer signal.Stop(procDone)

		requester := "unknown"
		select {
		case <-procDone:
			requester = "user"
		case <-ctx.Done():
			requester = "process"
		}

		Logger.Warnw(
			"shutdown requested",
			"requester", requester,
		)
	}()

	return ctx, cancel
}
