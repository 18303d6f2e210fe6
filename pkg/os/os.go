// Package os has process level helpers of the binaries.
package os

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// Args are the command line arguments without the program name.
func Args() []string { return os.Args[1:] }

// Interruptible returns a context that is canceled by SIGINT or SIGTERM.
// A second signal kills the process the usual way.
func Interruptible(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
