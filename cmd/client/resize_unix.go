//go:build !windows

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// watchResize calls fn on every SIGWINCH until ctx is done.
func watchResize(ctx context.Context, fn func()) (stop func()) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGWINCH)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-sig:
				fn()
			}
		}
	}()
	return func() { signal.Stop(sig) }
}
