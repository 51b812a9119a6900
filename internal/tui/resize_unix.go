//go:build unix

package tui

import (
	"context"
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
)

// NotifyResize delivers a value whenever the terminal is resized, until ctx ends.
func NotifyResize(ctx context.Context) <-chan struct{} {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, unix.SIGWINCH)

	out := make(chan struct{}, 1)
	go func() {
		defer signal.Stop(sig)
		for {
			select {
			case <-ctx.Done():
				return
			case <-sig:
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()
	return out
}
