//go:build !unix

package tui

import "context"

// NotifyResize returns a channel that never fires; resize signals are unix-only.
func NotifyResize(ctx context.Context) <-chan struct{} {
	return nil
}
