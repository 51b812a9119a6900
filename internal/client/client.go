// Package client runs a chat session against the server: connect,
// authenticate, then chat until either side leaves.
package client

import (
	"context"
	"fmt"

	"github.com/omochice/termchat/internal/chat"
)

// Renderer is the terminal surface a session draws on and reads from.
// *tui.Screen satisfies this interface.
type Renderer interface {
	Open() error
	Close() error

	// Draw repaints the scrollback with records, newest first.
	Draw(records []fmt.Stringer) error

	// ReadInputLine blocks until the user submits a line.
	ReadInputLine() (string, error)

	ClearInputField() error
}

// Dialer opens the encrypted stream to the server.
// Both TLS and WebSocket transports satisfy this interface.
type Dialer interface {
	Dial(ctx context.Context) (chat.Stream, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context) (chat.Stream, error)

func (f DialerFunc) Dial(ctx context.Context) (chat.Stream, error) {
	return f(ctx)
}
