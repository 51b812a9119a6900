// Package chat provides the pieces of a chat session shared by transports:
// the stream abstraction, the lock that lets two duties share it, and the
// message history.
package chat

import (
	"io"
	"time"
)

// Stream abstracts the encrypted byte stream to the peer.
// This interface isolates transport details (TLS, WebSocket) from the session.
type Stream interface {
	io.Reader
	io.Writer

	// SetReadDeadline bounds the next Read calls. A zero value blocks.
	SetReadDeadline(t time.Time) error

	// CloseWrite signals the peer that no more data will be sent.
	CloseWrite() error

	// Close closes the stream.
	Close() error

	// RemoteAddr returns the remote address for logging.
	RemoteAddr() string
}
