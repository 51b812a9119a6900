// Package tcp provides the TLS-over-TCP transport for the chat client and
// the reference server.
package tcp

import (
	"net"
	"time"
)

// Conn adapts net.Conn (usually a *tls.Conn) to chat.Stream.
type Conn struct {
	conn net.Conn
}

// NewConn wraps a net.Conn.
func NewConn(conn net.Conn) *Conn {
	return &Conn{conn: conn}
}

// Read implements chat.Stream.
func (c *Conn) Read(p []byte) (int, error) {
	return c.conn.Read(p)
}

// Write implements chat.Stream.
func (c *Conn) Write(p []byte) (int, error) {
	return c.conn.Write(p)
}

// SetReadDeadline implements chat.Stream.
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// CloseWrite implements chat.Stream.
// TLS connections send close_notify; TCP connections half-close.
// Connections without write shutdown support ignore the call.
func (c *Conn) CloseWrite() error {
	if cw, ok := c.conn.(interface{ CloseWrite() error }); ok {
		return cw.CloseWrite()
	}
	return nil
}

// Close implements chat.Stream.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// RemoteAddr implements chat.Stream.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
