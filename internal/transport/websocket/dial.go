package websocket

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/gobwas/ws"

	"github.com/omochice/termchat/internal/transport/tcp"
)

// Options describe how to reach the server.
type Options struct {
	// URL is a ws:// or wss:// address.
	URL        string
	ServerName string
	CAFile     string
	Timeout    time.Duration
}

// Dial connects to the server and completes the WebSocket handshake.
// wss:// URLs are verified like the TLS transport.
func Dial(ctx context.Context, opts Options) (*Conn, error) {
	tlsConfig, err := tcp.ClientTLSConfig(opts.ServerName, opts.CAFile)
	if err != nil {
		return nil, err
	}
	dialer := ws.Dialer{
		Timeout:   opts.Timeout,
		TLSConfig: tlsConfig,
	}
	conn, br, _, err := dialer.Dial(ctx, opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	// A nil *bufio.Reader must not become a non-nil io.Reader.
	if br == nil {
		return NewClientConn(conn, nil), nil
	}
	return NewClientConn(conn, br), nil
}

// Upgrade answers the HTTP upgrade request read from conn.
func Upgrade(conn net.Conn) (*Conn, error) {
	if _, err := ws.Upgrade(conn); err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}
	return NewServerConn(conn), nil
}
