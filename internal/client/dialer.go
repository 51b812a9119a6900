package client

import (
	"context"

	"github.com/omochice/termchat/internal/chat"
	"github.com/omochice/termchat/internal/config"
	"github.com/omochice/termchat/internal/transport/tcp"
	"github.com/omochice/termchat/internal/transport/websocket"
)

// TLSDialer connects over TLS on TCP.
type TLSDialer struct {
	Options tcp.Options
}

func (d TLSDialer) Dial(ctx context.Context) (chat.Stream, error) {
	conn, err := tcp.Dial(ctx, d.Options)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// WebSocketDialer connects with a WebSocket handshake.
type WebSocketDialer struct {
	Options websocket.Options
}

func (d WebSocketDialer) Dial(ctx context.Context) (chat.Stream, error) {
	conn, err := websocket.Dial(ctx, d.Options)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// NewDialer returns the dialer for the configured transport.
func NewDialer(cfg *config.Client) Dialer {
	if cfg.Transport == config.TransportWebSocket {
		return WebSocketDialer{Options: websocket.Options{
			URL:        cfg.WSURL,
			ServerName: cfg.ServerName,
			CAFile:     cfg.CAFile,
			Timeout:    cfg.DialTimeout,
		}}
	}
	return TLSDialer{Options: tcp.Options{
		Address:    cfg.Address,
		ServerName: cfg.ServerName,
		CAFile:     cfg.CAFile,
		Timeout:    cfg.DialTimeout,
	}}
}
