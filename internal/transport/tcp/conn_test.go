package tcp_test

import (
	"net"
	"testing"
	"time"

	"github.com/omochice/termchat/internal/chat"
	"github.com/omochice/termchat/internal/transport/tcp"
)

func TestConn_ImplementsInterface(t *testing.T) {
	var _ chat.Stream = (*tcp.Conn)(nil)
}

func TestConn_Read(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	conn := tcp.NewConn(client)

	go func() {
		server.Write([]byte("test message"))
	}()

	buf := make([]byte, 64)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(buf[:n]) != "test message" {
		t.Errorf("Read() = %q, want %q", string(buf[:n]), "test message")
	}
}

func TestConn_Write(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	conn := tcp.NewConn(client)

	go func() {
		if _, err := conn.Write([]byte("hello")); err != nil {
			t.Errorf("Write() error = %v", err)
		}
	}()

	buf := make([]byte, 1024)
	n, err := server.Read(buf)
	if err != nil {
		t.Fatalf("server read error: %v", err)
	}
	if string(buf[:n]) != "hello" {
		t.Errorf("server received %q, want %q", string(buf[:n]), "hello")
	}
}

func TestConn_ReadDeadline(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	conn := tcp.NewConn(client)
	if err := conn.SetReadDeadline(time.Now().Add(10 * time.Millisecond)); err != nil {
		t.Fatalf("SetReadDeadline() error = %v", err)
	}

	_, err := conn.Read(make([]byte, 1))
	netErr, ok := err.(net.Error)
	if !ok || !netErr.Timeout() {
		t.Errorf("Read() error = %v, want timeout", err)
	}
}

func TestConn_CloseWriteWithoutSupport(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	if err := tcp.NewConn(client).CloseWrite(); err != nil {
		t.Errorf("CloseWrite() error = %v", err)
	}
}

func TestConn_Close(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()

	conn := tcp.NewConn(client)

	if err := conn.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	_, err := client.Read(make([]byte, 1))
	if err == nil {
		t.Error("expected error after close, got nil")
	}
}

func TestConn_RemoteAddr(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	conn := tcp.NewConn(client)

	if addr := conn.RemoteAddr(); addr == "" {
		t.Error("RemoteAddr() returned empty string")
	}
}
