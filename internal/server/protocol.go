package server

import (
	"bufio"
	"bytes"
	"net"
)

type protocolType int

const (
	protocolRaw protocolType = iota
	protocolHTTP
)

func (p protocolType) String() string {
	if p == protocolHTTP {
		return "websocket"
	}
	return "raw"
}

var httpMethods = [][]byte{[]byte("GET "), []byte("POST"), []byte("PUT "), []byte("HEAD")}

// detectProtocol peeks at the first bytes to tell a WebSocket handshake
// from a raw frame stream. The returned conn still yields the peeked bytes.
//
// Peeking stops as soon as the bytes cannot start an HTTP request, so a raw
// frame shorter than a method name is not waited on.
func detectProtocol(conn net.Conn) (protocolType, net.Conn, error) {
	reader := bufio.NewReader(conn)
	buffered := &bufferedConn{Conn: conn, reader: reader}

	for n := 1; ; n++ {
		peek, err := reader.Peek(max(n, reader.Buffered()))
		if len(peek) > 4 {
			peek = peek[:4]
		}
		if !maybeHTTP(peek) {
			return protocolRaw, buffered, nil
		}
		if len(peek) == 4 {
			return protocolHTTP, buffered, nil
		}
		if err != nil {
			return protocolRaw, buffered, err
		}
	}
}

// maybeHTTP reports whether prefix is the start of an HTTP method name.
func maybeHTTP(prefix []byte) bool {
	for _, m := range httpMethods {
		if bytes.HasPrefix(m, prefix) {
			return true
		}
	}
	return false
}

// bufferedConn wraps a net.Conn with a bufio.Reader to preserve peeked data
type bufferedConn struct {
	net.Conn
	reader *bufio.Reader
}

func (bc *bufferedConn) Read(p []byte) (int, error) {
	return bc.reader.Read(p)
}

// CloseWrite half-closes the underlying connection when it supports it.
func (bc *bufferedConn) CloseWrite() error {
	if cw, ok := bc.Conn.(interface{ CloseWrite() error }); ok {
		return cw.CloseWrite()
	}
	return nil
}
