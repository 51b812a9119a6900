// Package websocket provides a WebSocket transport for the chat client and
// the reference server. Every Write becomes one binary message; Read exposes
// the concatenated message payloads as a byte stream.
package websocket

import (
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

type result struct {
	data []byte
	err  error
}

// Conn adapts a WebSocket connection to chat.Stream.
//
// A frame interrupted by a socket deadline cannot be resumed, so messages are
// read by a background goroutine and read deadlines are applied while
// waiting for it.
type Conn struct {
	conn  net.Conn
	r     io.Reader
	state ws.State

	wmu        sync.Mutex
	closeFrame bool

	rmu      sync.Mutex
	pending  []byte
	readErr  error
	incoming chan result
	pumpOnce sync.Once

	dmu      sync.Mutex
	deadline time.Time

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewClientConn wraps the client side of an established WebSocket
// connection. r carries bytes the handshake read ahead; nil reads from conn.
func NewClientConn(conn net.Conn, r io.Reader) *Conn {
	return newConn(conn, r, ws.StateClientSide)
}

// NewServerConn wraps the server side of an upgraded connection.
func NewServerConn(conn net.Conn) *Conn {
	return newConn(conn, nil, ws.StateServerSide)
}

func newConn(conn net.Conn, r io.Reader, state ws.State) *Conn {
	if r == nil {
		r = conn
	}
	return &Conn{
		conn:     conn,
		r:        r,
		state:    state,
		incoming: make(chan result),
		done:     make(chan struct{}),
	}
}

// Read implements chat.Stream.
func (c *Conn) Read(p []byte) (int, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()

	for len(c.pending) == 0 {
		if c.readErr != nil {
			return 0, c.readErr
		}
		data, err := c.next()
		if err != nil {
			if !errors.Is(err, os.ErrDeadlineExceeded) {
				c.readErr = err
			}
			return 0, err
		}
		c.pending = data
	}

	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

// next waits for the next message until the read deadline.
func (c *Conn) next() ([]byte, error) {
	c.pumpOnce.Do(func() { go c.pump() })

	c.dmu.Lock()
	deadline := c.deadline
	c.dmu.Unlock()

	var timeout <-chan time.Time
	if !deadline.IsZero() {
		wait := time.Until(deadline)
		if wait <= 0 {
			select {
			case res := <-c.incoming:
				return res.data, res.err
			default:
				return nil, os.ErrDeadlineExceeded
			}
		}
		timer := time.NewTimer(wait)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case res := <-c.incoming:
		return res.data, res.err
	case <-timeout:
		return nil, os.ErrDeadlineExceeded
	case <-c.done:
		return nil, net.ErrClosed
	}
}

// pump reads messages until the connection fails or is closed.
func (c *Conn) pump() {
	rw := struct {
		io.Reader
		io.Writer
	}{c.r, lockedWriter{c}}

	for {
		data, _, err := wsutil.ReadData(rw, c.state)
		if err != nil {
			var closed wsutil.ClosedError
			if errors.As(err, &closed) {
				err = io.EOF
			}
			select {
			case c.incoming <- result{err: err}:
			case <-c.done:
			}
			return
		}
		select {
		case c.incoming <- result{data: data}:
		case <-c.done:
			return
		}
	}
}

// lockedWriter lets control frame replies share the write lock.
type lockedWriter struct {
	c *Conn
}

func (w lockedWriter) Write(p []byte) (int, error) {
	w.c.wmu.Lock()
	defer w.c.wmu.Unlock()
	return w.c.conn.Write(p)
}

// Write implements chat.Stream. p is sent as one binary message.
func (c *Conn) Write(p []byte) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.closeFrame {
		return 0, net.ErrClosed
	}
	if err := wsutil.WriteMessage(c.conn, c.state, ws.OpBinary, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// SetReadDeadline implements chat.Stream.
func (c *Conn) SetReadDeadline(t time.Time) error {
	c.dmu.Lock()
	defer c.dmu.Unlock()
	c.deadline = t
	return nil
}

// CloseWrite sends a normal closure frame. Reading continues until the peer
// answers with its own close frame.
func (c *Conn) CloseWrite() error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.closeFrame {
		return nil
	}
	c.closeFrame = true
	body := ws.NewCloseFrameBody(ws.StatusNormalClosure, "")
	return wsutil.WriteMessage(c.conn, c.state, ws.OpClose, body)
}

// Close implements chat.Stream.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// RemoteAddr implements chat.Stream.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
