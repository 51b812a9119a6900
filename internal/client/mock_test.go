package client_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/omochice/termchat/internal/chat"
	"github.com/omochice/termchat/internal/transport/tcp"
	"github.com/omochice/termchat/pkg/protocol"
)

// mockScreen is a mock implementation of client.Renderer for testing.
type mockScreen struct {
	lines     chan string
	closeOnce sync.Once

	mu     sync.Mutex
	draws  [][]string
	opened int
	closed int
	clears int
	hold   *drawHold
}

// drawHold parks the next Draw call until released.
type drawHold struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (h *drawHold) Release() {
	h.once.Do(func() { close(h.release) })
}

func newMockScreen(t *testing.T, lines ...string) *mockScreen {
	m := &mockScreen{
		lines: make(chan string, len(lines)+8),
	}
	for _, l := range lines {
		m.lines <- l
	}
	t.Cleanup(m.endInput)
	return m
}

// endInput makes ReadInputLine report io.EOF once queued lines are read.
func (m *mockScreen) endInput() {
	m.closeOnce.Do(func() { close(m.lines) })
}

func (m *mockScreen) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opened++
	return nil
}

func (m *mockScreen) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

// holdNextDraw makes the next Draw wait for Release before it is recorded.
func (m *mockScreen) holdNextDraw(t *testing.T) *drawHold {
	h := &drawHold{entered: make(chan struct{}), release: make(chan struct{})}
	t.Cleanup(h.Release)
	m.mu.Lock()
	m.hold = h
	m.mu.Unlock()
	return h
}

func (m *mockScreen) Draw(records []fmt.Stringer) error {
	m.mu.Lock()
	hold := m.hold
	m.hold = nil
	m.mu.Unlock()
	if hold != nil {
		close(hold.entered)
		<-hold.release
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	frame := make([]string, len(records))
	for i, r := range records {
		frame[i] = r.String()
	}
	m.draws = append(m.draws, frame)
	return nil
}

func (m *mockScreen) ReadInputLine() (string, error) {
	line, ok := <-m.lines
	if !ok {
		return "", io.EOF
	}
	return line, nil
}

func (m *mockScreen) ClearInputField() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clears++
	return nil
}

func (m *mockScreen) Draws() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]string, len(m.draws))
	copy(out, m.draws)
	return out
}

func (m *mockScreen) LastDraw() []string {
	draws := m.Draws()
	if len(draws) == 0 {
		return nil
	}
	return draws[len(draws)-1]
}

func (m *mockScreen) counts() (opened, closed int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opened, m.closed
}

// peer is the server end of an in-memory connection.
type peer struct {
	conn net.Conn
	dec  *protocol.Decoder
}

// pipeDialer returns a dialer handing out the client end of a net.Pipe.
func pipeDialer(t *testing.T) (func(ctx context.Context) (chat.Stream, error), *peer) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() {
		server.Close()
		client.Close()
	})
	dial := func(ctx context.Context) (chat.Stream, error) {
		return tcp.NewConn(client), nil
	}
	return dial, &peer{conn: server, dec: protocol.NewDecoder(server)}
}

func (p *peer) expect(ctx context.Context) (string, error) {
	payload, err := p.dec.Decode(ctx)
	return string(payload), err
}

func (p *peer) send(payload string) error {
	return protocol.WriteFrame(p.conn, []byte(payload))
}

var errBoom = errors.New("boom")

func waitErr(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for result")
		return nil
	}
}
