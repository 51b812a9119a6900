package chat_test

import (
	"bytes"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/omochice/termchat/internal/chat"
)

// mockStream is a mock implementation of chat.Stream for testing.
type mockStream struct {
	writtenMu sync.Mutex
	written   bytes.Buffer
	writeErr  error

	inflight    atomic.Int32
	maxInflight atomic.Int32

	deadlineMu sync.Mutex
	deadlines  []time.Time

	calls      []string
	callsMu    sync.Mutex
	remoteAddr string
}

func newMockStream(addr string) *mockStream {
	return &mockStream{remoteAddr: addr}
}

func (m *mockStream) enter() {
	n := m.inflight.Add(1)
	for {
		cur := m.maxInflight.Load()
		if n <= cur || m.maxInflight.CompareAndSwap(cur, n) {
			break
		}
	}
	time.Sleep(time.Millisecond)
}

func (m *mockStream) leave() {
	m.inflight.Add(-1)
}

func (m *mockStream) Read(p []byte) (int, error) {
	m.enter()
	defer m.leave()
	return 0, nil
}

func (m *mockStream) Write(data []byte) (int, error) {
	m.enter()
	defer m.leave()
	if m.writeErr != nil {
		return 0, m.writeErr
	}
	m.writtenMu.Lock()
	defer m.writtenMu.Unlock()
	return m.written.Write(data)
}

func (m *mockStream) SetReadDeadline(t time.Time) error {
	m.deadlineMu.Lock()
	defer m.deadlineMu.Unlock()
	m.deadlines = append(m.deadlines, t)
	return nil
}

func (m *mockStream) CloseWrite() error {
	m.record("closewrite")
	return nil
}

func (m *mockStream) Close() error {
	m.record("close")
	return nil
}

func (m *mockStream) RemoteAddr() string {
	return m.remoteAddr
}

func (m *mockStream) record(call string) {
	m.callsMu.Lock()
	defer m.callsMu.Unlock()
	m.calls = append(m.calls, call)
}

func (m *mockStream) Calls() []string {
	m.callsMu.Lock()
	defer m.callsMu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockStream) Written() []byte {
	m.writtenMu.Lock()
	defer m.writtenMu.Unlock()
	return append([]byte(nil), m.written.Bytes()...)
}

func (m *mockStream) Deadlines() []time.Time {
	m.deadlineMu.Lock()
	defer m.deadlineMu.Unlock()
	return append([]time.Time(nil), m.deadlines...)
}

// pipeStream adapts one end of net.Pipe to chat.Stream.
type pipeStream struct {
	net.Conn
}

func (p pipeStream) CloseWrite() error { return nil }

func (p pipeStream) RemoteAddr() string { return "pipe" }

// Compile-time checks that the test streams implement chat.Stream
var (
	_ chat.Stream = (*mockStream)(nil)
	_ chat.Stream = pipeStream{}
)
