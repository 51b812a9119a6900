package chat

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// DefaultReadWait bounds a single non-blocking read on a SharedStream.
const DefaultReadWait = 10 * time.Millisecond

// ErrClosed is returned by operations on a SharedStream after Shutdown.
var ErrClosed = errors.New("stream closed")

// SharedStream lets two goroutines use one Stream.
//
// Every Read and Write holds the lock for exactly one call on the underlying
// stream, so a reader and a writer may interleave calls but never overlap.
// No fairness between them is guaranteed.
type SharedStream struct {
	mu       sync.Mutex
	stream   Stream
	readWait time.Duration
	closed   bool

	shutdownOnce sync.Once
	shutdownErr  error
}

// NewSharedStream wraps stream. Reads block until SetNonblocking is called.
func NewSharedStream(stream Stream) *SharedStream {
	return &SharedStream{stream: stream}
}

// SetNonblocking makes every following Read return after at most wait,
// with a timeout error when no data arrived. A wait <= 0 restores blocking reads.
func (s *SharedStream) SetNonblocking(wait time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.readWait = wait
	if wait <= 0 {
		return s.stream.SetReadDeadline(time.Time{})
	}
	return nil
}

// Read implements io.Reader.
func (s *SharedStream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	if s.readWait > 0 {
		if err := s.stream.SetReadDeadline(time.Now().Add(s.readWait)); err != nil {
			return 0, fmt.Errorf("failed to set read deadline: %w", err)
		}
	}
	return s.stream.Read(p)
}

// Write implements io.Writer.
func (s *SharedStream) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	return s.stream.Write(p)
}

// RemoteAddr returns the remote address of the wrapped stream.
func (s *SharedStream) RemoteAddr() string {
	return s.stream.RemoteAddr()
}

// Shutdown signals the end of writing to the peer and closes the stream.
// It is safe to call more than once; later calls return the first result.
func (s *SharedStream) Shutdown() error {
	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.closed = true
		var errs []error
		if err := s.stream.CloseWrite(); err != nil {
			errs = append(errs, fmt.Errorf("failed to signal shutdown: %w", err))
		}
		if err := s.stream.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close stream: %w", err))
		}
		s.shutdownErr = errors.Join(errs...)
	})
	return s.shutdownErr
}
