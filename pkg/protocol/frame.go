// Package protocol implements the chat wire format: frame delimiting over a
// continuous byte stream and the chat line carried inside each frame.
package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"time"
)

// Terminator marks the end of every frame on the wire.
const Terminator = "\r\n\r\n"

const (
	cr = '\r'
	lf = '\n'
)

// DefaultBackoff is how long the decoder sleeps after a read would block.
const DefaultBackoff = 100 * time.Millisecond

// DefaultMaxSize bounds a single decoded frame.
const DefaultMaxSize = 1 << 20

var (
	// ErrFrameTooLarge is returned when a frame grows past the decoder's MaxSize.
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")
)

// Encode appends the terminator to payload.
// Payload content is not escaped: a payload containing the terminator
// will be split in two by the receiving side.
func Encode(payload []byte) []byte {
	out := make([]byte, 0, len(payload)+len(Terminator))
	out = append(out, payload...)
	return append(out, Terminator...)
}

// WriteFrame writes payload and terminator in a single Write call.
func WriteFrame(w io.Writer, payload []byte) error {
	if _, err := w.Write(Encode(payload)); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// Decoder scans a byte stream one byte at a time for the terminator.
//
// The source may be non-blocking: a zero-byte read is retried right away and
// a read that would block (deadline exceeded, timeout, EAGAIN) is retried
// after Backoff. Any other error aborts the decode.
type Decoder struct {
	r       io.Reader
	one     [1]byte
	Backoff time.Duration
	MaxSize int
}

// NewDecoder returns a Decoder reading from r with the default backoff and size limit.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r, Backoff: DefaultBackoff, MaxSize: DefaultMaxSize}
}

// Decode reads one frame and returns its payload without the terminator.
//
// Bytes that looked like the start of a terminator but did not complete it
// are kept in the payload verbatim.
func (d *Decoder) Decode(ctx context.Context) ([]byte, error) {
	var (
		buf     []byte
		sawCR   bool
		rnCount int
	)
	for {
		b, err := d.readByte(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read frame: %w", err)
		}

		switch {
		case !sawCR && rnCount == 0:
			if b == cr {
				sawCR = true
			} else {
				buf = append(buf, b)
			}
		case sawCR && rnCount == 0:
			switch b {
			case lf:
				sawCR, rnCount = false, 1
			case cr:
				buf = append(buf, cr)
			default:
				buf = append(buf, cr, b)
				sawCR = false
			}
		case !sawCR && rnCount == 1:
			if b == cr {
				sawCR = true
			} else {
				buf = append(buf, cr, lf, b)
				rnCount = 0
			}
		default: // CR LF CR seen
			switch b {
			case lf:
				return buf, nil
			case cr:
				// "\r\n\r\r": the first CRLF was a false start and
				// the latest CR may still open a terminator.
				buf = append(buf, cr, lf, cr)
				rnCount = 0
			default:
				buf = append(buf, cr, lf, cr, b)
				sawCR, rnCount = false, 0
			}
		}

		if d.MaxSize > 0 && len(buf) > d.MaxSize {
			return nil, fmt.Errorf("failed to read frame: %w", ErrFrameTooLarge)
		}
	}
}

func (d *Decoder) readByte(ctx context.Context) (byte, error) {
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		n, err := d.r.Read(d.one[:])
		if n == 1 {
			return d.one[0], nil
		}
		if err == nil {
			continue
		}
		if !WouldBlock(err) {
			return 0, err
		}
		if d.Backoff <= 0 {
			continue
		}
		timer := time.NewTimer(d.Backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return 0, ctx.Err()
		case <-timer.C:
		}
	}
}

// WouldBlock reports whether err means "no data yet" on a non-blocking source.
func WouldBlock(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, syscall.EAGAIN) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
