package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// Framing names accepted by NewFramer.
const (
	FramingTerminator = "terminator"
	FramingVarint     = "varint"
)

// ErrUnknownFraming is returned by NewFramer for an unsupported framing name.
var ErrUnknownFraming = errors.New("unknown framing")

// Framer writes and reads whole frames on a byte stream.
type Framer interface {
	WriteFrame(w io.Writer, payload []byte) error
	ReadFrame(ctx context.Context, r io.Reader) ([]byte, error)
}

// NewFramer returns the framer registered under name.
// An empty name selects terminator framing.
func NewFramer(name string, backoff time.Duration) (Framer, error) {
	switch name {
	case "", FramingTerminator:
		return &TerminatorFramer{Backoff: backoff}, nil
	case FramingVarint:
		return &VarintFramer{Backoff: backoff}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFraming, name)
	}
}

// TerminatorFramer delimits frames with Terminator.
// The decoder keeps no bytes between frames, so any reader may be passed.
type TerminatorFramer struct {
	Backoff time.Duration
	MaxSize int
}

func (f *TerminatorFramer) WriteFrame(w io.Writer, payload []byte) error {
	return WriteFrame(w, payload)
}

func (f *TerminatorFramer) ReadFrame(ctx context.Context, r io.Reader) ([]byte, error) {
	dec := NewDecoder(r)
	if f.Backoff > 0 {
		dec.Backoff = f.Backoff
	}
	if f.MaxSize > 0 {
		dec.MaxSize = f.MaxSize
	}
	return dec.Decode(ctx)
}

// VarintFramer prefixes each payload with its length as a protobuf varint.
// Unlike terminator framing, payloads may contain any byte sequence.
type VarintFramer struct {
	Backoff time.Duration
	MaxSize int
}

func (f *VarintFramer) WriteFrame(w io.Writer, payload []byte) error {
	out := protowire.AppendBytes(make([]byte, 0, len(payload)+protowire.SizeVarint(uint64(len(payload)))), payload)
	if _, err := w.Write(out); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

func (f *VarintFramer) ReadFrame(ctx context.Context, r io.Reader) ([]byte, error) {
	dec := &Decoder{r: r, Backoff: f.Backoff}
	if dec.Backoff <= 0 {
		dec.Backoff = DefaultBackoff
	}
	maxSize := f.MaxSize
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}

	var prefix []byte
	for {
		b, err := dec.readByte(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read frame length: %w", err)
		}
		prefix = append(prefix, b)
		if b < 0x80 {
			break
		}
		if len(prefix) >= binaryMaxVarintLen {
			return nil, fmt.Errorf("failed to read frame length: %w", protowire.ParseError(-1))
		}
	}
	size, n := protowire.ConsumeVarint(prefix)
	if n < 0 {
		return nil, fmt.Errorf("failed to read frame length: %w", protowire.ParseError(n))
	}
	if size > uint64(maxSize) {
		return nil, fmt.Errorf("failed to read frame: %w", ErrFrameTooLarge)
	}

	payload := make([]byte, 0, size)
	for uint64(len(payload)) < size {
		b, err := dec.readByte(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read frame: %w", err)
		}
		payload = append(payload, b)
	}
	return payload, nil
}

const binaryMaxVarintLen = 10

var (
	_ Framer = (*TerminatorFramer)(nil)
	_ Framer = (*VarintFramer)(nil)
)
