package tui

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Fallback size used when the output is not a terminal.
const (
	DefaultColumns = 80
	DefaultRows    = 24
)

// SizeFunc reports the current terminal size.
type SizeFunc func() (Geometry, error)

// Option configures a Screen.
type Option func(*Screen)

// WithSize overrides how the screen samples its geometry.
func WithSize(fn SizeFunc) Option {
	return func(s *Screen) {
		s.size = fn
	}
}

// Screen renders the chat frame with cursor-addressed escape sequences and
// reads the user's input line.
//
// Only the input row and the frame are written; the terminal echoes what
// the user types. Writes are serialized so that a redraw and an input-field
// clear from different goroutines never interleave their sequences.
type Screen struct {
	in   *bufio.Reader
	inFd int
	tty  bool

	w   *bufio.Writer
	out *termenv.Output

	size SizeFunc

	mu     sync.Mutex
	opened bool
	state  *term.State
}

// New creates a Screen reading lines from in and drawing to out.
func New(in io.Reader, out io.Writer, opts ...Option) *Screen {
	w := bufio.NewWriter(out)
	s := &Screen{
		in:  bufio.NewReader(in),
		w:   w,
		out: termenv.NewOutput(w, termenv.WithProfile(termenv.Ascii)),
	}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		s.inFd = int(f.Fd())
		s.tty = true
	}
	s.size = defaultSize(out)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func defaultSize(out io.Writer) SizeFunc {
	return func() (Geometry, error) {
		f, ok := out.(*os.File)
		if !ok {
			return Geometry{Columns: DefaultColumns, Rows: DefaultRows}, nil
		}
		cols, rows, err := term.GetSize(int(f.Fd()))
		if err != nil {
			return Geometry{}, fmt.Errorf("failed to get terminal size: %w", err)
		}
		return Geometry{Columns: cols, Rows: rows}, nil
	}
}

// Geometry samples the current terminal size, falling back to 80x24.
func (s *Screen) Geometry() Geometry {
	g, err := s.size()
	if err != nil || g.Columns <= 0 || g.Rows <= 0 {
		return Geometry{Columns: DefaultColumns, Rows: DefaultRows}
	}
	return g
}

// Open switches to the alternate screen and puts the cursor on the input line.
// The terminal state is saved so Close can restore it.
func (s *Screen) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opened {
		return nil
	}
	if s.tty {
		state, err := term.GetState(s.inFd)
		if err != nil {
			return fmt.Errorf("failed to save terminal state: %w", err)
		}
		s.state = state
	}
	s.opened = true
	s.out.AltScreen()
	s.moveToInput(s.Geometry())
	return s.flush()
}

// Close leaves the alternate screen and restores the saved terminal state.
func (s *Screen) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.opened {
		return nil
	}
	s.opened = false
	s.out.ExitAltScreen()
	err := s.flush()
	if s.state != nil {
		err = errors.Join(err, term.Restore(s.inFd, s.state))
		s.state = nil
	}
	return err
}

// Draw repaints the scrollback and both rules with records, newest first.
// The input line and the cursor position are left untouched.
func (s *Screen) Draw(records []fmt.Stringer) error {
	g := s.Geometry()
	grid := Compose(records, g)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.out.SaveCursorPosition()
	for row, line := range grid {
		if row == g.InputRow() && g.Rows >= 3 {
			continue
		}
		s.out.MoveCursor(row+1, 1)
		s.out.ClearLine()
		if line != "" {
			_, _ = s.out.WriteString(line)
		}
	}
	s.out.RestoreCursorPosition()
	return s.flush()
}

// ReadInputLine blocks until the user enters a line and returns it without
// the line break. Afterwards the input line is cleared and the cursor moved
// back to it, whether or not the read succeeded.
func (s *Screen) ReadInputLine() (string, error) {
	line, err := s.in.ReadString('\n')
	if errors.Is(err, io.EOF) && line != "" {
		err = nil
	}

	s.mu.Lock()
	g := s.Geometry()
	s.clearInput(g)
	s.moveToInput(g)
	flushErr := s.flush()
	s.mu.Unlock()

	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), flushErr
}

// ClearInputField erases the input line and leaves the cursor where it was.
func (s *Screen) ClearInputField() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearInput(s.Geometry())
	return s.flush()
}

func (s *Screen) clearInput(g Geometry) {
	s.out.SaveCursorPosition()
	s.moveToInput(g)
	s.out.ClearLine()
	s.out.RestoreCursorPosition()
}

func (s *Screen) moveToInput(g Geometry) {
	s.out.MoveCursor(g.InputRow()+1, 1)
}

func (s *Screen) flush() error {
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("failed to flush screen: %w", err)
	}
	return nil
}
