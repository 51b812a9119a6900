package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/omochice/termchat/internal/chat"
	"github.com/omochice/termchat/pkg/protocol"
)

// Prompt lines shown while authenticating.
const (
	LoginFormat        = "Log in format: login/password"
	RegistrationFormat = "Registration format: login/password/username"
)

// State is the phase of a Session.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticating
	StateChatting
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateChatting:
		return "chatting"
	case StateClosing:
		return "closing"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Options tune a Session. Zero values select the defaults.
type Options struct {
	// Framing names the wire framing, see protocol.NewFramer.
	Framing string

	// PollInterval is the decoder backoff when no data is available.
	PollInterval time.Duration

	// ReadWait bounds each read while chatting.
	ReadWait time.Duration

	// Resize triggers a redraw of the current view.
	Resize <-chan struct{}

	Logger *zap.Logger
}

// Session drives one connection from dial to shutdown.
type Session struct {
	dialer Dialer
	screen Renderer
	opts   Options
	framer protocol.Framer
	logger *zap.Logger

	history  *chat.History
	state    atomic.Int32
	peerLeft atomic.Bool

	viewMu sync.Mutex
	view   []fmt.Stringer
}

// NewSession creates a Session. It fails only for an unknown framing.
func NewSession(dialer Dialer, screen Renderer, opts Options) (*Session, error) {
	if opts.PollInterval <= 0 {
		opts.PollInterval = protocol.DefaultBackoff
	}
	if opts.ReadWait <= 0 {
		opts.ReadWait = chat.DefaultReadWait
	}
	framer, err := protocol.NewFramer(opts.Framing, opts.PollInterval)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		dialer:  dialer,
		screen:  screen,
		opts:    opts,
		framer:  framer,
		logger:  logger.With(zap.String("session", uuid.NewString())),
		history: chat.NewHistory(),
	}, nil
}

// State returns the current phase.
func (s *Session) State() State {
	return State(s.state.Load())
}

// PeerLeft reports whether the server ended the chat with /exit.
func (s *Session) PeerLeft() bool {
	return s.peerLeft.Load()
}

// History returns the received records, newest first.
func (s *Session) History() []fmt.Stringer {
	return s.history.Snapshot()
}

func (s *Session) setState(state State) {
	s.state.Store(int32(state))
	s.logger.Debug("session state changed", zap.Stringer("state", state))
}

type input struct {
	line string
	err  error
}

// Run connects, authenticates and chats until the user or the peer leaves.
// It returns nil when either side sent /exit, and ctx.Err() when ctx ended
// the session.
func (s *Session) Run(ctx context.Context) (err error) {
	s.setState(StateConnecting)
	stream, err := s.dialer.Dial(ctx)
	if err != nil {
		s.setState(StateClosing)
		s.logger.Error("failed to connect", zap.Error(err))
		return err
	}
	s.logger.Info("connected", zap.String("remote", stream.RemoteAddr()))
	shared := chat.NewSharedStream(stream)

	// A blocked read holds the stream lock, so cancellation closes the
	// underlying stream directly.
	stopClose := context.AfterFunc(ctx, func() { _ = stream.Close() })

	if err := s.screen.Open(); err != nil {
		stopClose()
		_ = shared.Shutdown()
		s.setState(StateClosing)
		return fmt.Errorf("failed to open screen: %w", err)
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	runCtx, cancel := context.WithCancel(ctx)
	defer func() {
		s.setState(StateClosing)
		cancel()
		close(done)
		wg.Wait()
		stopClose()
		if serr := shared.Shutdown(); serr != nil {
			s.logger.Debug("failed to shut down stream", zap.Error(serr))
		}
		if cerr := s.screen.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to restore terminal: %w", cerr)
		}
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		s.logger.Info("session closed", zap.Bool("peer_left", s.PeerLeft()), zap.Error(err))
	}()

	if s.opts.Resize != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.redrawOnResize(runCtx)
		}()
	}
	lines := s.readInput(done)

	s.setState(StateAuthenticating)
	ok, err := s.authenticate(runCtx, shared, lines)
	if err != nil || !ok {
		return err
	}

	s.setState(StateChatting)
	return s.chat(runCtx, shared, lines)
}

// readInput pumps lines from the renderer so callers can also wait on a context.
// The goroutine stays blocked on the terminal until the next line or EOF.
func (s *Session) readInput(done <-chan struct{}) <-chan input {
	out := make(chan input)
	go func() {
		for {
			line, err := s.screen.ReadInputLine()
			select {
			case out <- input{line: line, err: err}:
			case <-done:
				return
			}
			if err != nil {
				return
			}
		}
	}()
	return out
}

func nextLine(ctx context.Context, lines <-chan input) (string, error) {
	select {
	case in := <-lines:
		return in.line, in.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// authenticate sends credentials until the server answers "correct".
// It reports false without error when input ended or the user typed /exit.
func (s *Session) authenticate(ctx context.Context, stream *chat.SharedStream, lines <-chan input) (bool, error) {
	var feedback string
	for {
		prompt := []fmt.Stringer{protocol.Notice(RegistrationFormat), protocol.Notice(LoginFormat)}
		if feedback != "" {
			prompt = append([]fmt.Stringer{protocol.Notice(feedback)}, prompt...)
		}
		if err := s.show(prompt); err != nil {
			return false, err
		}

		line, err := nextLine(ctx, lines)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return false, nil
			}
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			return false, fmt.Errorf("failed to read credentials: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == protocol.ExitCommand {
			s.logger.Info("user left before logging in")
			return false, nil
		}

		login, _, _ := strings.Cut(line, "/")
		s.logger.Debug("sending credentials", zap.String("login", login))
		if err := s.framer.WriteFrame(stream, []byte(line)); err != nil {
			return false, fmt.Errorf("failed to send credentials: %w", err)
		}
		reply, err := s.framer.ReadFrame(ctx, stream)
		if err != nil {
			return false, fmt.Errorf("failed to read authentication reply: %w", err)
		}

		if string(reply) == protocol.AuthAccepted {
			s.logger.Info("authenticated", zap.String("login", login))
			return true, nil
		}
		feedback = protocol.Sanitize(string(reply))
		s.logger.Info("authentication rejected", zap.String("login", login), zap.String("reason", feedback))
	}
}

// chat runs the outbound and inbound duties until one of them ends.
func (s *Session) chat(ctx context.Context, stream *chat.SharedStream, lines <-chan input) error {
	if err := stream.SetNonblocking(s.opts.ReadWait); err != nil {
		return fmt.Errorf("failed to switch stream to non-blocking mode: %w", err)
	}
	if err := s.screen.ClearInputField(); err != nil {
		return fmt.Errorf("failed to clear input: %w", err)
	}
	if err := s.show(s.history.Snapshot()); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return s.sendLoop(ctx, stream, lines)
	})
	g.Go(func() error {
		defer cancel()
		return s.receiveLoop(ctx, stream)
	})
	return g.Wait()
}

// sendLoop sends each typed line as a frame until /exit or end of input.
func (s *Session) sendLoop(ctx context.Context, stream io.Writer, lines <-chan input) error {
	for {
		line, err := nextLine(ctx, lines)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to read input: %w", err)
		}

		line = strings.TrimSpace(line)
		switch line {
		case "":
			continue
		case protocol.ExitCommand:
			s.logger.Info("user left the chat")
			return nil
		}

		if err := s.framer.WriteFrame(stream, []byte(line)); err != nil {
			return fmt.Errorf("failed to send message: %w", err)
		}
		s.logger.Debug("message sent", zap.Int("bytes", len(line)))
	}
}

// receiveLoop decodes frames into the history until the peer leaves.
func (s *Session) receiveLoop(ctx context.Context, stream io.Reader) error {
	for {
		payload, err := s.framer.ReadFrame(ctx, stream)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Error("failed to receive message", zap.Error(err))
			s.history.Prepend(protocol.Notice("Connection lost: " + err.Error()))
			if derr := s.show(s.history.Snapshot()); derr != nil {
				s.logger.Warn("failed to draw notice", zap.Error(derr))
			}
			return fmt.Errorf("failed to receive message: %w", err)
		}

		switch string(payload) {
		case "":
			continue
		case protocol.ExitCommand:
			s.logger.Info("peer left the chat")
			s.peerLeft.Store(true)
			return nil
		}

		s.history.Prepend(protocol.ParseMessage(payload))
		if err := s.show(s.history.Snapshot()); err != nil {
			return err
		}
	}
}

// show draws records and remembers them for resize redraws.
// Drawing happens under viewMu so a redraw never paints an older view.
func (s *Session) show(records []fmt.Stringer) error {
	s.viewMu.Lock()
	defer s.viewMu.Unlock()
	s.view = records
	if err := s.screen.Draw(records); err != nil {
		return fmt.Errorf("failed to draw screen: %w", err)
	}
	return nil
}

func (s *Session) redrawOnResize(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-s.opts.Resize:
			if !ok {
				return
			}
			s.viewMu.Lock()
			err := s.screen.Draw(s.view)
			s.viewMu.Unlock()
			if err != nil {
				s.logger.Warn("failed to redraw after resize", zap.Error(err))
			}
		}
	}
}
