// Package server implements the reference chat server: it accepts raw framed
// streams and WebSocket connections on one port, authenticates users and
// broadcasts their messages to everyone in the room.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/omochice/termchat/internal/chat"
	"github.com/omochice/termchat/internal/config"
	"github.com/omochice/termchat/internal/transport/tcp"
	"github.com/omochice/termchat/internal/transport/websocket"
	"github.com/omochice/termchat/pkg/protocol"
)

// ErrServerStopped is returned by Serve after Stop.
var ErrServerStopped = errors.New("server stopped")

const outgoingQueueSize = 16

// Option configures a Server.
type Option func(*Server)

// WithClock overrides the clock used to stamp messages.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithBcryptCost overrides the password hashing cost.
func WithBcryptCost(cost int) Option {
	return func(s *Server) { s.bcryptCost = cost }
}

// Server represents the chat server
type Server struct {
	cfg        *config.Server
	logger     *zap.Logger
	now        func() time.Time
	bcryptCost int

	accounts *Accounts
	hub      *Hub

	mu       sync.Mutex
	listener net.Listener
	pending  map[net.Conn]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	quit   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// New creates a Server and seeds the configured accounts.
func New(cfg *config.Server, logger *zap.Logger, opts ...Option) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := protocol.NewFramer(cfg.Framing, 0); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		hub:     NewHub(logger),
		pending: make(map[net.Conn]struct{}),
		ctx:     ctx,
		cancel:  cancel,
		quit:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.accounts = NewAccounts(s.bcryptCost)
	for _, a := range cfg.Accounts {
		username := a.Username
		if username == "" {
			username = a.Login
		}
		if err := s.accounts.Register(a.Login, a.Password, username); err != nil {
			cancel()
			return nil, fmt.Errorf("failed to seed account %q: %w", a.Login, err)
		}
	}
	return s, nil
}

// Start listens and serves until Stop is called.
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Listen opens the listening socket.
func (s *Server) Listen() error {
	l, err := tcp.Listen(s.cfg.Listen, s.cfg.CertFile, s.cfg.KeyFile)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()

	s.logger.Info("server started",
		zap.String("address", l.Addr().String()),
		zap.Bool("tls", s.cfg.CertFile != ""),
		zap.String("framing", s.cfg.Framing))
	return nil
}

// Serve accepts connections until Stop is called. It returns ErrServerStopped.
func (s *Server) Serve() error {
	s.mu.Lock()
	l := s.listener
	s.mu.Unlock()
	if l == nil {
		return errors.New("server is not listening")
	}

	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return ErrServerStopped
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return ErrServerStopped
			}
			s.logger.Warn("failed to accept connection", zap.Error(err))
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// Stop sends /exit to every chatting client, closes all connections and
// waits for their handlers to finish.
func (s *Server) Stop() {
	s.once.Do(func() {
		close(s.quit)
		s.cancel()

		s.mu.Lock()
		if s.listener != nil {
			s.listener.Close()
		}
		for conn := range s.pending {
			conn.Close()
		}
		s.mu.Unlock()

		for _, c := range s.hub.closeAll() {
			c.close(true)
		}
	})
	s.wg.Wait()
	s.logger.Info("server stopped")
}

// Addr returns the server's listening address
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// ClientCount returns the number of connected clients
func (s *Server) ClientCount() int {
	return s.hub.Count()
}

func (s *Server) trackPending(conn net.Conn, add bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !add {
		delete(s.pending, conn)
		return true
	}
	select {
	case <-s.quit:
		return false
	default:
	}
	s.pending[conn] = struct{}{}
	return true
}

// handleConnection detects the protocol and wraps conn into a chat.Stream.
func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()

	if !s.trackPending(conn, true) {
		conn.Close()
		return
	}
	stream, kind, err := s.accept(conn)
	s.trackPending(conn, false)
	if err != nil {
		s.logger.Debug("failed to accept client", zap.String("remote", conn.RemoteAddr().String()), zap.Error(err))
		conn.Close()
		return
	}

	framer, _ := protocol.NewFramer(s.cfg.Framing, 0)
	c := &client{
		id:       uuid.NewString(),
		stream:   stream,
		framer:   framer,
		limiter:  rate.NewLimiter(rate.Limit(s.cfg.RateLimit), s.cfg.RateBurst),
		outgoing: make(chan []byte, outgoingQueueSize),
		stop:     make(chan struct{}),
	}
	c.logger = s.logger.With(
		zap.String("client", c.id),
		zap.String("remote", stream.RemoteAddr()),
		zap.Stringer("protocol", kind))

	if err := s.hub.register(c); err != nil {
		stream.Close()
		return
	}
	defer s.hub.unregister(c.id)
	c.logger.Info("client connected")

	s.serve(c)
	c.logger.Info("client disconnected", zap.String("username", c.username))
}

// accept identifies the client protocol within the handshake timeout.
func (s *Server) accept(conn net.Conn) (chat.Stream, protocolType, error) {
	if s.cfg.HandshakeTimeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(s.cfg.HandshakeTimeout)); err != nil {
			return nil, protocolRaw, fmt.Errorf("failed to set handshake deadline: %w", err)
		}
	}

	kind, buffered, err := detectProtocol(conn)
	if err != nil {
		return nil, kind, fmt.Errorf("failed to detect protocol: %w", err)
	}
	var stream chat.Stream
	if kind == protocolHTTP {
		wc, err := websocket.Upgrade(buffered)
		if err != nil {
			return nil, kind, err
		}
		stream = wc
	} else {
		stream = tcp.NewConn(buffered)
	}

	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		stream.Close()
		return nil, kind, fmt.Errorf("failed to clear handshake deadline: %w", err)
	}
	return stream, kind, nil
}

// serve runs the writer and the read side of one client.
func (s *Server) serve(c *client) {
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop(c)
	}()
	defer func() {
		c.close(false)
		<-writerDone
	}()

	if !s.authenticate(c) {
		return
	}
	s.readLoop(c)
}

// authenticate answers credential frames until one is accepted.
func (s *Server) authenticate(c *client) bool {
	for {
		payload, err := c.framer.ReadFrame(s.ctx, c.stream)
		if err != nil {
			s.logReadError(c, err)
			return false
		}
		if string(payload) == protocol.ExitCommand {
			return false
		}

		username, err := s.accounts.Authenticate(string(payload))
		if err != nil {
			reply := err.Error()
			if !errors.Is(err, ErrMalformedCredentials) && !errors.Is(err, ErrNoSuchUser) &&
				!errors.Is(err, ErrWrongPassword) && !errors.Is(err, ErrUserExists) {
				c.logger.Error("failed to authenticate", zap.Error(err))
				reply = "internal error"
			}
			c.logger.Info("authentication rejected", zap.String("reason", reply))
			if !c.send([]byte(reply)) {
				return false
			}
			continue
		}

		c.username = username
		if !c.send([]byte(protocol.AuthAccepted)) {
			return false
		}
		c.ready.Store(true)
		c.logger.Info("client authenticated", zap.String("username", username))
		return true
	}
}

// readLoop broadcasts every chat line the client sends until it leaves.
func (s *Server) readLoop(c *client) {
	for {
		payload, err := c.framer.ReadFrame(s.ctx, c.stream)
		if err != nil {
			s.logReadError(c, err)
			return
		}

		switch string(payload) {
		case "":
			continue
		case protocol.ExitCommand:
			c.logger.Info("client left", zap.String("username", c.username))
			return
		}

		if !c.limiter.Allow() {
			c.logger.Warn("rate limit exceeded, message dropped", zap.String("username", c.username))
			continue
		}

		line := protocol.FormatMessage(s.now(), c.username, protocol.Sanitize(string(payload)))
		c.logger.Debug("broadcasting message", zap.Int("bytes", len(line)))
		s.hub.Broadcast([]byte(line))
	}
}

// writeLoop delivers queued frames. It owns closing the stream.
func (s *Server) writeLoop(c *client) {
	defer func() {
		if err := c.stream.CloseWrite(); err != nil {
			c.logger.Debug("failed to close write side", zap.Error(err))
		}
		c.stream.Close()
	}()

	for {
		select {
		case payload := <-c.outgoing:
			if err := c.framer.WriteFrame(c.stream, payload); err != nil {
				c.logger.Warn("failed to send frame", zap.Error(err))
				return
			}
		case <-c.stop:
			if c.farewell.Load() && c.ready.Load() {
				if err := c.framer.WriteFrame(c.stream, []byte(protocol.ExitCommand)); err != nil {
					c.logger.Debug("failed to send farewell", zap.Error(err))
				}
			}
			return
		}
	}
}

func (s *Server) logReadError(c *client, err error) {
	select {
	case <-s.quit:
		return
	default:
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		c.logger.Debug("connection closed by client")
		return
	}
	c.logger.Warn("failed to read frame", zap.Error(err))
}
