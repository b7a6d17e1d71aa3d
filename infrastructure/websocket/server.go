// Package websocket serves the live chat channel. Each accepted connection
// is authenticated before the upgrade, then handled by one read loop and one
// writer goroutine until either side closes it.
package websocket

import (
	"chat-relay/auth"
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/observability"
	"chat-relay/sink"
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/websocket"
)

const defaultMaxDecodeErrors = 5

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (domain.User, error)
}

type Presence interface {
	OnConnect(ctx context.Context, conn contract.Connection)
	OnDisconnect(ctx context.Context, conn contract.Connection) bool
}

type Dispatcher interface {
	Send(ctx context.Context, conn contract.Connection, cmd event.SendMessage)
}

type Relay interface {
	Typing(ctx context.Context, conn contract.Connection, cmd event.Typing, isTyping bool)
	ReadReceipt(ctx context.Context, conn contract.Connection, cmd event.MessageRead)
}

type Config struct {
	// AllowedOrigins lists the browser origins accepted at upgrade time.
	// Empty or "*" accepts any origin.
	AllowedOrigins  []string
	BufferSize      int
	DeliveryTimeout time.Duration
	MaxDecodeErrors int
}

type Server struct {
	log           *slog.Logger
	authenticator Authenticator
	presence      Presence
	dispatcher    Dispatcher
	relay         Relay
	cfg           Config

	mu       sync.Mutex
	sessions map[string]*session
	wg       sync.WaitGroup
	closing  atomic.Bool
}

func NewServer(
	log *slog.Logger,
	authenticator Authenticator,
	presence Presence,
	dispatcher Dispatcher,
	relay Relay,
	cfg Config,
) *Server {
	if cfg.MaxDecodeErrors <= 0 {
		cfg.MaxDecodeErrors = defaultMaxDecodeErrors
	}
	return &Server{
		log:           log,
		authenticator: authenticator,
		presence:      presence,
		dispatcher:    dispatcher,
		relay:         relay,
		cfg:           cfg,
		sessions:      make(map[string]*session),
	}
}

// ServeHTTP authenticates the handshake and upgrades. A rejected handshake
// never reaches the registry.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.closing.Load() {
		http.Error(w, errors.ErrShuttingDown.Error(), http.StatusServiceUnavailable)
		return
	}

	user, err := s.authenticator.Authenticate(r.Context(), auth.TokenFromRequest(r))
	if err != nil {
		reason := errors.HandshakeReason(err)
		observability.ConnectionsRejected.WithLabelValues(reason).Inc()
		s.log.Info("Connection rejected", "remote", r.RemoteAddr, "reason", reason, "error", err)
		status := http.StatusUnauthorized
		if reason == errors.ReasonAuthUnavailable {
			status = http.StatusServiceUnavailable
		}
		http.Error(w, reason, status)
		return
	}

	websocket.Server{
		Handshake: s.checkOrigin,
		Handler: func(conn *websocket.Conn) {
			s.serve(conn, user)
		},
	}.ServeHTTP(w, r)
}

func (s *Server) checkOrigin(config *websocket.Config, r *http.Request) error {
	origin, err := websocket.Origin(config, r)
	if err != nil {
		return err
	}
	config.Origin = origin
	if origin == nil || len(s.cfg.AllowedOrigins) == 0 || slices.Contains(s.cfg.AllowedOrigins, "*") {
		return nil
	}
	if slices.Contains(s.cfg.AllowedOrigins, origin.Scheme+"://"+origin.Host) {
		return nil
	}
	observability.ConnectionsRejected.WithLabelValues("origin").Inc()
	return websocket.ErrBadWebSocketOrigin
}

// serve runs the connection from Authenticated to Closed.
func (s *Server) serve(conn *websocket.Conn, user domain.User) {
	out := sink.NewSocketSink(s.log, user.ID, &socketTransport{conn: conn, timeout: s.cfg.DeliveryTimeout}, s.cfg.BufferSize)
	sess := newSession(s.log, out)
	sess.transition(Authenticated)

	if !s.track(sess) {
		_ = out.Close()
		sess.transition(Closed)
		return
	}
	defer s.wg.Done()

	// In-flight writes and the offline broadcast must outlive the request.
	ctx := context.WithoutCancel(conn.Request().Context())

	var once sync.Once
	disconnect := func() {
		once.Do(func() {
			s.untrack(sess)
			s.presence.OnDisconnect(ctx, out)
			_ = out.Close()
			sess.transition(Closed)
		})
	}
	defer disconnect()

	observability.ConnectionsAccepted.Inc()
	s.presence.OnConnect(ctx, out)
	sess.transition(Active)

	s.readLoop(ctx, conn, out)
}

func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, out *sink.SocketSink) {
	decodeErrors := 0
	for {
		var frame event.Frame
		if err := websocket.JSON.Receive(conn, &frame); err != nil {
			if !isMalformed(err) {
				s.log.Debug("Connection read ended", "connection", out.ID(), "error", err)
				return
			}
			s.reply(ctx, out, errors.ReasonInvalidPayload)
			if decodeErrors++; decodeErrors >= s.cfg.MaxDecodeErrors {
				s.log.Warn("Too many malformed frames, closing", "connection", out.ID(), "user_id", out.UserID())
				return
			}
			continue
		}

		err := s.handle(ctx, out, frame)
		switch {
		case err == nil:
			decodeErrors = 0
		case stderrors.Is(err, errors.ErrHandlerPanic):
			return
		case stderrors.Is(err, errors.ErrInvalidPayload):
			if decodeErrors++; decodeErrors >= s.cfg.MaxDecodeErrors {
				s.log.Warn("Too many malformed frames, closing", "connection", out.ID(), "user_id", out.UserID())
				return
			}
		}
	}
}

// handle runs one frame to completion before the next one is read.
func (s *Server) handle(ctx context.Context, conn contract.Connection, frame event.Frame) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Event handler panic",
				"connection", conn.ID(),
				"user_id", conn.UserID(),
				"event", frame.Event,
				"panic", r)
			s.reply(ctx, conn, errors.ReasonInternal)
			err = errors.ErrHandlerPanic
		}
	}()

	switch frame.Event {
	case event.SendMessageName:
		var cmd event.SendMessage
		if err := s.decode(ctx, conn, frame, &cmd); err != nil {
			return err
		}
		s.dispatcher.Send(ctx, conn, cmd)
	case event.TypingStartName, event.TypingStopName:
		var cmd event.Typing
		if err := s.decode(ctx, conn, frame, &cmd); err != nil {
			return err
		}
		s.relay.Typing(ctx, conn, cmd, frame.Event == event.TypingStartName)
	case event.MessageReadName:
		var cmd event.MessageRead
		if err := s.decode(ctx, conn, frame, &cmd); err != nil {
			return err
		}
		s.relay.ReadReceipt(ctx, conn, cmd)
	default:
		observability.RejectedEvents.WithLabelValues("unsupported").Inc()
		s.reply(ctx, conn, errors.ReasonUnsupportedEvent)
	}
	return nil
}

func (s *Server) decode(ctx context.Context, conn contract.Connection, frame event.Frame, v any) error {
	if err := json.Unmarshal(frame.Data, v); err != nil {
		observability.RejectedEvents.WithLabelValues(string(frame.Event)).Inc()
		s.reply(ctx, conn, errors.ReasonInvalidPayload)
		return errors.ErrInvalidPayload
	}
	return nil
}

func (s *Server) reply(ctx context.Context, conn contract.Connection, reason string) {
	if err := conn.Consume(ctx, event.Error{Message: reason}); err != nil {
		s.log.Debug("Error event dropped", "connection", conn.ID(), "error", err)
	}
}

// Shutdown stops accepting connections, closes every live one and waits for
// their disconnect handling to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closing.Store(true)

	s.mu.Lock()
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		_ = sess.out.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("Websocket server stopped", "closed", len(sessions))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// track admits a session unless Shutdown started. The WaitGroup is counted
// under the same lock Shutdown takes before waiting, so Add never races Wait.
func (s *Server) track(sess *session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing.Load() {
		return false
	}
	s.wg.Add(1)
	s.sessions[sess.out.ID()] = sess
	return true
}

func (s *Server) untrack(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sess.out.ID())
}

func isMalformed(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return stderrors.As(err, &syntaxErr) || stderrors.As(err, &typeErr)
}

type socketTransport struct {
	conn    *websocket.Conn
	timeout time.Duration
}

func (t *socketTransport) Send(frame event.Frame) error {
	if t.timeout > 0 {
		_ = t.conn.SetWriteDeadline(time.Now().Add(t.timeout))
	}
	return websocket.JSON.Send(t.conn, frame)
}

func (t *socketTransport) Close() error {
	return t.conn.Close()
}
