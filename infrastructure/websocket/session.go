package websocket

import (
	"chat-relay/sink"
	"log/slog"
	"sync"
)

// State is the lifecycle of one connection. Connecting is implicit: a
// session only exists once the handshake was authenticated.
type State int

const (
	Connecting State = iota
	Authenticated
	Active
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Authenticated:
		return "authenticated"
	case Active:
		return "active"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

type session struct {
	mu    sync.Mutex
	log   *slog.Logger
	out   *sink.SocketSink
	state State
}

func newSession(log *slog.Logger, out *sink.SocketSink) *session {
	return &session{log: log, out: out, state: Connecting}
}

// transition only moves forward. Closed is terminal.
func (s *session) transition(to State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if to <= s.state {
		return
	}
	s.log.Debug("Connection state", "connection", s.out.ID(), "user_id", s.out.UserID(), "from", s.state, "to", to)
	s.state = to
}
