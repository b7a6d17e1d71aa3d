// Package sink holds the outbound side of a live connection.
package sink

import (
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/observability"
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Transport writes one frame to the peer. It is only ever called from the
// sink's writer goroutine.
type Transport interface {
	Send(frame event.Frame) error
	Close() error
}

// SocketSink is the connection handle the runtime pushes to.
// Consume only enqueues; a single writer goroutine owns the transport, so
// frames reach the peer in the order they were accepted.
type SocketSink struct {
	id        string
	userID    string
	log       *slog.Logger
	transport Transport
	queue     chan event.Outbound
	done      chan struct{}
	finished  chan struct{}
	stopOnce  sync.Once
}

func NewSocketSink(log *slog.Logger, userID string, transport Transport, bufferSize int) *SocketSink {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	s := &SocketSink{
		id:        uuid.NewString(),
		userID:    userID,
		log:       log,
		transport: transport,
		queue:     make(chan event.Outbound, bufferSize),
		done:      make(chan struct{}),
		finished:  make(chan struct{}),
	}
	go s.writeLoop()
	return s
}

func (s *SocketSink) ID() string     { return s.id }
func (s *SocketSink) UserID() string { return s.userID }

// Consume enqueues e without waiting for the network. A full queue drops the
// event and reports ErrBackpressure.
func (s *SocketSink) Consume(ctx context.Context, e event.Outbound) error {
	select {
	case <-s.done:
		return errors.ErrConnectionClosed
	default:
	}

	select {
	case s.queue <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		observability.DroppedEvents.WithLabelValues(string(e.EventName())).Inc()
		s.log.Warn("Outbound queue full, event dropped",
			"connection", s.id,
			"user_id", s.userID,
			"event", e.EventName())
		return errors.ErrBackpressure
	}
}

// Close stops accepting events, flushes what is already queued and closes
// the transport. It is safe to call more than once.
func (s *SocketSink) Close() error {
	s.stop()
	<-s.finished
	return nil
}

// Done is closed once the sink stopped accepting events.
func (s *SocketSink) Done() <-chan struct{} {
	return s.done
}

func (s *SocketSink) stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

func (s *SocketSink) writeLoop() {
	defer close(s.finished)
	defer func() {
		if err := s.transport.Close(); err != nil {
			s.log.Debug("Transport close failed", "connection", s.id, "error", err)
		}
	}()

	for {
		select {
		case e := <-s.queue:
			if err := s.write(e); err != nil {
				s.log.Debug("Write failed, closing connection", "connection", s.id, "error", err)
				s.stop()
				return
			}
		case <-s.done:
			s.flush()
			return
		}
	}
}

// flush writes the events accepted before Close, best effort.
func (s *SocketSink) flush() {
	for {
		select {
		case e := <-s.queue:
			if err := s.write(e); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (s *SocketSink) write(e event.Outbound) error {
	frame, err := event.Encode(e)
	if err != nil {
		s.log.Error("Unable to encode event", "event", e.EventName(), "error", err)
		return nil
	}
	return s.transport.Send(frame)
}
