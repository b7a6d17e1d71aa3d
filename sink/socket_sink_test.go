package sink

import (
	"chat-relay/domain/event"
	"chat-relay/errors"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

type memoryTransport struct {
	mu      sync.Mutex
	frames  []event.Frame
	closed  bool
	block   chan struct{}
	sendErr error
}

func (m *memoryTransport) Send(frame event.Frame) error {
	if m.block != nil {
		<-m.block
	}
	if m.sendErr != nil {
		return m.sendErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = append(m.frames, frame)
	return nil
}

func (m *memoryTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *memoryTransport) snapshot() ([]event.Frame, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]event.Frame(nil), m.frames...), m.closed
}

func TestSocketSink_DeliversInOrder(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	transport := &memoryTransport{}
	s := NewSocketSink(log, "alice", transport, 16)

	// When several events are pushed then the sink is closed
	for i := 0; i < 5; i++ {
		req.NoError(s.Consume(context.Background(), event.UserTyping{UserID: fmt.Sprint(i), IsTyping: true}))
	}
	req.NoError(s.Close())

	// Then every frame was written in order before the transport closed
	frames, closed := transport.snapshot()
	req.True(closed)
	req.Len(frames, 5)
	for i, frame := range frames {
		req.Equal(event.UserTypingName, frame.Event)
		var typing event.UserTyping
		req.NoError(json.Unmarshal(frame.Data, &typing))
		req.Equal(fmt.Sprint(i), typing.UserID)
	}
}

func TestSocketSink_FullQueueDropsEvent(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	transport := &memoryTransport{block: make(chan struct{})}
	s := NewSocketSink(log, "alice", transport, 1)

	// Given a peer that stopped reading: the writer holds one event, the
	// queue holds another
	req.NoError(s.Consume(context.Background(), event.Error{Message: "1"}))
	req.Eventually(func() bool { return len(s.queue) == 0 }, time.Second, 5*time.Millisecond)
	req.NoError(s.Consume(context.Background(), event.Error{Message: "2"}))

	// When one more event arrives
	err := s.Consume(context.Background(), event.Error{Message: "3"})

	// Then it is dropped instead of blocking the caller
	req.ErrorIs(err, errors.ErrBackpressure)

	close(transport.block)
	req.NoError(s.Close())
}

func TestSocketSink_ConsumeAfterClose(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	s := NewSocketSink(log, "alice", &memoryTransport{}, 4)

	req.NoError(s.Close())
	req.NoError(s.Close())

	err := s.Consume(context.Background(), event.Error{Message: "late"})
	req.ErrorIs(err, errors.ErrConnectionClosed)
}

func TestSocketSink_WriteFailureStopsSink(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	transport := &memoryTransport{sendErr: fmt.Errorf("broken pipe")}
	s := NewSocketSink(log, "alice", transport, 4)

	req.NoError(s.Consume(context.Background(), event.Error{Message: "x"}))

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		req.Fail("sink should stop after a write failure")
	}
	req.NoError(s.Close())
	_, closed := transport.snapshot()
	req.True(closed)
}
