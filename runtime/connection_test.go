package runtime

import (
	"chat-relay/domain/event"
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// recorder is a Connection keeping every pushed event in memory.
type recorder struct {
	id     string
	userID string
	fail   error

	mu     sync.Mutex
	events []event.Outbound
	closed bool
}

func newRecorder(userID string) *recorder {
	return &recorder{id: uuid.NewString(), userID: userID}
}

func (r *recorder) ID() string     { return r.id }
func (r *recorder) UserID() string { return r.userID }

func (r *recorder) Consume(_ context.Context, e event.Outbound) error {
	if r.fail != nil {
		return r.fail
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *recorder) received() []event.Outbound {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event.Outbound(nil), r.events...)
}

func (r *recorder) named(name event.Name) []event.Outbound {
	return lo.Filter(r.received(), func(e event.Outbound, _ int) bool {
		return e.EventName() == name
	})
}
