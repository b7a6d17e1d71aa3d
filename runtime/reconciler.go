package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/observability"
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Reconciler clears durable online flags that no live connection backs.
// It runs once before the listener accepts connections, then periodically.
type Reconciler struct {
	log      *slog.Logger
	registry contract.IRegistry
	users    contract.IUserRepository
	now      func() time.Time
}

func NewReconciler(log *slog.Logger, registry contract.IRegistry, users contract.IUserRepository) *Reconciler {
	return &Reconciler{log: log, registry: registry, users: users, now: time.Now}
}

// Run marks offline every stored-online user missing from the registry and
// returns how many records it changed.
func (r *Reconciler) Run(ctx context.Context) (int, error) {
	online, err := r.users.ListOnline(ctx)
	if err != nil {
		return 0, fmt.Errorf("list online users: %w", err)
	}

	cleared := 0
	for _, user := range online {
		if err := ctx.Err(); err != nil {
			return cleared, err
		}
		// Taken before the lookup: a connect racing this sweep writes a later
		// LastSeen, so the offline write below loses.
		at := r.now().UTC()
		if r.registry.IsOnline(user.ID) {
			continue
		}
		if err := r.users.UpdatePresence(ctx, user.ID, domain.Presence{Online: false, LastSeen: at}); err != nil {
			r.log.Error("Unable to clear stale presence", "user_id", user.ID, "error", err)
			continue
		}
		cleared++
	}

	if cleared > 0 {
		observability.PresenceReconciled.Add(float64(cleared))
		r.log.Info("Stale presence cleared", "count", cleared)
	}
	return cleared, nil
}
