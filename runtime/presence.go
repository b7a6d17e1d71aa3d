package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/observability"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/samber/lo"
)

const presenceStripes = 64

// PresenceManager turns connection lifecycle into durable presence and
// user_status broadcasts. The store write and the broadcast are attempted
// independently: one failing never skips the other.
//
// Transitions of the same user run one at a time, from the registry change
// to the last broadcast, so the timestamps, store writes and user_status
// pushes of a disconnect and a racing reconnect keep the registry order.
type PresenceManager struct {
	log            *slog.Logger
	registry       contract.IRegistry
	users          contract.IUserRepository
	notifyReplaced bool
	now            func() time.Time
	locks          [presenceStripes]sync.Mutex
}

func NewPresenceManager(
	log *slog.Logger,
	registry contract.IRegistry,
	users contract.IUserRepository,
	notifyReplaced bool,
) *PresenceManager {
	return &PresenceManager{
		log:            log,
		registry:       registry,
		users:          users,
		notifyReplaced: notifyReplaced,
		now:            time.Now,
	}
}

// OnConnect registers conn as the reachable handle of its user, marks the
// user online and tells every connected peer.
func (p *PresenceManager) OnConnect(ctx context.Context, conn contract.Connection) {
	userID := conn.UserID()
	defer p.lock(userID)()

	if previous := p.registry.Register(userID, conn); previous != nil {
		observability.SessionsReplaced.Inc()
		p.log.Info("Connection superseded",
			"user_id", userID,
			"previous_connection", previous.ID(),
			"connection", conn.ID())
		if p.notifyReplaced {
			if err := previous.Consume(ctx, event.SessionReplaced{ConnectionID: conn.ID()}); err != nil {
				p.log.Debug("Unable to notify superseded connection", "connection", previous.ID(), "error", err)
			}
		}
	}
	observability.OnlineUsers.Set(float64(p.registry.Count()))

	lastSeen := p.now().UTC()
	p.persist(ctx, userID, domain.Presence{
		Online:        true,
		LastSeen:      lastSeen,
		ConnectionRef: lo.ToPtr(conn.ID()),
	})
	p.broadcast(ctx, event.UserStatus{UserID: userID, IsOnline: true, LastSeen: lastSeen})
}

// OnDisconnect marks the user offline, unless conn was already superseded by
// a newer connection of the same user. It reports whether conn was current.
func (p *PresenceManager) OnDisconnect(ctx context.Context, conn contract.Connection) bool {
	userID := conn.UserID()
	defer p.lock(userID)()

	if !p.registry.Deregister(userID, conn) {
		p.log.Debug("Stale disconnect ignored", "user_id", userID, "connection", conn.ID())
		return false
	}
	observability.OnlineUsers.Set(float64(p.registry.Count()))

	lastSeen := p.now().UTC()
	p.persist(ctx, userID, domain.Presence{Online: false, LastSeen: lastSeen})
	p.broadcast(ctx, event.UserStatus{UserID: userID, IsOnline: false, LastSeen: lastSeen})
	return true
}

// lock holds the stripe of userID and returns its release.
func (p *PresenceManager) lock(userID string) func() {
	mu := &p.locks[xxhash.Sum64String(userID)%presenceStripes]
	mu.Lock()
	return mu.Unlock
}

func (p *PresenceManager) OnlineCount() int {
	return p.registry.Count()
}

func (p *PresenceManager) persist(ctx context.Context, userID string, presence domain.Presence) {
	if err := p.users.UpdatePresence(ctx, userID, presence); err != nil {
		observability.PresenceWriteFailures.Inc()
		p.log.Error("Unable to persist presence",
			"user_id", userID,
			"online", presence.Online,
			"error", err)
	}
}

// broadcast pushes to a snapshot of the registry, self included.
func (p *PresenceManager) broadcast(ctx context.Context, status event.UserStatus) {
	for _, peer := range p.registry.Snapshot() {
		if err := peer.Consume(ctx, status); err != nil {
			p.log.Debug("Presence push failed",
				"user_id", status.UserID,
				"peer", peer.UserID(),
				"error", err)
		}
	}
}
