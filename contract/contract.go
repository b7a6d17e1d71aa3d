//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
	"reflect"
	"time"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Connection is the live handle of one authenticated channel.
// Consume must not block on the network: it hands the event to the
// connection's own writer and returns.
type Connection interface {
	ID() string
	UserID() string
	Consume(ctx context.Context, e event.Outbound) error
	Close() error
}

type IRegistry interface {
	Register(userID string, conn Connection) Connection
	Lookup(userID string) (Connection, bool)
	Deregister(userID string, conn Connection) bool
	Snapshot() []Connection
	Count() int
	IsOnline(userID string) bool
}

// TokenVerifier resolves a bearer credential to its subject.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

type IUserRepository interface {
	CreateUser(ctx context.Context, user domain.User) (domain.User, error)
	FindByID(ctx context.Context, id string) (domain.User, error)
	FindByEmail(ctx context.Context, email string) (domain.User, error)
	ListUsers(ctx context.Context, excludeID string) ([]domain.User, error)
	ListOnline(ctx context.Context) ([]domain.User, error)
	UpdatePresence(ctx context.Context, id string, presence domain.Presence) error
}

type IMessageRepository interface {
	Create(ctx context.Context, message domain.Message) (domain.Message, error)
	FindByID(ctx context.Context, id string) (domain.Message, error)
	MarkRead(ctx context.Context, id string, at time.Time) (domain.Message, error)
	Conversation(ctx context.Context, userA, userB string, limit, skip int) ([]domain.Message, error)
	MarkConversationRead(ctx context.Context, senderID, receiverID string, at time.Time) (int, error)
	CountUnread(ctx context.Context, receiverID string) (int, error)
}
