package repositories

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func createUser(t *testing.T, repo *UserRepository, username string) domain.User {
	t.Helper()
	user, err := repo.CreateUser(context.Background(), domain.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "hash",
	})
	require.NoError(t, err)
	return user
}

func TestUserRepository_CreateAndFind(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repo := NewUserRepository(openTestDB(t), discardLogger())

	// Given a registered user
	alice := createUser(t, repo, "alice")
	req.NotEmpty(alice.ID)
	req.False(alice.Presence.Online)

	// Then it can be found by id and by email, case insensitively
	byID, err := repo.FindByID(ctx, alice.ID)
	req.NoError(err)
	req.Equal(alice.Username, byID.Username)

	byEmail, err := repo.FindByEmail(ctx, "ALICE@example.com")
	req.NoError(err)
	req.Equal(alice.ID, byEmail.ID)

	// And unknown users are reported as not found
	_, err = repo.FindByID(ctx, "nobody")
	req.ErrorIs(err, errors.ErrUserNotFound)
	_, err = repo.FindByEmail(ctx, "nobody@example.com")
	req.ErrorIs(err, errors.ErrUserNotFound)
}

func TestUserRepository_CreateUser_Duplicates(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repo := NewUserRepository(openTestDB(t), discardLogger())
	createUser(t, repo, "alice")

	_, err := repo.CreateUser(ctx, domain.User{Username: "alice2", Email: "alice@example.com"})
	req.ErrorIs(err, errors.ErrEmailTaken)

	_, err = repo.CreateUser(ctx, domain.User{Username: "Alice", Email: "other@example.com"})
	req.ErrorIs(err, errors.ErrUsernameTaken)
}

func TestUserRepository_ListUsers(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repo := NewUserRepository(openTestDB(t), discardLogger())
	carol := createUser(t, repo, "carol")
	alice := createUser(t, repo, "alice")
	createUser(t, repo, "bob")

	users, err := repo.ListUsers(ctx, carol.ID)
	req.NoError(err)
	req.Equal([]string{"alice", "bob"}, lo.Map(users, func(u domain.User, _ int) string { return u.Username }))

	// When alice goes online
	req.NoError(repo.UpdatePresence(ctx, alice.ID, domain.Presence{Online: true, LastSeen: time.Now(), ConnectionRef: lo.ToPtr("conn-1")}))

	// Then she is the only online user
	online, err := repo.ListOnline(ctx)
	req.NoError(err)
	req.Len(online, 1)
	req.Equal(alice.ID, online[0].ID)
	req.Equal("conn-1", *online[0].Presence.ConnectionRef)
}

func TestUserRepository_UpdatePresence_IgnoresStaleWrites(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repo := NewUserRepository(openTestDB(t), discardLogger())
	alice := createUser(t, repo, "alice")
	connectedAt := time.Now().Add(time.Minute)

	// Given alice connected through a new connection
	req.NoError(repo.UpdatePresence(ctx, alice.ID, domain.Presence{Online: true, LastSeen: connectedAt, ConnectionRef: lo.ToPtr("conn-2")}))

	// When an older offline write arrives late
	req.NoError(repo.UpdatePresence(ctx, alice.ID, domain.Presence{Online: false, LastSeen: connectedAt.Add(-time.Second)}))

	// Then she stays online
	stored, err := repo.FindByID(ctx, alice.ID)
	req.NoError(err)
	req.True(stored.Presence.Online)
	req.Equal("conn-2", *stored.Presence.ConnectionRef)

	// And unknown users cannot be updated
	err = repo.UpdatePresence(ctx, "nobody", domain.Presence{LastSeen: time.Now()})
	req.ErrorIs(err, errors.ErrUserNotFound)
}

func TestMessageRepository_CreateAndFind(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repo := NewMessageRepository(openTestDB(t), discardLogger(), nil)

	created, err := repo.Create(ctx, domain.Message{SenderID: "alice", ReceiverID: "bob", Content: "hi"})
	req.NoError(err)
	req.NotEmpty(created.ID)
	req.Equal(domain.KindText, created.Kind)
	req.False(created.IsRead)
	req.Nil(created.ReadAt)
	req.False(created.CreatedAt.IsZero())

	found, err := repo.FindByID(ctx, created.ID)
	req.NoError(err)
	req.Equal(created, found)

	_, err = repo.FindByID(ctx, "missing")
	req.ErrorIs(err, errors.ErrMessageNotFound)
}

func TestMessageRepository_MarkRead_IsIdempotent(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repo := NewMessageRepository(openTestDB(t), discardLogger(), nil)
	created, err := repo.Create(ctx, domain.Message{SenderID: "alice", ReceiverID: "bob", Content: "hi"})
	req.NoError(err)

	count, err := repo.CountUnread(ctx, "bob")
	req.NoError(err)
	req.Equal(1, count)

	// When bob reads it twice
	firstRead := time.Now().UTC()
	read, err := repo.MarkRead(ctx, created.ID, firstRead)
	req.NoError(err)
	req.True(read.IsRead)
	req.NotNil(read.ReadAt)

	again, err := repo.MarkRead(ctx, created.ID, firstRead.Add(time.Hour))
	req.NoError(err)

	// Then the first read timestamp is kept and nothing is left unread
	req.True(again.ReadAt.Equal(*read.ReadAt))
	count, err = repo.CountUnread(ctx, "bob")
	req.NoError(err)
	req.Zero(count)

	_, err = repo.MarkRead(ctx, "missing", time.Now())
	req.ErrorIs(err, errors.ErrMessageNotFound)
}

func TestMessageRepository_Conversation_Pagination(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repo := NewMessageRepository(openTestDB(t), discardLogger(), nil)
	base := time.Now().UTC()

	contents := []string{"one", "two", "three", "four"}
	for i, content := range contents {
		repo.now = func() time.Time { return base.Add(time.Duration(i) * time.Second) }
		sender, receiver := "alice", "bob"
		if i%2 == 1 {
			sender, receiver = receiver, sender
		}
		_, err := repo.Create(ctx, domain.Message{SenderID: sender, ReceiverID: receiver, Content: content})
		req.NoError(err)
	}
	// A message of another conversation must not leak in
	_, err := repo.Create(ctx, domain.Message{SenderID: "alice", ReceiverID: "carol", Content: "other"})
	req.NoError(err)

	page, err := repo.Conversation(ctx, "bob", "alice", 2, 0)
	req.NoError(err)
	req.Equal([]string{"four", "three"}, lo.Map(page, func(m domain.Message, _ int) string { return m.Content }))

	page, err = repo.Conversation(ctx, "alice", "bob", 2, 2)
	req.NoError(err)
	req.Equal([]string{"two", "one"}, lo.Map(page, func(m domain.Message, _ int) string { return m.Content }))

	page, err = repo.Conversation(ctx, "alice", "bob", 10, 4)
	req.NoError(err)
	req.Empty(page)
}

func TestMessageRepository_Conversation_Limit(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	limit := 2
	repo := NewMessageRepository(openTestDB(t), discardLogger(), &limit)
	for i := 0; i < 3; i++ {
		_, err := repo.Create(ctx, domain.Message{SenderID: "alice", ReceiverID: "bob", Content: "hello"})
		req.NoError(err)
	}

	page, err := repo.Conversation(ctx, "alice", "bob", 50, 0)
	req.NoError(err)
	req.Len(page, limit)
}

func TestMessageRepository_MarkConversationRead(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repo := NewMessageRepository(openTestDB(t), discardLogger(), nil)
	for i := 0; i < 3; i++ {
		_, err := repo.Create(ctx, domain.Message{SenderID: "alice", ReceiverID: "bob", Content: "hello"})
		req.NoError(err)
	}
	_, err := repo.Create(ctx, domain.Message{SenderID: "carol", ReceiverID: "bob", Content: "hey"})
	req.NoError(err)

	// When bob reads his conversation with alice
	modified, err := repo.MarkConversationRead(ctx, "alice", "bob", time.Now())
	req.NoError(err)
	req.Equal(3, modified)

	// Then only carol's message is still unread
	count, err := repo.CountUnread(ctx, "bob")
	req.NoError(err)
	req.Equal(1, count)

	modified, err = repo.MarkConversationRead(ctx, "alice", "bob", time.Now())
	req.NoError(err)
	req.Zero(modified)
}
