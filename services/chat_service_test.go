package services

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/mocks"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestChatService_Users(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	users := mocks.NewMockIUserRepository(ctrl)
	svc := NewChatService(users, mocks.NewMockIMessageRepository(ctrl))

	users.EXPECT().ListUsers(gomock.Any(), "alice").Return([]domain.User{
		{ID: "bob", Username: "bob", PasswordHash: "h", Presence: domain.Presence{Online: true}},
	}, nil)

	profiles, err := svc.Users(context.Background(), "alice")

	req.NoError(err)
	req.Len(profiles, 1)
	req.Equal("bob", profiles[0].ID)
	req.True(profiles[0].IsOnline)
}

func TestChatService_Conversation_OldestFirst(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	messages := mocks.NewMockIMessageRepository(ctrl)
	svc := NewChatService(mocks.NewMockIUserRepository(ctrl), messages)

	// Given the store returns the newest page first
	messages.EXPECT().
		Conversation(gomock.Any(), "alice", "bob", DefaultPageSize, 0).
		Return([]domain.Message{{ID: "m3"}, {ID: "m2"}, {ID: "m1"}}, nil)

	// When no limit is given
	page, err := svc.Conversation(context.Background(), "alice", "bob", 0, -1)

	// Then the page is read top to bottom
	req.NoError(err)
	req.Equal([]domain.Message{{ID: "m1"}, {ID: "m2"}, {ID: "m3"}}, page)
}

func TestChatService_Conversation_RequiresPeer(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	svc := NewChatService(mocks.NewMockIUserRepository(ctrl), mocks.NewMockIMessageRepository(ctrl))

	_, err := svc.Conversation(context.Background(), "alice", " ", 10, 0)
	req.ErrorIs(err, errors.ErrInvalidUserID)

	_, err = svc.MarkConversationRead(context.Background(), "alice", "")
	req.ErrorIs(err, errors.ErrInvalidUserID)
}

func TestChatService_MarkConversationRead(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	messages := mocks.NewMockIMessageRepository(ctrl)
	svc := NewChatService(mocks.NewMockIUserRepository(ctrl), messages)
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	// The caller reads what bob sent
	messages.EXPECT().MarkConversationRead(gomock.Any(), "bob", "alice", now).Return(4, nil)

	count, err := svc.MarkConversationRead(context.Background(), "alice", "bob")

	req.NoError(err)
	req.Equal(4, count)
}

func TestChatService_UnreadCount(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	messages := mocks.NewMockIMessageRepository(ctrl)
	svc := NewChatService(mocks.NewMockIUserRepository(ctrl), messages)

	messages.EXPECT().CountUnread(gomock.Any(), "alice").Return(2, nil)

	count, err := svc.UnreadCount(context.Background(), "alice")

	req.NoError(err)
	req.Equal(2, count)
}
