package services

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/samber/lo/mutable"
)

const DefaultPageSize = 50

// IChatService serves the history side of the chat: who can be talked to,
// past conversations and read state.
type IChatService interface {
	Users(ctx context.Context, callerID string) ([]domain.PublicProfile, error)
	Conversation(ctx context.Context, callerID, otherID string, limit, skip int) ([]domain.Message, error)
	MarkConversationRead(ctx context.Context, callerID, otherID string) (int, error)
	UnreadCount(ctx context.Context, callerID string) (int, error)
}

type ChatService struct {
	users    contract.IUserRepository
	messages contract.IMessageRepository
	now      func() time.Time
}

func NewChatService(users contract.IUserRepository, messages contract.IMessageRepository) *ChatService {
	return &ChatService{users: users, messages: messages, now: time.Now}
}

// Users lists everybody but the caller, sorted by username.
func (s *ChatService) Users(ctx context.Context, callerID string) ([]domain.PublicProfile, error) {
	users, err := s.users.ListUsers(ctx, callerID)
	if err != nil {
		return nil, err
	}
	return lo.Map(users, func(u domain.User, _ int) domain.PublicProfile {
		return u.PublicProfile()
	}), nil
}

// Conversation returns one page of the messages exchanged with otherID,
// oldest first. skip counts from the most recent message.
func (s *ChatService) Conversation(ctx context.Context, callerID, otherID string, limit, skip int) ([]domain.Message, error) {
	otherID = strings.TrimSpace(otherID)
	if otherID == "" {
		return nil, errors.ErrInvalidUserID
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	skip = max(skip, 0)

	messages, err := s.messages.Conversation(ctx, callerID, otherID, limit, skip)
	if err != nil {
		return nil, err
	}
	mutable.Reverse(messages)
	return messages, nil
}

// MarkConversationRead marks read every message otherID sent to the caller.
func (s *ChatService) MarkConversationRead(ctx context.Context, callerID, otherID string) (int, error) {
	otherID = strings.TrimSpace(otherID)
	if otherID == "" {
		return 0, errors.ErrInvalidUserID
	}
	return s.messages.MarkConversationRead(ctx, otherID, callerID, s.now())
}

func (s *ChatService) UnreadCount(ctx context.Context, callerID string) (int, error) {
	return s.messages.CountUnread(ctx, callerID)
}
