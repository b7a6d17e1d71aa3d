package repositories

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const (
	messagePrefix      = "msg:"
	conversationPrefix = "conv:"
	unreadPrefix       = "unread:"
)

type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int
	now           func() time.Time
}

// NewMessageRepository builds the message store. limitMessages caps a single
// conversation page; nil means no cap beyond the caller's limit.
func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages *int) *MessageRepository {
	return &MessageRepository{db: db, log: log, limitMessages: limitMessages, now: time.Now}
}

type diskMessage struct {
	ID         string     `json:"id"`
	SenderID   string     `json:"sender"`
	ReceiverID string     `json:"receiver"`
	Content    string     `json:"content"`
	Kind       string     `json:"kind"`
	IsRead     bool       `json:"isRead"`
	ReadAt     *time.Time `json:"readAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// Create persists a message and its indexes in one transaction.
// The record itself lives under "msg:{id}"; the conversation index key is
// "conv:{pair}:{timestamp_padded}:{id}" so a prefix scan returns the
// conversation in chronological order (19-digit zero padding keeps the
// lexicographical order equal to the numeric one), and the unread index key
// "unread:{receiver}:{sender}:{id}" backs unread counts and bulk reads.
func (m *MessageRepository) Create(ctx context.Context, message domain.Message) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, err
	}
	now := m.now().UTC()
	message.ID = uuid.NewString()
	message.IsRead = false
	message.ReadAt = nil
	message.CreatedAt = now
	message.UpdatedAt = now
	if message.Kind == "" {
		message.Kind = domain.KindText
	}

	err := update(m.db, func(txn *badger.Txn) error {
		if err := setJSON(txn, messagePrefix+message.ID, fromMessage(message)); err != nil {
			return err
		}
		if err := txn.Set([]byte(conversationKey(message)), []byte(message.ID)); err != nil {
			return err
		}
		return txn.Set([]byte(unreadKey(message)), nil)
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("store message: %w", err)
	}
	return message, nil
}

func (m *MessageRepository) FindByID(ctx context.Context, id string) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, err
	}
	var record diskMessage
	err := m.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, messagePrefix+id, &record)
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return domain.Message{}, errors.ErrMessageNotFound
	}
	if err != nil {
		return domain.Message{}, err
	}
	return toMessage(record), nil
}

// MarkRead flips the read flag of one message. Marking an already read
// message is a no-op that returns the stored record with its original readAt.
func (m *MessageRepository) MarkRead(ctx context.Context, id string, at time.Time) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, err
	}
	var result domain.Message
	err := update(m.db, func(txn *badger.Txn) error {
		var record diskMessage
		if err := getJSON(txn, messagePrefix+id, &record); err != nil {
			return err
		}
		message, changed := toMessage(record).MarkRead(at)
		result = message
		if !changed {
			return nil
		}
		return markRead(txn, message)
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return domain.Message{}, errors.ErrMessageNotFound
	}
	if err != nil {
		return domain.Message{}, fmt.Errorf("mark message %s read: %w", id, err)
	}
	return result, nil
}

// Conversation returns a page of the messages exchanged between two users,
// newest first, skipping the skip most recent ones.
func (m *MessageRepository) Conversation(ctx context.Context, userA, userB string, limit, skip int) ([]domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.limitMessages != nil && (limit <= 0 || limit > *m.limitMessages) {
		m.log.Debug(fmt.Sprintf("Maximum of %d message reached", *m.limitMessages))
		limit = *m.limitMessages
	}

	var messages []domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := []byte(conversationPrefix + pairKey(userA, userB) + ":")
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		// Reverse iteration starts at the greatest key of the prefix
		seekKey := append(append([]byte{}, prefix...), 0xFF)
		skipped := 0
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if skipped < skip {
				skipped++
				continue
			}
			if limit > 0 && len(messages) == limit {
				break
			}
			id, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var record diskMessage
			if err = getJSON(txn, messagePrefix+string(id), &record); err != nil {
				return err
			}
			messages = append(messages, toMessage(record))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// MarkConversationRead marks every unread message from senderID to
// receiverID as read and returns how many changed.
func (m *MessageRepository) MarkConversationRead(ctx context.Context, senderID, receiverID string, at time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	modified := 0
	err := update(m.db, func(txn *badger.Txn) error {
		modified = 0
		keys := keysWithPrefix(txn, unreadPrefix+receiverID+":"+senderID+":")
		for _, key := range keys {
			id := key[strings.LastIndex(key, ":")+1:]
			var record diskMessage
			if err := getJSON(txn, messagePrefix+id, &record); err != nil {
				if stderrors.Is(err, badger.ErrKeyNotFound) {
					m.log.Warn("Dangling unread index entry", "key", key)
					if err = txn.Delete([]byte(key)); err != nil {
						return err
					}
					continue
				}
				return err
			}
			message, changed := toMessage(record).MarkRead(at)
			if !changed {
				continue
			}
			if err := markRead(txn, message); err != nil {
				return err
			}
			modified++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("mark conversation read: %w", err)
	}
	return modified, nil
}

func (m *MessageRepository) CountUnread(ctx context.Context, receiverID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	count := 0
	err := m.db.View(func(txn *badger.Txn) error {
		count = len(keysWithPrefix(txn, unreadPrefix+receiverID+":"))
		return nil
	})
	return count, err
}

func markRead(txn *badger.Txn, message domain.Message) error {
	if err := setJSON(txn, messagePrefix+message.ID, fromMessage(message)); err != nil {
		return err
	}
	return txn.Delete([]byte(unreadKey(message)))
}

// pairKey is the same for both directions of a conversation.
func pairKey(userA, userB string) string {
	if userA > userB {
		userA, userB = userB, userA
	}
	return userA + "|" + userB
}

func conversationKey(message domain.Message) string {
	return fmt.Sprintf("%s%s:%019d:%s",
		conversationPrefix,
		pairKey(message.SenderID, message.ReceiverID),
		message.CreatedAt.UnixNano(),
		message.ID,
	)
}

func unreadKey(message domain.Message) string {
	return unreadPrefix + message.ReceiverID + ":" + message.SenderID + ":" + message.ID
}

func fromMessage(message domain.Message) diskMessage {
	return diskMessage{
		ID:         message.ID,
		SenderID:   message.SenderID,
		ReceiverID: message.ReceiverID,
		Content:    message.Content,
		Kind:       string(message.Kind),
		IsRead:     message.IsRead,
		ReadAt:     message.ReadAt,
		CreatedAt:  message.CreatedAt,
		UpdatedAt:  message.UpdatedAt,
	}
}

func toMessage(record diskMessage) domain.Message {
	return domain.Message{
		ID:         record.ID,
		SenderID:   record.SenderID,
		ReceiverID: record.ReceiverID,
		Content:    record.Content,
		Kind:       domain.MessageKind(record.Kind),
		IsRead:     record.IsRead,
		ReadAt:     copyTime(record.ReadAt),
		CreatedAt:  record.CreatedAt,
		UpdatedAt:  record.UpdatedAt,
	}
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
