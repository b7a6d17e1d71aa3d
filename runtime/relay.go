package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/observability"
	"context"
	stderrors "errors"
	"log/slog"
	"strings"
	"time"
)

// SignalRelay forwards ephemeral signals. Typing indicators are never
// stored; read receipts store the read transition then notify the sender.
type SignalRelay struct {
	log      *slog.Logger
	registry contract.IRegistry
	messages contract.IMessageRepository
	now      func() time.Time
}

func NewSignalRelay(log *slog.Logger, registry contract.IRegistry, messages contract.IMessageRepository) *SignalRelay {
	return &SignalRelay{log: log, registry: registry, messages: messages, now: time.Now}
}

// Typing relays typing_start / typing_stop. Unreachable receivers drop it.
func (s *SignalRelay) Typing(ctx context.Context, conn contract.Connection, cmd event.Typing, isTyping bool) {
	receiverID := strings.TrimSpace(cmd.ReceiverID)
	if receiverID == "" {
		return
	}
	receiver, ok := s.registry.Lookup(receiverID)
	if !ok {
		return
	}
	push(ctx, s.log, receiver, event.UserTyping{UserID: conn.UserID(), IsTyping: isTyping})
}

// ReadReceipt marks a message read on behalf of its receiver and notifies
// the original sender if reachable.
func (s *SignalRelay) ReadReceipt(ctx context.Context, conn contract.Connection, cmd event.MessageRead) {
	readerID := conn.UserID()
	messageID := strings.TrimSpace(cmd.MessageID)
	if messageID == "" {
		s.reject(ctx, conn, errors.ReasonMessageIDRequired)
		return
	}

	message, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		s.rejectStoreError(ctx, conn, messageID, err)
		return
	}
	if message.ReceiverID != readerID {
		s.reject(ctx, conn, errors.ReasonNotReceiver)
		return
	}
	if senderID := strings.TrimSpace(cmd.SenderID); senderID != "" && senderID != message.SenderID {
		s.reject(ctx, conn, errors.ReasonSenderMismatch)
		return
	}

	read, err := s.messages.MarkRead(ctx, messageID, s.now())
	if err != nil {
		s.rejectStoreError(ctx, conn, messageID, err)
		return
	}

	sender, ok := s.registry.Lookup(read.SenderID)
	if !ok || read.ReadAt == nil {
		return
	}
	push(ctx, s.log, sender, event.ReadReceipt{
		MessageID: read.ID,
		ReaderID:  readerID,
		ReadAt:    *read.ReadAt,
	})
}

func (s *SignalRelay) rejectStoreError(ctx context.Context, conn contract.Connection, messageID string, err error) {
	if stderrors.Is(err, errors.ErrMessageNotFound) {
		s.reject(ctx, conn, errors.ReasonMessageNotFound)
		return
	}
	s.log.Error("Unable to mark message read", "message_id", messageID, "error", err)
	s.reject(ctx, conn, errors.ReasonMarkReadFailed)
}

func (s *SignalRelay) reject(ctx context.Context, conn contract.Connection, reason string) {
	observability.RejectedEvents.WithLabelValues(string(event.MessageReadName)).Inc()
	reply(ctx, s.log, conn, event.Error{Message: reason})
}
