package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/observability"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Dispatcher persists direct messages and routes them to the receiver when
// reachable. The sender always gets the stored record back.
type Dispatcher struct {
	log              *slog.Logger
	registry         contract.IRegistry
	users            contract.IUserRepository
	messages         contract.IMessageRepository
	validate         *validator.Validate
	maxContentLength int
}

func NewDispatcher(
	log *slog.Logger,
	registry contract.IRegistry,
	users contract.IUserRepository,
	messages contract.IMessageRepository,
	maxContentLength int,
) *Dispatcher {
	if maxContentLength <= 0 {
		maxContentLength = domain.DefaultMaxContentLength
	}
	return &Dispatcher{
		log:              log,
		registry:         registry,
		users:            users,
		messages:         messages,
		validate:         validator.New(),
		maxContentLength: maxContentLength,
	}
}

type sendRequest struct {
	ReceiverID string `validate:"required"`
	Content    string `validate:"required"`
}

// Send handles one send_message from conn. The sender identity is the one
// bound to the connection, never a payload field.
func (d *Dispatcher) Send(ctx context.Context, conn contract.Connection, cmd event.SendMessage) {
	senderID := conn.UserID()

	message, receiver, reason := d.prepare(ctx, senderID, cmd)
	if reason != "" {
		observability.RejectedEvents.WithLabelValues(string(event.SendMessageName)).Inc()
		reply(ctx, d.log, conn, event.Error{Message: reason})
		return
	}

	stored, err := d.messages.Create(ctx, message)
	if err != nil {
		d.log.Error("Unable to store message", "sender", senderID, "receiver", message.ReceiverID, "error", err)
		reply(ctx, d.log, conn, event.Error{Message: errors.ReasonSendFailed})
		return
	}
	observability.MessagesPersisted.Inc()

	delivered := event.DeliveredMessage{
		Message:  stored,
		Sender:   d.sender(ctx, senderID),
		Receiver: d.live(receiver.PublicProfile()),
	}

	if receiverConn, ok := d.registry.Lookup(stored.ReceiverID); ok {
		push(ctx, d.log, receiverConn, event.ReceiveMessage{Message: delivered})
	} else {
		d.log.Debug("Receiver offline, message kept for history", "message_id", stored.ID, "receiver", stored.ReceiverID)
	}

	reply(ctx, d.log, conn, event.MessageSent{Message: delivered, TempID: cmd.TempID})
}

// sender resolves the public profile of the sending user. The message is
// already stored, so a failed lookup degrades to the bare id.
func (d *Dispatcher) sender(ctx context.Context, senderID string) domain.PublicProfile {
	user, err := d.users.FindByID(ctx, senderID)
	if err != nil {
		d.log.Warn("Unable to resolve sender profile", "sender", senderID, "error", err)
		return d.live(domain.PublicProfile{ID: senderID})
	}
	return d.live(user.PublicProfile())
}

// live overrides the stored online flag with the registry.
func (d *Dispatcher) live(profile domain.PublicProfile) domain.PublicProfile {
	profile.IsOnline = d.registry.IsOnline(profile.ID)
	return profile
}

// prepare returns the message to store with its receiver, or the reason it
// is rejected.
func (d *Dispatcher) prepare(ctx context.Context, senderID string, cmd event.SendMessage) (domain.Message, domain.User, string) {
	req := sendRequest{
		ReceiverID: strings.TrimSpace(cmd.ReceiverID),
		Content:    strings.TrimSpace(cmd.Content),
	}
	if err := d.validate.Struct(req); err != nil {
		return domain.Message{}, domain.User{}, errors.ReasonSendRequired
	}
	// validator counts runes for strings
	if err := d.validate.Var(req.Content, fmt.Sprintf("max=%d", d.maxContentLength)); err != nil {
		return domain.Message{}, domain.User{}, errors.ReasonContentTooLong(d.maxContentLength)
	}
	kind, ok := domain.ParseMessageKind(cmd.MessageType)
	if !ok {
		return domain.Message{}, domain.User{}, errors.ReasonInvalidMessageType
	}
	if req.ReceiverID == senderID {
		return domain.Message{}, domain.User{}, errors.ReasonSelfMessage
	}
	receiver, err := d.users.FindByID(ctx, req.ReceiverID)
	if err != nil {
		if stderrors.Is(err, errors.ErrUserNotFound) {
			return domain.Message{}, domain.User{}, errors.ReasonReceiverNotFound
		}
		d.log.Error("Unable to resolve receiver", "receiver", req.ReceiverID, "error", err)
		return domain.Message{}, domain.User{}, errors.ReasonSendFailed
	}

	return domain.Message{
		SenderID:   senderID,
		ReceiverID: req.ReceiverID,
		Content:    req.Content,
		Kind:       kind,
	}, receiver, ""
}

// push delivers to a peer. Failures are not reported to anyone.
func push(ctx context.Context, log *slog.Logger, conn contract.Connection, e event.Outbound) {
	if err := conn.Consume(ctx, e); err != nil {
		log.Warn("Live push failed",
			"event", e.EventName(),
			"user_id", conn.UserID(),
			"connection", conn.ID(),
			"error", err)
		return
	}
	observability.LivePushes.WithLabelValues(string(e.EventName())).Inc()
}

// reply answers the connection that issued the command.
func reply(ctx context.Context, log *slog.Logger, conn contract.Connection, e event.Outbound) {
	if err := conn.Consume(ctx, e); err != nil {
		log.Warn("Reply dropped",
			"event", e.EventName(),
			"user_id", conn.UserID(),
			"connection", conn.ID(),
			"error", err)
	}
}
