// Package event defines the frames exchanged with connected clients.
// Inbound types are decoded from client frames, outbound types are pushed to
// connection handles. None of them is persisted.
package event

import (
	"chat-relay/domain"
	"encoding/json"
	"time"
)

type Name string

// Frame is the wire envelope in both directions: {"event": ..., "data": ...}.
type Frame struct {
	Event Name            `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode wraps an outbound event into its frame.
func Encode(e Outbound) (Frame, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Event: e.EventName(), Data: data}, nil
}

// Inbound event names.
const (
	SendMessageName Name = "send_message"
	TypingStartName Name = "typing_start"
	TypingStopName  Name = "typing_stop"
	MessageReadName Name = "message_read"
)

// Outbound event names.
const (
	ReceiveMessageName  Name = "receive_message"
	MessageSentName     Name = "message_sent"
	UserTypingName      Name = "user_typing"
	ReadReceiptName     Name = "message_read_receipt"
	UserStatusName      Name = "user_status"
	ErrorName           Name = "error"
	SessionReplacedName Name = "session_replaced"
)

// SendMessage carries a client chosen TempID of any JSON type (clients
// commonly send a number). It is echoed back verbatim, never interpreted.
type SendMessage struct {
	ReceiverID  string          `json:"receiverId"`
	Content     string          `json:"content"`
	MessageType string          `json:"messageType,omitempty"`
	TempID      json.RawMessage `json:"tempId,omitempty"`
}

type Typing struct {
	ReceiverID string `json:"receiverId"`
}

type MessageRead struct {
	MessageID string `json:"messageId"`
	SenderID  string `json:"senderId"`
}

// Outbound is anything that can be pushed to a connection.
type Outbound interface {
	EventName() Name
}

// DeliveredMessage is a stored message with both parties resolved, so a
// client can render a message from a new peer without another lookup.
// Sender and Receiver shadow the bare ids of the embedded message on the wire.
type DeliveredMessage struct {
	domain.Message
	Sender   domain.PublicProfile `json:"sender"`
	Receiver domain.PublicProfile `json:"receiver"`
}

type ReceiveMessage struct {
	Message DeliveredMessage `json:"message"`
}

func (ReceiveMessage) EventName() Name { return ReceiveMessageName }

type MessageSent struct {
	Message DeliveredMessage `json:"message"`
	TempID  json.RawMessage  `json:"tempId,omitempty"`
}

func (MessageSent) EventName() Name { return MessageSentName }

type UserTyping struct {
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

func (UserTyping) EventName() Name { return UserTypingName }

type ReadReceipt struct {
	MessageID string    `json:"messageId"`
	ReaderID  string    `json:"readerId"`
	ReadAt    time.Time `json:"readAt"`
}

func (ReadReceipt) EventName() Name { return ReadReceiptName }

type UserStatus struct {
	UserID   string    `json:"userId"`
	IsOnline bool      `json:"isOnline"`
	LastSeen time.Time `json:"lastSeen"`
}

func (UserStatus) EventName() Name { return UserStatusName }

type Error struct {
	Message string `json:"message"`
}

func (Error) EventName() Name { return ErrorName }

// SessionReplaced tells a superseded connection it no longer receives pushes.
type SessionReplaced struct {
	ConnectionID string `json:"connectionId"`
}

func (SessionReplaced) EventName() Name { return SessionReplacedName }
