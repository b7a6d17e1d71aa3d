// Package domain contains core concepts of the chat system.
// This file defines Message records and their rules.
// Messages are immutable once created except for the read transition.
package domain

import (
	"strings"
	"time"
)

type MessageKind string

const (
	KindText  MessageKind = "text"
	KindImage MessageKind = "image"
	KindFile  MessageKind = "file"
)

// DefaultMaxContentLength is the rune bound applied when none is configured.
const DefaultMaxContentLength = 5000

// ParseMessageKind defaults an empty kind to text and rejects unknown ones.
func ParseMessageKind(s string) (MessageKind, bool) {
	switch MessageKind(strings.TrimSpace(s)) {
	case "", KindText:
		return KindText, true
	case KindImage:
		return KindImage, true
	case KindFile:
		return KindFile, true
	default:
		return "", false
	}
}

// Message is a direct message between two users.
type Message struct {
	ID         string      `json:"_id"`
	SenderID   string      `json:"sender"`
	ReceiverID string      `json:"receiver"`
	Content    string      `json:"content"`
	Kind       MessageKind `json:"messageType"`
	IsRead     bool        `json:"isRead"`
	ReadAt     *time.Time  `json:"readAt"`
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}

// MarkRead applies the read transition. The first read timestamp is kept.
func (m Message) MarkRead(at time.Time) (Message, bool) {
	if m.IsRead && m.ReadAt != nil {
		return m, false
	}
	at = at.UTC()
	m.IsRead = true
	m.ReadAt = &at
	m.UpdatedAt = at
	return m, true
}
