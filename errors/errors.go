// Package errors holds the sentinel errors shared across chat-relay.
// Client-facing reason strings live next to them so every transport reports
// the same wording.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrWorkerPanic  = fmt.Errorf("worker panic")
	ErrHandlerPanic = fmt.Errorf("event handler panic")

	// Handshake rejection
	ErrMissingToken = fmt.Errorf("authentication error: no token provided")
	ErrInvalidToken = fmt.Errorf("authentication error: invalid token")
	ErrUserNotFound = fmt.Errorf("authentication error: user not found")

	// Accounts
	ErrEmailTaken          = fmt.Errorf("email already registered")
	ErrUsernameTaken       = fmt.Errorf("username already taken")
	ErrInvalidCredentials  = fmt.Errorf("invalid credentials")
	ErrInvalidRegistration = fmt.Errorf("invalid registration request")
	ErrTokenGeneration     = fmt.Errorf("token generation failed")
	ErrInvalidUserID       = fmt.Errorf("invalid user id")

	// Messages
	ErrMessageNotFound = fmt.Errorf("message not found")
	ErrInvalidPayload  = fmt.Errorf("invalid payload")

	// Delivery
	ErrConnectionClosed = fmt.Errorf("connection closed")
	ErrBackpressure     = fmt.Errorf("outbound queue full")
	ErrShuttingDown     = fmt.Errorf("server shutting down")
)

// Reasons surfaced to clients, in handshake responses and error events.
const (
	ReasonMissingToken       = "Authentication error: No token provided"
	ReasonInvalidToken       = "Authentication error: Invalid token"
	ReasonUserNotFound       = "Authentication error: User not found"
	ReasonAuthUnavailable    = "Authentication error: Service unavailable"
	ReasonSendRequired       = "Receiver ID and content are required"
	ReasonInvalidMessageType = "Invalid message type"
	ReasonSelfMessage        = "Cannot send a message to yourself"
	ReasonReceiverNotFound   = "Receiver not found"
	ReasonSendFailed         = "Failed to send message"
	ReasonMessageIDRequired  = "Message ID is required"
	ReasonMessageNotFound    = "Message not found"
	ReasonNotReceiver        = "Not allowed to mark this message as read"
	ReasonSenderMismatch     = "Sender does not match message"
	ReasonMarkReadFailed     = "Failed to mark message as read"
	ReasonUnsupportedEvent   = "Unsupported event"
	ReasonInvalidPayload     = "Invalid payload"
	ReasonInternal           = "Internal server error"
)

// ReasonContentTooLong is the validation message for an oversized message body.
func ReasonContentTooLong(limit int) string {
	return fmt.Sprintf("Message cannot exceed %d characters", limit)
}

// HandshakeReason maps an authentication failure to the reason string sent
// back on a rejected connection.
func HandshakeReason(err error) string {
	switch {
	case errors.Is(err, ErrMissingToken):
		return ReasonMissingToken
	case errors.Is(err, ErrInvalidToken):
		return ReasonInvalidToken
	case errors.Is(err, ErrUserNotFound):
		return ReasonUserNotFound
	default:
		return ReasonAuthUnavailable
	}
}

// MapToHTTPStatus translates domain errors into REST status codes.
func MapToHTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrMissingToken),
		errors.Is(err, ErrInvalidToken),
		errors.Is(err, ErrUserNotFound),
		errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, ErrEmailTaken),
		errors.Is(err, ErrUsernameTaken):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidRegistration),
		errors.Is(err, ErrInvalidUserID),
		errors.Is(err, ErrInvalidPayload):
		return http.StatusBadRequest
	case errors.Is(err, ErrMessageNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
