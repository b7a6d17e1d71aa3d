package api

import (
	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/services"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

type onlineCounter interface {
	OnlineCount() int
}

type Handler struct {
	log      *slog.Logger
	auth     services.IAuthService
	chat     services.IChatService
	presence onlineCounter
}

func NewHandler(log *slog.Logger, auth services.IAuthService, chat services.IChatService, presence onlineCounter) *Handler {
	return &Handler{log: log, auth: auth, chat: chat, presence: presence}
}

type healthResponse struct {
	Success     bool      `json:"success"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	OnlineUsers int       `json:"onlineUsers"`
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Success:     true,
		Message:     "Server is running",
		Timestamp:   time.Now().UTC(),
		OnlineUsers: h.presence.OnlineCount(),
	})
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		failure(w, http.StatusBadRequest, "All fields are required")
		return
	}
	result, err := h.auth.Register(r.Context(), req)
	if err != nil {
		switch {
		case stderrors.Is(err, errors.ErrEmailTaken):
			failure(w, http.StatusConflict, "Email already registered")
		case stderrors.Is(err, errors.ErrUsernameTaken):
			failure(w, http.StatusConflict, "Username already taken")
		case stderrors.Is(err, errors.ErrInvalidRegistration):
			failure(w, http.StatusBadRequest, err.Error())
		default:
			h.log.Error("Registration failed", "error", err)
			failure(w, http.StatusInternalServerError, "Registration failed")
		}
		return
	}
	success(w, http.StatusCreated, "User registered successfully", result)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		failure(w, http.StatusBadRequest, "Please provide email and password")
		return
	}
	result, err := h.auth.Login(r.Context(), req)
	if err != nil {
		if stderrors.Is(err, errors.ErrInvalidCredentials) {
			failure(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		h.log.Error("Login failed", "error", err)
		failure(w, http.StatusInternalServerError, "Login failed")
		return
	}
	success(w, http.StatusOK, "Login successful", result)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	profile, err := h.auth.Me(r.Context(), currentUser(r).ID)
	if err != nil {
		h.log.Error("Profile lookup failed", "error", err)
		failure(w, errors.MapToHTTPStatus(err), "Failed to fetch profile")
		return
	}
	success(w, http.StatusOK, "User profile fetched successfully", map[string]domain.PublicProfile{"user": profile})
}

func (h *Handler) Users(w http.ResponseWriter, r *http.Request) {
	users, err := h.chat.Users(r.Context(), currentUser(r).ID)
	if err != nil {
		h.log.Error("User listing failed", "error", err)
		failure(w, http.StatusInternalServerError, "Failed to fetch users")
		return
	}
	success(w, http.StatusOK, "Users fetched successfully", map[string][]domain.PublicProfile{"users": users})
}

type conversationResponse struct {
	Messages []domain.Message `json:"messages"`
	Count    int              `json:"count"`
}

func (h *Handler) Conversation(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", services.DefaultPageSize)
	skip := queryInt(r, "skip", 0)

	messages, err := h.chat.Conversation(r.Context(), currentUser(r).ID, chi.URLParam(r, "userId"), limit, skip)
	if err != nil {
		if stderrors.Is(err, errors.ErrInvalidUserID) {
			failure(w, http.StatusBadRequest, "Invalid user ID")
			return
		}
		h.log.Error("Conversation lookup failed", "error", err)
		failure(w, http.StatusInternalServerError, "Failed to fetch conversation")
		return
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	success(w, http.StatusOK, "Conversation fetched successfully", conversationResponse{Messages: messages, Count: len(messages)})
}

func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	modified, err := h.chat.MarkConversationRead(r.Context(), currentUser(r).ID, chi.URLParam(r, "userId"))
	if err != nil {
		if stderrors.Is(err, errors.ErrInvalidUserID) {
			failure(w, http.StatusBadRequest, "Invalid user ID")
			return
		}
		h.log.Error("Bulk read failed", "error", err)
		failure(w, http.StatusInternalServerError, "Failed to mark messages as read")
		return
	}
	success(w, http.StatusOK, "Messages marked as read", map[string]int{"modifiedCount": modified})
}

func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.chat.UnreadCount(r.Context(), currentUser(r).ID)
	if err != nil {
		h.log.Error("Unread count failed", "error", err)
		failure(w, http.StatusInternalServerError, "Failed to fetch unread count")
		return
	}
	success(w, http.StatusOK, "Unread count fetched successfully", map[string]int{"unreadCount": count})
}

func (h *Handler) NotFound(w http.ResponseWriter, _ *http.Request) {
	failure(w, http.StatusNotFound, "Route not found")
}

func queryInt(r *http.Request, key string, fallback int) int {
	value, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
