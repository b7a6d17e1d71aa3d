package api

import (
	"bytes"
	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/repositories"
	"chat-relay/services"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

type staticCounter int

func (s staticCounter) OnlineCount() int { return int(s) }

type apiFixture struct {
	srv      *httptest.Server
	messages *repositories.MessageRepository
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)

	users := repositories.NewUserRepository(db, log)
	messages := repositories.NewMessageRepository(db, log, nil)
	issuer := auth.NewTokenIssuer("secret", time.Hour)
	authenticator := auth.NewAuthenticator(issuer, users)

	handler := NewHandler(log,
		services.NewAuthService(users, issuer),
		services.NewChatService(users, messages),
		staticCounter(2),
	)
	socket := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	srv := httptest.NewServer(NewRouter(log, RouterConfig{AllowedOrigins: []string{"*"}}, handler, authenticator, socket))
	t.Cleanup(func() {
		srv.Close()
		_ = db.Close()
	})
	return &apiFixture{srv: srv, messages: messages}
}

type response struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (f *apiFixture) call(t *testing.T, method, path, token string, body any) (int, response) {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&payload).Encode(body))
	}
	r, err := http.NewRequest(method, f.srv.URL+path, &payload)
	require.NoError(t, err)
	r.Header.Set("Content-Type", "application/json")
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(r)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func (f *apiFixture) register(t *testing.T, username string) services.AuthResult {
	t.Helper()
	status, resp := f.call(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": "ComplexPass123!",
	})
	require.Equal(t, http.StatusCreated, status, resp.Message)
	var result services.AuthResult
	require.NoError(t, json.Unmarshal(resp.Data, &result))
	return result
}

func TestAPI_RegisterLoginMe(t *testing.T) {
	req := require.New(t)
	f := newAPIFixture(t)

	// Given a registered user
	alice := f.register(t, "alice")
	req.NotEmpty(alice.Token)
	req.Equal("alice", alice.User.Username)

	// When registering the same email again
	status, resp := f.call(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "alice2",
		"email":    "alice@example.com",
		"password": "ComplexPass123!",
	})
	req.Equal(http.StatusConflict, status)
	req.Equal("Email already registered", resp.Message)

	// When logging in
	status, resp = f.call(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "alice@example.com",
		"password": "ComplexPass123!",
	})
	req.Equal(http.StatusOK, status)
	var login services.AuthResult
	req.NoError(json.Unmarshal(resp.Data, &login))

	// Then the token opens the profile
	status, resp = f.call(t, http.MethodGet, "/api/auth/me", login.Token, nil)
	req.Equal(http.StatusOK, status)
	var me struct {
		User domain.PublicProfile `json:"user"`
	}
	req.NoError(json.Unmarshal(resp.Data, &me))
	req.Equal(alice.User.ID, me.User.ID)
	req.NotContains(string(resp.Data), "hash")
}

func TestAPI_LoginRejectsWrongPassword(t *testing.T) {
	req := require.New(t)
	f := newAPIFixture(t)
	f.register(t, "alice")

	status, resp := f.call(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "alice@example.com",
		"password": "nope-nope-nope",
	})

	req.Equal(http.StatusUnauthorized, status)
	req.False(resp.Success)
	req.Equal("Invalid credentials", resp.Message)
}

func TestAPI_RequiresToken(t *testing.T) {
	req := require.New(t)
	f := newAPIFixture(t)

	status, resp := f.call(t, http.MethodGet, "/api/auth/me", "", nil)
	req.Equal(http.StatusUnauthorized, status)
	req.Equal("Authorization token missing or malformed", resp.Message)

	status, resp = f.call(t, http.MethodGet, "/api/auth/me", "garbage", nil)
	req.Equal(http.StatusUnauthorized, status)
	req.Equal("Invalid or expired token", resp.Message)
}

func TestAPI_ConversationFlow(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newAPIFixture(t)
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")

	// Given bob wrote alice three messages
	for _, content := range []string{"one", "two", "three"} {
		_, err := f.messages.Create(ctx, domain.Message{SenderID: bob.User.ID, ReceiverID: alice.User.ID, Content: content})
		req.NoError(err)
		time.Sleep(2 * time.Millisecond)
	}

	// Then alice sees bob in the user list
	status, resp := f.call(t, http.MethodGet, "/api/auth/users", alice.Token, nil)
	req.Equal(http.StatusOK, status)
	var list struct {
		Users []domain.PublicProfile `json:"users"`
	}
	req.NoError(json.Unmarshal(resp.Data, &list))
	req.Len(list.Users, 1)
	req.Equal(bob.User.ID, list.Users[0].ID)

	// And the last two messages come back oldest first
	status, resp = f.call(t, http.MethodGet, "/api/messages/"+bob.User.ID+"?limit=2", alice.Token, nil)
	req.Equal(http.StatusOK, status)
	var page conversationResponse
	req.NoError(json.Unmarshal(resp.Data, &page))
	req.Equal(2, page.Count)
	req.Equal("two", page.Messages[0].Content)
	req.Equal("three", page.Messages[1].Content)

	// And three are unread
	status, resp = f.call(t, http.MethodGet, "/api/messages/unread/count", alice.Token, nil)
	req.Equal(http.StatusOK, status)
	req.JSONEq(`{"unreadCount":3}`, string(resp.Data))

	// When alice marks the conversation read
	status, resp = f.call(t, http.MethodPut, "/api/messages/read/"+bob.User.ID, alice.Token, nil)
	req.Equal(http.StatusOK, status)
	req.JSONEq(`{"modifiedCount":3}`, string(resp.Data))

	// Then nothing is left unread
	_, resp = f.call(t, http.MethodGet, "/api/messages/unread/count", alice.Token, nil)
	req.JSONEq(`{"unreadCount":0}`, string(resp.Data))
}

func TestAPI_HealthAndFallbacks(t *testing.T) {
	req := require.New(t)
	f := newAPIFixture(t)

	status, resp := f.call(t, http.MethodGet, "/health", "", nil)
	req.Equal(http.StatusOK, status)
	req.True(resp.Success)

	status, resp = f.call(t, http.MethodGet, "/nowhere", "", nil)
	req.Equal(http.StatusNotFound, status)
	req.Equal("Route not found", resp.Message)

	// The socket route reaches the socket handler
	r, err := http.Get(f.srv.URL + "/socket")
	req.NoError(err)
	r.Body.Close()
	req.Equal(http.StatusTeapot, r.StatusCode)

	r, err = http.Get(f.srv.URL + "/metrics")
	req.NoError(err)
	defer r.Body.Close()
	req.Equal(http.StatusOK, r.StatusCode)
	body, err := io.ReadAll(r.Body)
	req.NoError(err)
	req.Contains(string(body), "chat_relay_http_requests_total")
}
