package api

import (
	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/observability"
	"context"
	stderrors "errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (domain.User, error)
}

type userContextKey struct{}

// RequireAuth resolves the bearer token to a user stored in the request
// context. Only the Authorization header is accepted on REST routes.
func RequireAuth(log *slog.Logger, authenticator Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ""
			if r.Header.Get("Authorization") != "" {
				token = auth.TokenFromRequest(r)
			}
			user, err := authenticator.Authenticate(r.Context(), token)
			switch {
			case err == nil:
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userContextKey{}, user)))
			case stderrors.Is(err, errors.ErrMissingToken):
				failure(w, http.StatusUnauthorized, "Authorization token missing or malformed")
			case stderrors.Is(err, errors.ErrInvalidToken):
				failure(w, http.StatusUnauthorized, "Invalid or expired token")
			case stderrors.Is(err, errors.ErrUserNotFound):
				failure(w, http.StatusUnauthorized, "User not found. Token is invalid.")
			default:
				log.Error("Authentication failed", "error", err)
				failure(w, http.StatusInternalServerError, "Authentication failed")
			}
		})
	}
}

func currentUser(r *http.Request) domain.User {
	user, _ := r.Context().Value(userContextKey{}).(domain.User)
	return user
}

// RequestLogger logs one line per request. The wrapped writer keeps
// http.Hijacker so socket upgrades pass through.
func RequestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			log.Debug("HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", chimw.GetReqID(r.Context()))
		})
	}
}

// Metrics records request count and latency by route pattern.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		observability.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		observability.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
