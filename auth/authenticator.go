package auth

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
)

// Authenticator turns a handshake credential into a known user.
// It never touches the session registry: a rejected connection leaves no state.
type Authenticator struct {
	verifier contract.TokenVerifier
	users    contract.IUserRepository
}

func NewAuthenticator(verifier contract.TokenVerifier, users contract.IUserRepository) *Authenticator {
	return &Authenticator{verifier: verifier, users: users}
}

// Authenticate verifies the token and resolves its subject.
// Errors wrap ErrMissingToken, ErrInvalidToken or ErrUserNotFound; anything
// else is a dependency failure.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (domain.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.User{}, errors.ErrMissingToken
	}
	subject, err := a.verifier.Verify(token)
	if err != nil {
		if stderrors.Is(err, errors.ErrInvalidToken) {
			return domain.User{}, err
		}
		return domain.User{}, fmt.Errorf("%w: %v", errors.ErrInvalidToken, err)
	}
	user, err := a.users.FindByID(ctx, subject)
	if err != nil {
		if stderrors.Is(err, errors.ErrUserNotFound) {
			return domain.User{}, errors.ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("user lookup failed: %w", err)
	}
	return user, nil
}

// TokenFromRequest reads the bearer token from the Authorization header,
// falling back to the token query parameter used by browser socket clients.
func TokenFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}
