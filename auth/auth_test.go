package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHashAndCompare(t *testing.T) {
	req := require.New(t)
	password := "correct horse battery staple"

	hash, err := HashPassword(password)
	req.NoError(err)
	req.True(strings.HasPrefix(hash, "$argon2id$"))

	match, err := ComparePassword(password, hash)
	req.NoError(err)
	req.True(match)

	match, err = ComparePassword("wrong password", hash)
	req.NoError(err)
	req.False(match)
}

func TestComparePassword_RejectsMalformedHash(t *testing.T) {
	req := require.New(t)

	_, err := ComparePassword("whatever", "$bcrypt$not-a-hash")
	req.Error(err)

	_, err = ComparePassword("whatever", "$argon2id$v=19$m=x,t=3,p=2$c2FsdA$aGFzaA")
	req.Error(err)
}

func TestRegistrationValidation(t *testing.T) {
	tests := []struct {
		name    string
		req     RegisterRequest
		wantErr bool
	}{
		{"Valid request", RegisterRequest{"alice", "alice@example.com", "password123"}, false},
		{"Username too short", RegisterRequest{"al", "alice@example.com", "password123"}, true},
		{"Username too long", RegisterRequest{strings.Repeat("a", 31), "alice@example.com", "password123"}, true},
		{"Invalid email", RegisterRequest{"alice", "notanemail", "password123"}, true},
		{"Password too short", RegisterRequest{"alice", "alice@example.com", "short"}, true},
		{"Password too long", RegisterRequest{"alice", "alice@example.com", strings.Repeat("a", 73)}, true},
		{"Missing fields", RegisterRequest{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			err := ValidateRegister(tt.req)
			if tt.wantErr {
				req.Error(err)
			} else {
				req.NoError(err)
			}
		})
	}
}

func TestRegisterRequest_Normalize(t *testing.T) {
	req := require.New(t)
	normalized := RegisterRequest{Username: "  bob ", Email: " Bob@Example.COM ", Password: " p "}.Normalize()
	req.Equal("bob", normalized.Username)
	req.Equal("bob@example.com", normalized.Email)
	req.Equal(" p ", normalized.Password)
}

func TestTokenIssuer_RoundTrip(t *testing.T) {
	req := require.New(t)
	issuer := NewTokenIssuer("test-secret", time.Hour)

	token, err := issuer.GenerateToken("user-123")
	req.NoError(err)

	subject, err := issuer.Verify(token)
	req.NoError(err)
	req.Equal("user-123", subject)
}

func TestTokenIssuer_RejectsExpiredToken(t *testing.T) {
	req := require.New(t)
	issuer := NewTokenIssuer("test-secret", time.Minute)
	issuer.now = func() time.Time { return time.Now().Add(-time.Hour) }

	// Given a token that expired 59 minutes ago
	token, err := issuer.GenerateToken("user-123")
	req.NoError(err)

	// When it is verified now
	issuer.now = time.Now
	_, err = issuer.Verify(token)

	// Then it is rejected
	req.Error(err)
	req.Contains(err.Error(), "invalid token")
}

func TestTokenIssuer_RejectsForeignSignature(t *testing.T) {
	req := require.New(t)
	token, err := NewTokenIssuer("other-secret", time.Hour).GenerateToken("user-123")
	req.NoError(err)

	_, err = NewTokenIssuer("test-secret", time.Hour).Verify(token)
	req.Error(err)

	_, err = NewTokenIssuer("test-secret", time.Hour).Verify("not.a.jwt")
	req.Error(err)
}
