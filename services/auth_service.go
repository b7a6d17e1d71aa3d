package services

import (
	"chat-relay/auth"
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	stderrors "errors"
	"fmt"
	"strings"
)

type IAuthService interface {
	Register(ctx context.Context, req auth.RegisterRequest) (AuthResult, error)
	Login(ctx context.Context, req auth.LoginRequest) (AuthResult, error)
	Me(ctx context.Context, userID string) (domain.PublicProfile, error)
}

type tokenGenerator interface {
	GenerateToken(userID string) (string, error)
}

// AuthResult is returned on register and login.
type AuthResult struct {
	Token string               `json:"token"`
	User  domain.PublicProfile `json:"user"`
}

type AuthService struct {
	users  contract.IUserRepository
	tokens tokenGenerator
}

func NewAuthService(users contract.IUserRepository, tokens tokenGenerator) *AuthService {
	return &AuthService{users: users, tokens: tokens}
}

func (s *AuthService) Register(ctx context.Context, req auth.RegisterRequest) (AuthResult, error) {
	req = req.Normalize()

	// Checked before any expensive cryptographic operation
	if err := auth.ValidateRegister(req); err != nil {
		return AuthResult{}, err
	}

	// The repository never sees a plain password
	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		return AuthResult{}, fmt.Errorf("hashing failed: %w", err)
	}

	user, err := s.users.CreateUser(ctx, domain.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hashedPassword,
	})
	if err != nil {
		return AuthResult{}, err
	}

	return s.issue(user)
}

func (s *AuthService) Login(ctx context.Context, req auth.LoginRequest) (AuthResult, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := auth.ValidateLogin(req); err != nil {
		return AuthResult{}, err
	}

	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		if stderrors.Is(err, errors.ErrUserNotFound) {
			// Same answer as a wrong password
			return AuthResult{}, errors.ErrInvalidCredentials
		}
		return AuthResult{}, err
	}

	match, err := auth.ComparePassword(req.Password, user.PasswordHash)
	if err != nil || !match {
		return AuthResult{}, errors.ErrInvalidCredentials
	}

	return s.issue(user)
}

func (s *AuthService) Me(ctx context.Context, userID string) (domain.PublicProfile, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return domain.PublicProfile{}, err
	}
	return user.PublicProfile(), nil
}

func (s *AuthService) issue(user domain.User) (AuthResult, error) {
	token, err := s.tokens.GenerateToken(user.ID)
	if err != nil {
		return AuthResult{}, fmt.Errorf("%w: %v", errors.ErrTokenGeneration, err)
	}
	return AuthResult{Token: token, User: user.PublicProfile()}, nil
}
