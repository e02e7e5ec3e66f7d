package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chatline/chatline-server/internal/core"
	"github.com/chatline/chatline-server/internal/store"
)

var (
	// ErrInvalidCredentials is returned when username/password don't match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserExists is returned when trying to register with existing username.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidUsername is returned when username doesn't meet constraints.
	ErrInvalidUsername = errors.New("invalid username")
	// ErrInvalidPassword is returned when password doesn't meet constraints.
	ErrInvalidPassword = errors.New("invalid password")

	// Connection-time verification failures. Each one is fatal to the
	// connection attempt that presented the credential.

	// ErrUnauthenticated is returned when no credential was presented.
	ErrUnauthenticated = errors.New("missing credential")
	// ErrInvalidCredential is returned for a malformed or expired token.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrPrincipalNotFound is returned when the token is valid but the
	// referenced user no longer exists.
	ErrPrincipalNotFound = errors.New("principal not found")
)

// Service provides authentication operations.
type Service struct {
	store     store.UserStore
	jwtConfig *JWTConfig
}

// NewService creates a new authentication service.
func NewService(userStore store.UserStore, jwtConfig *JWTConfig) *Service {
	return &Service{
		store:     userStore,
		jwtConfig: jwtConfig,
	}
}

// Register creates a new user with hashed password and returns a JWT token.
func (s *Service) Register(ctx context.Context, username, fullName, email, password string) (string, error) {
	username = strings.TrimSpace(username)
	if len(username) < 4 || len(username) > 20 {
		return "", ErrInvalidUsername
	}
	if len(password) < 6 {
		return "", ErrInvalidPassword
	}
	fullName = strings.TrimSpace(fullName)
	email = strings.ToLower(strings.TrimSpace(email))

	existing, err := s.store.GetUserByUsername(ctx, username)
	if err == nil && existing != nil {
		return "", ErrUserExists
	}

	hashedPassword, err := HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	user, err := s.store.CreateUser(ctx, username, fullName, email, hashedPassword)
	if err != nil {
		return "", fmt.Errorf("create user: %w", err)
	}

	token, err := GenerateToken(s.jwtConfig, user.ID, user.Username)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}

	return token, nil
}

// Login validates credentials and returns a JWT token.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		return "", ErrInvalidCredentials
	}

	if errPwd := ComparePassword(user.PasswordHash, password); errPwd != nil {
		return "", ErrInvalidCredentials
	}

	token, err := GenerateToken(s.jwtConfig, user.ID, user.Username)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}

	return token, nil
}

// ChangePassword verifies the old password and stores a new hash.
func (s *Service) ChangePassword(ctx context.Context, userID int64, oldPassword, newPassword string) error {
	if len(newPassword) < 6 {
		return ErrInvalidPassword
	}

	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return ErrInvalidCredentials
	}
	if errPwd := ComparePassword(user.PasswordHash, oldPassword); errPwd != nil {
		return ErrInvalidCredentials
	}

	hashedPassword, err := HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	return s.store.UpdatePassword(ctx, userID, hashedPassword)
}

// ValidateToken validates a JWT token and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return ValidateToken(s.jwtConfig, tokenString)
}

// VerifyCredential is the identity verifier for incoming connections. It
// validates the bearer token and resolves the referenced user, and must
// complete before any event from that connection is processed.
func (s *Service) VerifyCredential(ctx context.Context, tokenString string) (core.Principal, error) {
	if strings.TrimSpace(tokenString) == "" {
		return core.Principal{}, ErrUnauthenticated
	}

	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return core.Principal{}, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}

	user, err := s.store.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return core.Principal{}, ErrPrincipalNotFound
		}
		return core.Principal{}, fmt.Errorf("load principal: %w", err)
	}

	return core.Principal{
		ID:       user.ID,
		Username: user.Username,
		FullName: user.FullName,
	}, nil
}
