//go:generate go run go.uber.org/mock/mockgen -source=auth_service.go -destination=../mocks/mock_auth_service.go -package=mocks
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"loft-messaging/auth"
	"loft-messaging/domain"
	"loft-messaging/errors"
	"loft-messaging/repositories"
)

// IProfileStore is the directory write surface the auth service needs:
// registration provisions the profile the messaging core later reads.
type IProfileStore interface {
	UpsertProfile(p domain.Profile) error
	Profile(ctx context.Context, userID string) (domain.Profile, error)
}

type IAuthService interface {
	Register(ctx context.Context, email, password, fullName string) (string, error)
	Login(ctx context.Context, email, password string) (string, error)
}

type AuthService struct {
	credentials repositories.ICredentialRepository
	profiles    IProfileStore
	tokens      *auth.TokenManager
	log         *slog.Logger
}

func NewAuthService(
	credentials repositories.ICredentialRepository,
	profiles IProfileStore,
	tokens *auth.TokenManager,
	log *slog.Logger,
) *AuthService {
	return &AuthService{
		credentials: credentials,
		profiles:    profiles,
		tokens:      tokens,
		log:         log,
	}
}

// Register provisions a credential row and a directory profile, then issues
// the initial session token. New users always start as plain members.
func (s *AuthService) Register(ctx context.Context, email, password, fullName string) (string, error) {
	request := auth.RegisterRequest{
		Email:    email,
		Password: password,
		FullName: fullName,
	}

	// Business rules first, before any expensive hashing.
	if err := auth.ValidateRegister(request); err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrInvalidPassword, err)
	}

	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hashing failed: %w", err)
	}

	userID := uuid.New().String()
	err = s.credentials.Create(repositories.Credential{
		UserID:       userID,
		Email:        email,
		PasswordHash: hashedPassword,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		return "", err
	}

	if err := s.profiles.UpsertProfile(domain.Profile{
		ID:       userID,
		FullName: fullName,
		Email:    email,
		Role:     domain.RoleMember,
	}); err != nil {
		return "", err
	}

	token, err := s.tokens.Generate(userID, string(domain.RoleMember))
	if err != nil {
		return "", errors.ErrTokenGeneration
	}

	s.log.Info("User registered", "user_id", userID)
	return token, nil
}

// Login verifies the credential and issues a session token carrying the
// directory role. Unknown email and wrong password are indistinguishable.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, error) {
	credential, err := s.credentials.GetByEmail(email)
	if err != nil {
		return "", errors.ErrInvalidCredentials
	}

	match, err := auth.ComparePassword(password, credential.PasswordHash)
	if err != nil || !match {
		return "", errors.ErrInvalidCredentials
	}

	role := domain.RoleMember
	if profile, err := s.profiles.Profile(ctx, credential.UserID); err == nil {
		role = profile.Role
	}

	token, err := s.tokens.Generate(credential.UserID, string(role))
	if err != nil {
		return "", errors.ErrTokenGeneration
	}
	return token, nil
}
