package services

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"loft-messaging/auth"
	"loft-messaging/directory"
	"loft-messaging/domain"
	"loft-messaging/errors"
	"loft-messaging/repositories"
)

func authFixture(t *testing.T) (*AuthService, *directory.Directory, *auth.TokenManager) {
	t.Helper()
	db := openTestDB(t)
	profiles := directory.New(db)
	tokens := auth.NewTokenManager("test-secret", time.Hour)
	service := NewAuthService(
		repositories.NewCredentialRepository(db), profiles, tokens, slog.Default())
	return service, profiles, tokens
}

func TestRegister_Issues_Token_And_Provisions_Profile(t *testing.T) {
	req := require.New(t)
	service, profiles, tokens := authFixture(t)
	ctx := context.Background()

	token, err := service.Register(ctx, "alice@loft.dev", "Tr0pSûr!EtTrèsLong", "Alice Martin")
	req.NoError(err)

	// The minted token passes the same validation the middleware runs.
	claims, err := tokens.Validate(token)
	req.NoError(err)
	req.Equal(string(domain.RoleMember), claims.Role)

	profile, err := profiles.Profile(ctx, claims.UserID)
	req.NoError(err)
	req.Equal("Alice Martin", profile.FullName)
	req.Equal("alice@loft.dev", profile.Email)
}

func TestRegister_Rejects_Weak_Password(t *testing.T) {
	req := require.New(t)
	service, _, _ := authFixture(t)

	_, err := service.Register(context.Background(), "bob@loft.dev", "tooweakpassword", "Bob Sagan")
	req.ErrorIs(err, errors.ErrInvalidPassword)
}

func TestRegister_Rejects_Taken_Email(t *testing.T) {
	req := require.New(t)
	service, _, _ := authFixture(t)
	ctx := context.Background()

	_, err := service.Register(ctx, "carol@loft.dev", "Tr0pSûr!EtTrèsLong", "Carol Diaz")
	req.NoError(err)

	_, err = service.Register(ctx, "carol@loft.dev", "Autre!MotDePasse9", "Carol Impostor")
	req.ErrorIs(err, errors.ErrUserAlreadyExists)
}

func TestLogin_Returns_Token_Carrying_Directory_Role(t *testing.T) {
	req := require.New(t)
	service, profiles, tokens := authFixture(t)
	ctx := context.Background()

	token, err := service.Register(ctx, "alice@loft.dev", "Tr0pSûr!EtTrèsLong", "Alice Martin")
	req.NoError(err)
	claims, err := tokens.Validate(token)
	req.NoError(err)

	// Promote after registration; login must pick the directory role up.
	req.NoError(profiles.UpsertProfile(domain.Profile{
		ID:       claims.UserID,
		FullName: "Alice Martin",
		Email:    "alice@loft.dev",
		Role:     domain.RoleAdmin,
	}))

	logged, err := service.Login(ctx, "alice@loft.dev", "Tr0pSûr!EtTrèsLong")
	req.NoError(err)
	loggedClaims, err := tokens.Validate(logged)
	req.NoError(err)
	req.Equal(claims.UserID, loggedClaims.UserID)
	req.Equal(string(domain.RoleAdmin), loggedClaims.Role)
}

func TestLogin_Wrong_Password_And_Unknown_Email_Look_Identical(t *testing.T) {
	req := require.New(t)
	service, _, _ := authFixture(t)
	ctx := context.Background()

	_, err := service.Register(ctx, "dave@loft.dev", "Tr0pSûr!EtTrèsLong", "Dave Lopez")
	req.NoError(err)

	_, wrongPassword := service.Login(ctx, "dave@loft.dev", "PasLeB0nMotDePasse!")
	_, unknownEmail := service.Login(ctx, "ghost@loft.dev", "Tr0pSûr!EtTrèsLong")
	req.ErrorIs(wrongPassword, errors.ErrInvalidCredentials)
	req.ErrorIs(unknownEmail, errors.ErrInvalidCredentials)
}
