package services

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bluerat1/uniclaim-server/internal/app/models"
	"github.com/Bluerat1/uniclaim-server/internal/app/models/dto"
	"github.com/Bluerat1/uniclaim-server/internal/pkg/apperrors"
	"github.com/Bluerat1/uniclaim-server/internal/pkg/auth"
	"github.com/Bluerat1/uniclaim-server/internal/pkg/storeops"
)

type authFixture struct {
	st            *fakeState
	users         *fakeUsers
	conversations *fakeConversations
	media         *fakeMedia
}

func newAuthFixture(t *testing.T) (*authFixture, AuthService) {
	t.Helper()

	st := newFakeState()
	f := &authFixture{
		st:            st,
		users:         &fakeUsers{st: st},
		conversations: &fakeConversations{st: st},
		media:         &fakeMedia{},
	}
	jwtService := auth.NewJWTService(auth.JWTConfig{
		SecretKey:       "test-secret",
		AccessTokenExp:  15 * time.Minute,
		RefreshTokenExp: 24 * time.Hour,
		TokenIssuer:     "uniclaim-test",
	})
	ops := storeops.NewRunner(nil, zerolog.Nop()).WithBackoff(1, time.Millisecond)
	service := NewAuthService(f.users, f.conversations, f.media, jwtService, ops, zerolog.Nop())
	return f, service
}

func registerAndLogin(t *testing.T, service AuthService) (*dto.TokenResponse, *models.User) {
	t.Helper()
	_, err := service.Register(context.Background(), &dto.RegisterRequest{
		Email:     "Finn.Reyes@Example.EDU",
		Password:  "correct horse battery",
		FirstName: "Finn",
		LastName:  "Reyes",
	})
	require.NoError(t, err)

	tokens, user, err := service.Login(context.Background(), &dto.LoginRequest{
		Email:    "finn.reyes@example.edu",
		Password: "correct horse battery",
	})
	require.NoError(t, err)
	return tokens, user
}

func TestRegisterNormalizesEmail(t *testing.T) {
	_, service := newAuthFixture(t)

	user, err := service.Register(context.Background(), &dto.RegisterRequest{
		Email:     "  Finn.Reyes@Example.EDU ",
		Password:  "correct horse battery",
		FirstName: "Finn",
		LastName:  "Reyes",
	})
	require.NoError(t, err)
	assert.Equal(t, "finn.reyes@example.edu", user.Email)
	assert.NotEqual(t, "correct horse battery", user.Password)
	assert.True(t, user.AllowsNotifications)
}

func TestLoginWrongPassword(t *testing.T) {
	_, service := newAuthFixture(t)
	registerAndLogin(t, service)

	_, _, err := service.Login(context.Background(), &dto.LoginRequest{
		Email:    "finn.reyes@example.edu",
		Password: "wrong",
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	// An unknown email yields the same error as a wrong password.
	_, _, err = service.Login(context.Background(), &dto.LoginRequest{
		Email:    "nobody@example.edu",
		Password: "wrong",
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}

func TestRefreshTokensRotates(t *testing.T) {
	f, service := newAuthFixture(t)
	tokens, _ := registerAndLogin(t, service)

	refreshed, err := service.RefreshTokens(context.Background(), tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, tokens.RefreshToken, refreshed.RefreshToken)

	// The consumed token is revoked and cannot be replayed.
	assert.True(t, f.users.refreshTokens[tokens.RefreshToken].Revoked)
	_, err = service.RefreshTokens(context.Background(), tokens.RefreshToken)
	assert.ErrorIs(t, err, apperrors.ErrTokenRevoked)
}

func TestRefreshTokensExpired(t *testing.T) {
	f, service := newAuthFixture(t)
	tokens, _ := registerAndLogin(t, service)

	f.users.refreshTokens[tokens.RefreshToken].ExpiresAt = time.Now().Add(-time.Hour)
	_, err := service.RefreshTokens(context.Background(), tokens.RefreshToken)
	assert.ErrorIs(t, err, apperrors.ErrTokenExpired)
}

func TestRefreshTokensUnknown(t *testing.T) {
	_, service := newAuthFixture(t)

	_, err := service.RefreshTokens(context.Background(), "never issued")
	assert.ErrorIs(t, err, apperrors.ErrTokenInvalid)
}

func TestLogoutRevokesToken(t *testing.T) {
	f, service := newAuthFixture(t)
	tokens, _ := registerAndLogin(t, service)

	require.NoError(t, service.Logout(context.Background(), tokens.RefreshToken))
	assert.True(t, f.users.refreshTokens[tokens.RefreshToken].Revoked)
}

func TestDeleteAccount(t *testing.T) {
	f, service := newAuthFixture(t)
	_, user := registerAndLogin(t, service)

	photo := "https://res.cloudinary.com/demo/image/upload/v1/profiles/finn.jpg"
	user.ProfilePhotoURL = &photo

	post := f.st.addPost(&models.Post{Title: "Lost scarf", CreatorID: strangerID})
	conversation := f.st.addConversation(post, user.ID, strangerID)

	require.NoError(t, service.DeleteAccount(context.Background(), user.ID))

	assert.NotContains(t, f.st.users, user.ID)
	assert.NotContains(t, f.st.conversations, conversation.ID)
	assert.Contains(t, f.media.deletes, photo)
}
