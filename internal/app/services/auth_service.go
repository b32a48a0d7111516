package services

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Bluerat1/uniclaim-server/internal/app/models"
	"github.com/Bluerat1/uniclaim-server/internal/app/models/dto"
	"github.com/Bluerat1/uniclaim-server/internal/pkg/apperrors"
	"github.com/Bluerat1/uniclaim-server/internal/pkg/auth"
	"github.com/Bluerat1/uniclaim-server/internal/pkg/storeops"
)

// AuthService defines the interface for authentication operations
type AuthService interface {
	Register(ctx context.Context, req *dto.RegisterRequest) (*models.User, error)
	Login(ctx context.Context, req *dto.LoginRequest) (*dto.TokenResponse, *models.User, error)
	RefreshTokens(ctx context.Context, refreshToken string) (*dto.TokenResponse, error)
	Logout(ctx context.Context, refreshToken string) error
	GetProfile(ctx context.Context, userID int64) (*models.User, error)
	RegisterPushToken(ctx context.Context, userID int64, token string) error
	DeleteAccount(ctx context.Context, userID int64) error
}

// authServiceImpl implements AuthService
type authServiceImpl struct {
	users         UserStore
	conversations ConversationStore
	media         MediaStore
	jwtService    *auth.JWTService
	ops           *storeops.Runner
	logger        zerolog.Logger
}

// NewAuthService creates a new AuthService
func NewAuthService(
	users UserStore,
	conversations ConversationStore,
	media MediaStore,
	jwtService *auth.JWTService,
	ops *storeops.Runner,
	logger zerolog.Logger,
) AuthService {
	return &authServiceImpl{
		users:         users,
		conversations: conversations,
		media:         media,
		jwtService:    jwtService,
		ops:           ops,
		logger:        logger,
	}
}

// Register creates a new account with a bcrypt-hashed password.
func (s *authServiceImpl) Register(ctx context.Context, req *dto.RegisterRequest) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	s.logger.Debug().Str("email", email).Msg("Registering user")

	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Email:               email,
		Password:            hashed,
		FirstName:           req.FirstName,
		LastName:            req.LastName,
		AllowsNotifications: true,
	}
	id, err := s.users.Create(ctx, user)
	if err != nil {
		return nil, err
	}
	user.ID = id

	s.logger.Info().Int64("userID", id).Msg("User registered")
	return user, nil
}

// Login verifies credentials and issues a token pair.
func (s *authServiceImpl) Login(ctx context.Context, req *dto.LoginRequest) (*dto.TokenResponse, *models.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		// A wrong email and a wrong password look the same to callers.
		return nil, nil, apperrors.ErrInvalidCredentials
	}
	if !auth.CheckPassword(user.Password, req.Password) {
		return nil, nil, apperrors.ErrInvalidCredentials
	}

	tokens, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info().Int64("userID", user.ID).Msg("User logged in")
	return tokens, user, nil
}

// RefreshTokens rotates a refresh token into a new token pair.
func (s *authServiceImpl) RefreshTokens(ctx context.Context, refreshToken string) (*dto.TokenResponse, error) {
	stored, err := s.users.FindRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, apperrors.ErrTokenInvalid
	}
	if stored.Revoked {
		return nil, apperrors.ErrTokenRevoked
	}
	if time.Now().After(stored.ExpiresAt) {
		return nil, apperrors.ErrTokenExpired
	}

	user, err := s.users.FindByID(ctx, stored.UserID)
	if err != nil {
		return nil, err
	}

	if err := s.users.RevokeRefreshToken(ctx, refreshToken); err != nil {
		return nil, err
	}
	return s.issueTokens(ctx, user)
}

// Logout revokes the caller's refresh token.
func (s *authServiceImpl) Logout(ctx context.Context, refreshToken string) error {
	return s.users.RevokeRefreshToken(ctx, refreshToken)
}

// GetProfile retrieves the caller's account.
func (s *authServiceImpl) GetProfile(ctx context.Context, userID int64) (*models.User, error) {
	return s.users.FindByID(ctx, userID)
}

// RegisterPushToken attaches a device push token to the account.
func (s *authServiceImpl) RegisterPushToken(ctx context.Context, userID int64, token string) error {
	return s.users.AddPushToken(ctx, userID, token)
}

// DeleteAccount removes the account, its conversations, and its profile
// photo. Media failures are logged, never surfaced.
func (s *authServiceImpl) DeleteAccount(ctx context.Context, userID int64) error {
	s.logger.Debug().Int64("userID", userID).Msg("Deleting account")

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}

	err = s.ops.Do(ctx, "delete account conversations", func(ctx context.Context) error {
		return s.conversations.DeleteForUser(ctx, userID)
	})
	if err != nil {
		return err
	}

	err = s.ops.Do(ctx, "delete account", func(ctx context.Context) error {
		return s.users.Delete(ctx, userID)
	})
	if err != nil {
		return err
	}

	if user.ProfilePhotoURL != nil {
		if _, err := s.media.Delete(ctx, *user.ProfilePhotoURL); err != nil {
			s.logger.Warn().Err(err).
				Int64("userID", userID).
				Msg("Failed to delete profile photo")
		}
	}

	s.logger.Info().Int64("userID", userID).Msg("Account deleted")
	return nil
}

func (s *authServiceImpl) issueTokens(ctx context.Context, user *models.User) (*dto.TokenResponse, error) {
	accessToken, refreshToken, expiresIn, refreshExpiresIn, err := s.jwtService.GenerateTokenPair(user)
	if err != nil {
		return nil, err
	}
	err = s.users.SaveRefreshToken(ctx, user.ID, refreshToken, s.jwtService.GetRefreshTokenExpiry())
	if err != nil {
		return nil, err
	}
	return &dto.TokenResponse{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		ExpiresIn:        expiresIn,
		RefreshExpiresIn: refreshExpiresIn,
	}, nil
}
