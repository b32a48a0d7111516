package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Bluerat1/uniclaim-server/internal/app/models"
	"github.com/Bluerat1/uniclaim-server/internal/pkg/apperrors"
	"github.com/Bluerat1/uniclaim-server/internal/pkg/dberrors"
)

// UserRepository handles database operations for users
type UserRepository struct {
	db *pgxpool.Pool
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user
func (r *UserRepository) Create(ctx context.Context, user *models.User) (int64, error) {
	query := `
		INSERT INTO users (email, password, first_name, last_name, profile_photo_url, allows_notifications)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		user.Email,
		user.Password,
		user.FirstName,
		user.LastName,
		user.ProfilePhotoURL,
		user.AllowsNotifications,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		if dberrors.IsDuplicateConstraintError(err, "users_email_key") {
			return 0, apperrors.ErrEmailAlreadyExists
		}
		return 0, dberrors.Translate(fmt.Errorf("error creating user: %w", err))
	}

	return user.ID, nil
}

// FindByID retrieves a user by id
func (r *UserRepository) FindByID(ctx context.Context, id int64) (*models.User, error) {
	query := `
		SELECT id, email, password, first_name, last_name, profile_photo_url,
		       push_tokens, allows_notifications, created_at, updated_at
		FROM users
		WHERE id = $1
	`
	return r.scanUser(r.db.QueryRow(ctx, query, id))
}

// FindByEmail retrieves a user by email
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `
		SELECT id, email, password, first_name, last_name, profile_photo_url,
		       push_tokens, allows_notifications, created_at, updated_at
		FROM users
		WHERE email = $1
	`
	return r.scanUser(r.db.QueryRow(ctx, query, email))
}

func (r *UserRepository) scanUser(row pgx.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Password,
		&user.FirstName,
		&user.LastName,
		&user.ProfilePhotoURL,
		&user.PushTokens,
		&user.AllowsNotifications,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, dberrors.Translate(fmt.Errorf("error retrieving user: %w", err))
	}
	return &user, nil
}

// AddPushToken appends a device push token if not already registered
func (r *UserRepository) AddPushToken(ctx context.Context, userID int64, token string) error {
	query := `
		UPDATE users
		SET push_tokens = array_append(push_tokens, $2), updated_at = NOW()
		WHERE id = $1 AND NOT ($2 = ANY(push_tokens))
	`
	_, err := r.db.Exec(ctx, query, userID, token)
	if err != nil {
		return dberrors.Translate(fmt.Errorf("error adding push token: %w", err))
	}
	return nil
}

// PushTokensForUsers collects push tokens for users that allow
// notifications. Satisfies the notification dispatcher's token source.
func (r *UserRepository) PushTokensForUsers(ctx context.Context, userIDs []int64) ([]string, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT push_tokens
		FROM users
		WHERE id = ANY($1) AND allows_notifications
	`
	rows, err := r.db.Query(ctx, query, userIDs)
	if err != nil {
		return nil, dberrors.Translate(fmt.Errorf("error retrieving push tokens: %w", err))
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var userTokens []string
		if err := rows.Scan(&userTokens); err != nil {
			return nil, fmt.Errorf("error scanning push tokens: %w", err)
		}
		tokens = append(tokens, userTokens...)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating push token rows: %w", err)
	}

	return tokens, nil
}

// Delete removes a user account. Conversations and their messages are
// removed by foreign-key cascade.
func (r *UserRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return dberrors.Translate(fmt.Errorf("error deleting user: %w", err))
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrUserNotFound
	}
	return nil
}

// SaveRefreshToken stores a refresh token for a user
func (r *UserRepository) SaveRefreshToken(ctx context.Context, userID int64, token string, expiresAt time.Time) error {
	query := `
		INSERT INTO refresh_tokens (user_id, token, expires_at)
		VALUES ($1, $2, $3)
	`
	_, err := r.db.Exec(ctx, query, userID, token, expiresAt)
	if err != nil {
		return dberrors.Translate(fmt.Errorf("error saving refresh token: %w", err))
	}
	return nil
}

// FindRefreshToken retrieves a stored refresh token
func (r *UserRepository) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	query := `
		SELECT id, user_id, token, expires_at, revoked, created_at
		FROM refresh_tokens
		WHERE token = $1
	`
	var rt models.RefreshToken
	err := r.db.QueryRow(ctx, query, token).Scan(
		&rt.ID,
		&rt.UserID,
		&rt.Token,
		&rt.ExpiresAt,
		&rt.Revoked,
		&rt.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrTokenNotFound
		}
		return nil, dberrors.Translate(fmt.Errorf("error retrieving refresh token: %w", err))
	}
	return &rt, nil
}

// RevokeRefreshToken marks a refresh token as revoked
func (r *UserRepository) RevokeRefreshToken(ctx context.Context, token string) error {
	_, err := r.db.Exec(ctx, `UPDATE refresh_tokens SET revoked = TRUE WHERE token = $1`, token)
	if err != nil {
		return dberrors.Translate(fmt.Errorf("error revoking refresh token: %w", err))
	}
	return nil
}
