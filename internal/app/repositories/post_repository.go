package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Bluerat1/uniclaim-server/internal/app/models"
	"github.com/Bluerat1/uniclaim-server/internal/app/models/dto"
	"github.com/Bluerat1/uniclaim-server/internal/pkg/apperrors"
	"github.com/Bluerat1/uniclaim-server/internal/pkg/dberrors"
)

// PostRepository handles database operations for posts
type PostRepository struct {
	db *pgxpool.Pool
}

// NewPostRepository creates a new PostRepository
func NewPostRepository(db *pgxpool.Pool) *PostRepository {
	return &PostRepository{db: db}
}

// Create inserts a new post
func (r *PostRepository) Create(ctx context.Context, post *models.Post) (int64, error) {
	query := `
		INSERT INTO posts (
			title, description, category, location, type, status,
			creator_id, found_action, image_urls, expires_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		post.Title,
		post.Description,
		post.Category,
		post.Location,
		post.Type,
		post.Status,
		post.CreatorID,
		post.FoundAction,
		post.ImageURLs,
		post.ExpiresAt,
	).Scan(&post.ID, &post.CreatedAt, &post.UpdatedAt)

	if err != nil {
		return 0, dberrors.Translate(fmt.Errorf("error creating post: %w", err))
	}

	return post.ID, nil
}

// GetByID retrieves a post by id
func (r *PostRepository) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	query := `
		SELECT id, title, description, category, location, type, status,
		       creator_id, found_action, image_urls, hidden, flagged,
		       expires_at, created_at, updated_at
		FROM posts
		WHERE id = $1
	`

	var post models.Post
	err := r.db.QueryRow(ctx, query, id).Scan(
		&post.ID,
		&post.Title,
		&post.Description,
		&post.Category,
		&post.Location,
		&post.Type,
		&post.Status,
		&post.CreatorID,
		&post.FoundAction,
		&post.ImageURLs,
		&post.Hidden,
		&post.Flagged,
		&post.ExpiresAt,
		&post.CreatedAt,
		&post.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrPostNotFound
		}
		return nil, dberrors.Translate(fmt.Errorf("error retrieving post: %w", err))
	}

	return &post, nil
}

// List retrieves posts matching the filter, newest first
func (r *PostRepository) List(ctx context.Context, filter *dto.PostFilter, offset uint64, limit int) ([]*models.Post, int64, error) {
	builder := squirrel.Select(
		"id", "title", "description", "category", "location", "type", "status",
		"creator_id", "found_action", "image_urls", "hidden", "flagged",
		"expires_at", "created_at", "updated_at",
	).
		From("posts").
		Where("NOT hidden").
		OrderBy("created_at DESC").
		Offset(offset).
		Limit(uint64(limit)).
		PlaceholderFormat(squirrel.Dollar)

	countBuilder := squirrel.Select("COUNT(*)").
		From("posts").
		Where("NOT hidden").
		PlaceholderFormat(squirrel.Dollar)

	apply := func(b squirrel.SelectBuilder) squirrel.SelectBuilder {
		if filter.Type != "" {
			b = b.Where("type = ?", filter.Type)
		}
		if filter.Category != "" {
			b = b.Where("category = ?", filter.Category)
		}
		if filter.Status != "" {
			b = b.Where("status = ?", filter.Status)
		}
		if filter.CreatorID != nil {
			b = b.Where("creator_id = ?", *filter.CreatorID)
		}
		if filter.Search != "" {
			b = b.Where("(title ILIKE ? OR description ILIKE ?)", "%"+filter.Search+"%", "%"+filter.Search+"%")
		}
		return b
	}
	builder = apply(builder)
	countBuilder = apply(countBuilder)

	countSQL, countArgs, err := countBuilder.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("error building count SQL: %w", err)
	}

	var total int64
	if err := r.db.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, dberrors.Translate(fmt.Errorf("error counting posts: %w", err))
	}

	listSQL, listArgs, err := builder.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("error building SQL: %w", err)
	}

	rows, err := r.db.Query(ctx, listSQL, listArgs...)
	if err != nil {
		return nil, 0, dberrors.Translate(fmt.Errorf("error executing query: %w", err))
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		var post models.Post
		err := rows.Scan(
			&post.ID,
			&post.Title,
			&post.Description,
			&post.Category,
			&post.Location,
			&post.Type,
			&post.Status,
			&post.CreatorID,
			&post.FoundAction,
			&post.ImageURLs,
			&post.Hidden,
			&post.Flagged,
			&post.ExpiresAt,
			&post.CreatedAt,
			&post.UpdatedAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("error scanning post row: %w", err)
		}
		posts = append(posts, &post)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating post rows: %w", err)
	}

	return posts, total, nil
}

// UpdateStatus changes a post's resolution status
func (r *PostRepository) UpdateStatus(ctx context.Context, id int64, status models.PostStatus) error {
	result, err := r.db.Exec(ctx,
		`UPDATE posts SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return dberrors.Translate(fmt.Errorf("error updating post status: %w", err))
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrPostNotFound
	}
	return nil
}

// MarkResolved sets the post resolved and archives the conversation
// transcript onto the post for audit purposes, in one statement.
func (r *PostRepository) MarkResolved(ctx context.Context, id int64, transcript json.RawMessage) error {
	result, err := r.db.Exec(ctx, `
		UPDATE posts
		SET status = $2, transcript = $3, updated_at = NOW()
		WHERE id = $1
	`, id, models.PostStatusResolved, transcript)
	if err != nil {
		return dberrors.Translate(fmt.Errorf("error resolving post: %w", err))
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrPostNotFound
	}
	return nil
}

// Moderate toggles the hidden/flagged moderation flags
func (r *PostRepository) Moderate(ctx context.Context, id int64, hidden, flagged *bool) error {
	builder := squirrel.Update("posts").
		Set("updated_at", squirrel.Expr("NOW()")).
		Where("id = ?", id).
		PlaceholderFormat(squirrel.Dollar)
	if hidden != nil {
		builder = builder.Set("hidden", *hidden)
	}
	if flagged != nil {
		builder = builder.Set("flagged", *flagged)
	}

	sql, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("error building SQL: %w", err)
	}

	result, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return dberrors.Translate(fmt.Errorf("error moderating post: %w", err))
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrPostNotFound
	}
	return nil
}

// Delete removes a post. Conversations referencing it cascade.
func (r *PostRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.Exec(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return dberrors.Translate(fmt.Errorf("error deleting post: %w", err))
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrPostNotFound
	}
	return nil
}
