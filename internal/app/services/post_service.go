package services

import (
	"context"
	"mime/multipart"
	"time"

	"github.com/rs/zerolog"

	"github.com/Bluerat1/uniclaim-server/internal/app/models"
	"github.com/Bluerat1/uniclaim-server/internal/app/models/dto"
	"github.com/Bluerat1/uniclaim-server/internal/pkg/apperrors"
	"github.com/Bluerat1/uniclaim-server/internal/pkg/storeops"
)

const maxPostImages = 3

// PostService defines the interface for lost/found post operations
type PostService interface {
	CreatePost(ctx context.Context, userID int64, req *dto.CreatePostRequest, images []*multipart.FileHeader) (*models.Post, error)
	GetPost(ctx context.Context, id int64) (*models.Post, error)
	ListPosts(ctx context.Context, filter *dto.PostFilter) ([]*models.Post, int64, error)
	UpdateStatus(ctx context.Context, userID, postID int64, status models.PostStatus) error
	ModeratePost(ctx context.Context, postID int64, hidden, flagged *bool) error
	DeletePost(ctx context.Context, userID, postID int64) error
}

// postServiceImpl implements PostService
type postServiceImpl struct {
	posts      PostStore
	media      MediaStore
	ops        *storeops.Runner
	expiryDays int
	logger     zerolog.Logger
}

// NewPostService creates a new PostService
func NewPostService(posts PostStore, media MediaStore, ops *storeops.Runner, expiryDays int, logger zerolog.Logger) PostService {
	return &postServiceImpl{
		posts:      posts,
		media:      media,
		ops:        ops,
		expiryDays: expiryDays,
		logger:     logger,
	}
}

// CreatePost reports a lost or found item, uploading its images first.
func (s *postServiceImpl) CreatePost(ctx context.Context, userID int64, req *dto.CreatePostRequest, images []*multipart.FileHeader) (*models.Post, error) {
	s.logger.Debug().
		Int64("userID", userID).
		Str("type", req.Type).
		Msg("Creating post")

	if len(images) > maxPostImages {
		return nil, apperrors.NewValidationError("A post allows at most 3 images")
	}
	if req.Type == string(models.PostTypeFound) && req.FoundAction == "" {
		return nil, apperrors.NewValidationError("A found-item post requires a found action")
	}

	imageURLs, err := s.uploadImages(ctx, images)
	if err != nil {
		// Uploads that landed before the failure are orphaned; remove them.
		s.deleteImages(ctx, imageURLs)
		return nil, err
	}

	post := &models.Post{
		CreatorID:   userID,
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Location:    req.Location,
		Type:        models.PostType(req.Type),
		Status:      models.PostStatusPending,
		FoundAction: models.FoundAction(req.FoundAction),
		ImageURLs:   imageURLs,
	}
	if s.expiryDays > 0 {
		expiresAt := time.Now().AddDate(0, 0, s.expiryDays)
		post.ExpiresAt = &expiresAt
	}

	var id int64
	err = s.ops.Do(ctx, "create post", func(ctx context.Context) error {
		id, err = s.posts.Create(ctx, post)
		return err
	})
	if err != nil {
		s.deleteImages(ctx, imageURLs)
		return nil, err
	}
	post.ID = id

	s.logger.Info().Int64("postID", id).Msg("Post created")
	return post, nil
}

// GetPost retrieves a post by id.
func (s *postServiceImpl) GetPost(ctx context.Context, id int64) (*models.Post, error) {
	return s.posts.GetByID(ctx, id)
}

// ListPosts retrieves a filtered page of posts and the total count.
func (s *postServiceImpl) ListPosts(ctx context.Context, filter *dto.PostFilter) ([]*models.Post, int64, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.Size
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := uint64((page - 1) * size)
	return s.posts.List(ctx, filter, offset, size)
}

// UpdateStatus changes a post's resolution status. Only the creator may
// do this; a resolved post stays resolved.
func (s *postServiceImpl) UpdateStatus(ctx context.Context, userID, postID int64, status models.PostStatus) error {
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return err
	}
	if post.CreatorID != userID {
		return apperrors.NewForbiddenError("Only the post creator can change its status")
	}
	if post.Status == models.PostStatusResolved {
		return apperrors.NewCustomError(apperrors.ErrPostResolved, "This post has already been resolved")
	}
	return s.ops.Do(ctx, "update post status", func(ctx context.Context) error {
		return s.posts.UpdateStatus(ctx, postID, status)
	})
}

// ModeratePost toggles a post's hidden/flagged moderation flags.
func (s *postServiceImpl) ModeratePost(ctx context.Context, postID int64, hidden, flagged *bool) error {
	if hidden == nil && flagged == nil {
		return apperrors.NewBadRequestError("Nothing to moderate")
	}
	if _, err := s.posts.GetByID(ctx, postID); err != nil {
		return err
	}
	return s.ops.Do(ctx, "moderate post", func(ctx context.Context) error {
		return s.posts.Moderate(ctx, postID, hidden, flagged)
	})
}

// DeletePost removes the creator's post. Its conversations cascade; its
// images are removed best-effort afterwards.
func (s *postServiceImpl) DeletePost(ctx context.Context, userID, postID int64) error {
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return err
	}
	if post.CreatorID != userID {
		return apperrors.NewForbiddenError("Only the post creator can delete it")
	}

	err = s.ops.Do(ctx, "delete post", func(ctx context.Context) error {
		return s.posts.Delete(ctx, postID)
	})
	if err != nil {
		return err
	}

	s.deleteImages(ctx, post.ImageURLs)
	s.logger.Info().Int64("postID", postID).Msg("Post deleted")
	return nil
}

func (s *postServiceImpl) uploadImages(ctx context.Context, images []*multipart.FileHeader) ([]string, error) {
	var urls []string
	for _, header := range images {
		file, err := header.Open()
		if err != nil {
			return urls, apperrors.NewCustomError(apperrors.ErrMediaUploadFailed, "Failed to read uploaded image")
		}
		url, err := s.media.Upload(ctx, file, "posts")
		file.Close()
		if err != nil {
			return urls, err
		}
		urls = append(urls, url)
	}
	return urls, nil
}

func (s *postServiceImpl) deleteImages(ctx context.Context, urls []string) {
	for _, url := range urls {
		if _, err := s.media.Delete(ctx, url); err != nil {
			s.logger.Warn().Err(err).
				Str("url", url).
				Msg("Failed to delete post image")
		}
	}
}
