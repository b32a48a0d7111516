package services

import (
	"context"
	"mime/multipart"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bluerat1/uniclaim-server/internal/app/models"
	"github.com/Bluerat1/uniclaim-server/internal/app/models/dto"
	"github.com/Bluerat1/uniclaim-server/internal/pkg/apperrors"
	"github.com/Bluerat1/uniclaim-server/internal/pkg/storeops"
)

func newPostService(t *testing.T) (*fakeState, *fakeMedia, PostService) {
	t.Helper()
	st := newFakeState()
	media := &fakeMedia{}
	ops := storeops.NewRunner(nil, zerolog.Nop()).WithBackoff(1, time.Millisecond)
	service := NewPostService(&fakePosts{st: st}, media, ops, 30, zerolog.Nop())
	return st, media, service
}

func TestCreatePost(t *testing.T) {
	st, _, service := newPostService(t)

	post, err := service.CreatePost(context.Background(), ownerID, &dto.CreatePostRequest{
		Title:       "Blue backpack",
		Description: "Left near the library entrance",
		Category:    "bags",
		Location:    "Library",
		Type:        "lost",
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, models.PostStatusPending, post.Status)
	assert.Equal(t, models.PostTypeLost, post.Type)
	require.NotNil(t, post.ExpiresAt)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, 30), *post.ExpiresAt, time.Minute)
	assert.Contains(t, st.posts, post.ID)
}

func TestCreatePostValidation(t *testing.T) {
	_, _, service := newPostService(t)
	ctx := context.Background()

	_, err := service.CreatePost(ctx, ownerID, &dto.CreatePostRequest{
		Title:       "Found keys",
		Description: "On the third floor",
		Category:    "keys",
		Location:    "Engineering",
		Type:        "found",
	}, nil)
	assert.ErrorIs(t, err, apperrors.ErrValidationFailed)

	tooMany := make([]*multipart.FileHeader, maxPostImages+1)
	_, err = service.CreatePost(ctx, ownerID, &dto.CreatePostRequest{
		Title:       "Blue backpack",
		Description: "Left near the library entrance",
		Category:    "bags",
		Location:    "Library",
		Type:        "lost",
	}, tooMany)
	assert.ErrorIs(t, err, apperrors.ErrValidationFailed)
}

func TestUpdateStatus(t *testing.T) {
	st, _, service := newPostService(t)
	post := st.addPost(&models.Post{Title: "Wallet", CreatorID: ownerID, Status: models.PostStatusPending})

	require.NoError(t, service.UpdateStatus(context.Background(), ownerID, post.ID, models.PostStatusUnclaimed))
	assert.Equal(t, models.PostStatusUnclaimed, post.Status)

	err := service.UpdateStatus(context.Background(), requesterID, post.ID, models.PostStatusPending)
	assert.ErrorIs(t, err, apperrors.ErrPermissionDenied)
}

func TestUpdateStatusResolvedIsSticky(t *testing.T) {
	st, _, service := newPostService(t)
	post := st.addPost(&models.Post{Title: "Wallet", CreatorID: ownerID, Status: models.PostStatusResolved})

	err := service.UpdateStatus(context.Background(), ownerID, post.ID, models.PostStatusPending)
	assert.ErrorIs(t, err, apperrors.ErrPostResolved)
	assert.Equal(t, models.PostStatusResolved, post.Status)
}

func TestModeratePost(t *testing.T) {
	st, _, service := newPostService(t)
	post := st.addPost(&models.Post{Title: "Wallet", CreatorID: ownerID})

	err := service.ModeratePost(context.Background(), post.ID, nil, nil)
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)

	hidden := true
	require.NoError(t, service.ModeratePost(context.Background(), post.ID, &hidden, nil))
	assert.True(t, post.Hidden)
	assert.False(t, post.Flagged)
}

func TestDeletePost(t *testing.T) {
	st, media, service := newPostService(t)
	post := st.addPost(&models.Post{
		Title:     "Wallet",
		CreatorID: ownerID,
		ImageURLs: []string{"https://res.cloudinary.com/demo/image/upload/v1/posts/wallet.jpg"},
	})

	err := service.DeletePost(context.Background(), requesterID, post.ID)
	assert.ErrorIs(t, err, apperrors.ErrPermissionDenied)

	require.NoError(t, service.DeletePost(context.Background(), ownerID, post.ID))
	assert.NotContains(t, st.posts, post.ID)
	assert.Equal(t, []string{"https://res.cloudinary.com/demo/image/upload/v1/posts/wallet.jpg"}, media.deletes)
}
