package dto

import (
	"time"

	"github.com/Bluerat1/uniclaim-server/internal/app/models"
)

// CreatePostRequest is the payload for reporting a lost or found item.
// Images arrive as separate multipart files alongside this payload.
type CreatePostRequest struct {
	Title       string `form:"title" binding:"required,min=3,max=200"`
	Description string `form:"description" binding:"required,min=3"`
	Category    string `form:"category" binding:"required"`
	Location    string `form:"location" binding:"required"`
	Type        string `form:"type" binding:"required,oneof=lost found"`
	FoundAction string `form:"foundAction" binding:"omitempty,oneof='keep' 'turnover to OSA' 'turnover to Campus Security'"`
}

// UpdatePostStatusRequest changes a post's resolution status.
type UpdatePostStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=pending resolved unclaimed"`
}

// ModeratePostRequest toggles a post's moderation flags.
type ModeratePostRequest struct {
	Hidden  *bool `json:"hidden"`
	Flagged *bool `json:"flagged"`
}

// PostFilter collects the list-endpoint filters.
type PostFilter struct {
	Type      string
	Category  string
	Status    string
	CreatorID *int64
	Search    string
	Page      int
	Size      int
}

// PostResponse is the public view of a post.
type PostResponse struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	Location    string     `json:"location"`
	Type        string     `json:"type"`
	Status      string     `json:"status"`
	CreatorID   int64      `json:"creatorId"`
	FoundAction string     `json:"foundAction,omitempty"`
	ImageURLs   []string   `json:"imageUrls"`
	Flagged     bool       `json:"flagged"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// ToPostResponse converts a post model to its response view.
func ToPostResponse(post *models.Post) PostResponse {
	return PostResponse{
		ID:          post.ID,
		Title:       post.Title,
		Description: post.Description,
		Category:    post.Category,
		Location:    post.Location,
		Type:        string(post.Type),
		Status:      string(post.Status),
		CreatorID:   post.CreatorID,
		FoundAction: string(post.FoundAction),
		ImageURLs:   post.ImageURLs,
		Flagged:     post.Flagged,
		ExpiresAt:   post.ExpiresAt,
		CreatedAt:   post.CreatedAt,
	}
}
