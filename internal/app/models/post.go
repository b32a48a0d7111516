package models

import (
	"encoding/json"
	"time"
)

// Post represents a lost or found item report
type Post struct {
	ID          int64       `json:"id" db:"id"`
	Title       string      `json:"title" db:"title"`
	Description string      `json:"description" db:"description"`
	Category    string      `json:"category" db:"category"`
	Location    string      `json:"location" db:"location"`
	Type        PostType    `json:"type" db:"type"`
	Status      PostStatus  `json:"status" db:"status"`
	CreatorID   int64       `json:"creatorId" db:"creator_id"`
	FoundAction FoundAction `json:"foundAction,omitempty" db:"found_action"`
	ImageURLs   []string    `json:"imageUrls" db:"image_urls"`
	Hidden      bool        `json:"hidden" db:"hidden"`
	Flagged     bool        `json:"flagged" db:"flagged"`
	ExpiresAt   *time.Time  `json:"expiresAt,omitempty" db:"expires_at"`
	// Transcript holds the archived conversation history written when a
	// handover or claim against this post is confirmed.
	Transcript json.RawMessage `json:"-" db:"transcript"`
	CreatedAt  time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt  time.Time       `json:"updatedAt" db:"updated_at"`

	// Related entities
	Creator *User `json:"creator,omitempty"`
}
