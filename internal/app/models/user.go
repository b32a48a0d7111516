package models

import "time"

// User represents a registered account
type User struct {
	ID                  int64     `json:"id" db:"id"`
	Email               string    `json:"email" db:"email"`
	Password            string    `json:"-" db:"password"`
	FirstName           string    `json:"firstName" db:"first_name"`
	LastName            string    `json:"lastName" db:"last_name"`
	ProfilePhotoURL     *string   `json:"profilePhotoUrl,omitempty" db:"profile_photo_url"`
	PushTokens          []string  `json:"-" db:"push_tokens"`
	AllowsNotifications bool      `json:"allowsNotifications" db:"allows_notifications"`
	CreatedAt           time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt           time.Time `json:"updatedAt" db:"updated_at"`
}

// FullName returns the display name shown in participant snapshots.
func (u *User) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// RefreshToken represents a stored refresh token
type RefreshToken struct {
	ID        int64     `json:"id" db:"id"`
	UserID    int64     `json:"userId" db:"user_id"`
	Token     string    `json:"token" db:"token"`
	ExpiresAt time.Time `json:"expiresAt" db:"expires_at"`
	Revoked   bool      `json:"revoked" db:"revoked"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
