package models

import "time"

// Conversation pairs a post owner with an interested user. Exactly two
// participants take part in one conversation about one post.
type Conversation struct {
	ID                 int64     `json:"id" db:"id"`
	PostID             int64     `json:"postId" db:"post_id"`
	PostTitle          string    `json:"postTitle" db:"post_title"`
	PostCreatorID      int64     `json:"postCreatorId" db:"post_creator_id"`
	LastMessageText    *string   `json:"lastMessageText,omitempty" db:"last_message_text"`
	LastMessageSender  *int64    `json:"lastMessageSenderId,omitempty" db:"last_message_sender_id"`
	LastMessageAt      *time.Time `json:"lastMessageAt,omitempty" db:"last_message_at"`
	HasHandoverRequest bool      `json:"hasHandoverRequest" db:"has_handover_request"`
	HasClaimRequest    bool      `json:"hasClaimRequest" db:"has_claim_request"`
	// Request pointers cache the id of the currently active request
	// message of each kind so duplicate checks never scan all messages.
	ActiveHandoverMessageID *int64    `json:"activeHandoverMessageId,omitempty" db:"active_handover_message_id"`
	ActiveClaimMessageID    *int64    `json:"activeClaimMessageId,omitempty" db:"active_claim_message_id"`
	CreatedAt               time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt               time.Time `json:"updatedAt" db:"updated_at"`

	// Related entities
	Participants []*ConversationParticipant `json:"participants,omitempty"`
}

// ConversationParticipant carries one participant's profile snapshot and
// unread counter for a conversation.
type ConversationParticipant struct {
	ID              int64     `json:"id" db:"id"`
	ConversationID  int64     `json:"conversationId" db:"conversation_id"`
	UserID          int64     `json:"userId" db:"user_id"`
	DisplayName     string    `json:"displayName" db:"display_name"`
	ProfilePhotoURL *string   `json:"profilePhotoUrl,omitempty" db:"profile_photo_url"`
	UnreadCount     int       `json:"unreadCount" db:"unread_count"`
	JoinedAt        time.Time `json:"joinedAt" db:"joined_at"`
}

// ActiveRequestPointer returns the cached request-message pointer for the
// given kind, or nil when no request of that kind has been recorded.
func (c *Conversation) ActiveRequestPointer(kind RequestKind) *int64 {
	if kind == RequestKindHandover {
		return c.ActiveHandoverMessageID
	}
	return c.ActiveClaimMessageID
}

// Counterpart returns the participant other than userID, or nil when the
// conversation does not include such a participant.
func (c *Conversation) Counterpart(userID int64) *ConversationParticipant {
	for _, p := range c.Participants {
		if p.UserID != userID {
			return p
		}
	}
	return nil
}

// HasParticipant reports whether userID takes part in the conversation.
func (c *Conversation) HasParticipant(userID int64) bool {
	for _, p := range c.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}
