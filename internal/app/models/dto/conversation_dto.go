package dto

import (
	"time"

	"github.com/Bluerat1/uniclaim-server/internal/app/models"
)

// StartConversationRequest opens (or returns) the conversation between
// the caller and the post owner.
type StartConversationRequest struct {
	PostID int64 `json:"postId" binding:"required"`
}

// SendMessageRequest is the payload for a plain text message.
type SendMessageRequest struct {
	Text string `json:"text" binding:"required,min=1,max=2000"`
}

// ListMessagesRequest collects the message-listing filters. Before is
// a message-id cursor; a zero value fetches the newest page.
type ListMessagesRequest struct {
	Before int64 `form:"before"`
	Limit  int   `form:"limit"`
}

// ParticipantResponse is one participant's snapshot in a conversation.
type ParticipantResponse struct {
	UserID          int64   `json:"userId"`
	DisplayName     string  `json:"displayName"`
	ProfilePhotoURL *string `json:"profilePhotoUrl,omitempty"`
	UnreadCount     int     `json:"unreadCount"`
}

// ConversationResponse is the public view of a conversation.
type ConversationResponse struct {
	ID                 int64                 `json:"id"`
	PostID             int64                 `json:"postId"`
	PostTitle          string                `json:"postTitle"`
	PostCreatorID      int64                 `json:"postCreatorId"`
	LastMessageText    *string               `json:"lastMessageText,omitempty"`
	LastMessageAt      *time.Time            `json:"lastMessageAt,omitempty"`
	HasHandoverRequest bool                  `json:"hasHandoverRequest"`
	HasClaimRequest    bool                  `json:"hasClaimRequest"`
	Participants       []ParticipantResponse `json:"participants"`
	CreatedAt          time.Time             `json:"createdAt"`
}

// ToConversationResponse converts a conversation model to its response view.
func ToConversationResponse(conversation *models.Conversation) ConversationResponse {
	response := ConversationResponse{
		ID:                 conversation.ID,
		PostID:             conversation.PostID,
		PostTitle:          conversation.PostTitle,
		PostCreatorID:      conversation.PostCreatorID,
		LastMessageText:    conversation.LastMessageText,
		LastMessageAt:      conversation.LastMessageAt,
		HasHandoverRequest: conversation.HasHandoverRequest,
		HasClaimRequest:    conversation.HasClaimRequest,
		CreatedAt:          conversation.CreatedAt,
	}
	for _, p := range conversation.Participants {
		response.Participants = append(response.Participants, ParticipantResponse{
			UserID:          p.UserID,
			DisplayName:     p.DisplayName,
			ProfilePhotoURL: p.ProfilePhotoURL,
			UnreadCount:     p.UnreadCount,
		})
	}
	return response
}

// MessageResponse is the public view of a message and its payload.
type MessageResponse struct {
	ID             int64                 `json:"id"`
	ConversationID int64                 `json:"conversationId"`
	SenderID       int64                 `json:"senderId"`
	SenderName     string                `json:"senderName"`
	SenderPhotoURL *string               `json:"senderPhotoUrl,omitempty"`
	Text           string                `json:"text"`
	MessageType    string                `json:"messageType"`
	RequestStatus  *string               `json:"requestStatus,omitempty"`
	HandoverData   *models.HandoverData  `json:"handoverData,omitempty"`
	ClaimData      *models.ClaimData     `json:"claimData,omitempty"`
	ReadBy         []int64               `json:"readBy"`
	CreatedAt      time.Time             `json:"createdAt"`
}

// ToMessageResponse converts a message model to its response view.
func ToMessageResponse(message *models.Message) MessageResponse {
	response := MessageResponse{
		ID:             message.ID,
		ConversationID: message.ConversationID,
		SenderID:       message.SenderID,
		SenderName:     message.SenderName,
		SenderPhotoURL: message.SenderPhotoURL,
		Text:           message.Text,
		MessageType:    string(message.Type),
		HandoverData:   message.HandoverData,
		ClaimData:      message.ClaimData,
		ReadBy:         message.ReadBy,
		CreatedAt:      message.CreatedAt,
	}
	if message.RequestStatus != nil {
		status := string(*message.RequestStatus)
		response.RequestStatus = &status
	}
	return response
}
