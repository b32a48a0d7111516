package models

import "time"

// MessageType discriminates the message variants in a conversation
type MessageType string

const (
	MessageTypeText             MessageType = "text"
	MessageTypeHandoverRequest  MessageType = "handover_request"
	MessageTypeHandoverResponse MessageType = "handover_response"
	MessageTypeClaimRequest     MessageType = "claim_request"
	MessageTypeClaimResponse    MessageType = "claim_response"
	MessageTypeSystem           MessageType = "system"
)

// Message is an entry in a conversation's ordered history. Request
// messages carry exactly one of HandoverData or ClaimData; the variant
// is fixed by MessageType and never changes after creation, even as the
// embedded payload advances through its status lifecycle.
type Message struct {
	ID              int64       `json:"id" db:"id"`
	ConversationID  int64       `json:"conversationId" db:"conversation_id"`
	SenderID        int64       `json:"senderId" db:"sender_id"`
	SenderName      string      `json:"senderName" db:"sender_name"`
	SenderPhotoURL  *string     `json:"senderPhotoUrl,omitempty" db:"sender_photo_url"`
	Text            string      `json:"text" db:"text"`
	Type            MessageType `json:"messageType" db:"message_type"`
	ReadBy          []int64     `json:"readBy" db:"read_by"`
	RequestStatus   *RequestStatus `json:"requestStatus,omitempty" db:"request_status"`
	HandoverData    *HandoverData  `json:"handoverData,omitempty" db:"handover_data"`
	ClaimData       *ClaimData     `json:"claimData,omitempty" db:"claim_data"`
	CreatedAt       time.Time      `json:"createdAt" db:"created_at"`
}

// RequestKind returns the workflow kind of a request message, or false
// for plain text and system messages.
func (m *Message) RequestKind() (RequestKind, bool) {
	switch m.Type {
	case MessageTypeHandoverRequest, MessageTypeHandoverResponse:
		return RequestKindHandover, true
	case MessageTypeClaimRequest, MessageTypeClaimResponse:
		return RequestKindClaim, true
	}
	return "", false
}

// Payload returns the embedded request payload common view for a request
// message, or nil for other message types.
func (m *Message) Payload() *RequestPayload {
	switch {
	case m.HandoverData != nil:
		return &m.HandoverData.RequestPayload
	case m.ClaimData != nil:
		return &m.ClaimData.RequestPayload
	}
	return nil
}

// RequestPayload holds the fields shared by handover and claim payloads.
// It is owned exclusively by its parent message.
type RequestPayload struct {
	PostID           int64      `json:"postId"`
	PostTitle        string     `json:"postTitle"`
	Reason           string     `json:"reason"`
	RequesterIDPhoto *string    `json:"requesterIdPhoto,omitempty"`
	OwnerIDPhoto     *string    `json:"ownerIdPhoto,omitempty"`
	PhotoConfirmed   bool       `json:"photoConfirmed"`
	PhotosDeleted    bool       `json:"photosDeleted"`
	ResponderID      *int64     `json:"responderId,omitempty"`
	RespondedAt      *time.Time `json:"respondedAt,omitempty"`
}

// HandoverData is the payload of a handover request message. ItemPhotos
// show the found item in the finder's custody (at most 3).
type HandoverData struct {
	RequestPayload
	ItemPhotos []string `json:"itemPhotos"`
}

// ClaimData is the payload of a claim request message. EvidencePhotos
// support the ownership assertion (at most 5).
type ClaimData struct {
	RequestPayload
	EvidencePhotos []string `json:"evidencePhotos"`
}

// PhotoURLs lists every photo URL referenced by the payload, in a stable
// order, skipping cleared fields.
func (d *HandoverData) PhotoURLs() []string {
	return collectPhotoURLs(&d.RequestPayload, d.ItemPhotos)
}

// PhotoURLs lists every photo URL referenced by the payload.
func (d *ClaimData) PhotoURLs() []string {
	return collectPhotoURLs(&d.RequestPayload, d.EvidencePhotos)
}

// ClearPhotos nulls every photo URL field and marks the payload so the
// clients stop rendering now-deleted images.
func (d *HandoverData) ClearPhotos() {
	d.ItemPhotos = nil
	clearSharedPhotos(&d.RequestPayload)
}

// ClearPhotos nulls every photo URL field and marks the payload.
func (d *ClaimData) ClearPhotos() {
	d.EvidencePhotos = nil
	clearSharedPhotos(&d.RequestPayload)
}

func collectPhotoURLs(p *RequestPayload, extra []string) []string {
	var urls []string
	if p.RequesterIDPhoto != nil && *p.RequesterIDPhoto != "" {
		urls = append(urls, *p.RequesterIDPhoto)
	}
	urls = append(urls, extra...)
	if p.OwnerIDPhoto != nil && *p.OwnerIDPhoto != "" {
		urls = append(urls, *p.OwnerIDPhoto)
	}
	return urls
}

func clearSharedPhotos(p *RequestPayload) {
	p.RequesterIDPhoto = nil
	p.OwnerIDPhoto = nil
	p.PhotosDeleted = true
}
