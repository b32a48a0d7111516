package services

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/Bluerat1/uniclaim-server/internal/app/models"
	"github.com/Bluerat1/uniclaim-server/internal/app/models/dto"
	"github.com/Bluerat1/uniclaim-server/internal/pkg/apperrors"
	"github.com/Bluerat1/uniclaim-server/internal/pkg/notify"
	"github.com/Bluerat1/uniclaim-server/internal/pkg/storeops"
)

// ConversationPolicy bounds per-conversation message history. A zero
// MessageCap disables the cap entirely; EnforceCap selects between
// advisory warnings and oldest-message eviction.
type ConversationPolicy struct {
	MessageCap int
	EnforceCap bool
}

// ConversationService defines the interface for conversation operations
type ConversationService interface {
	StartConversation(ctx context.Context, userID, postID int64) (*models.Conversation, error)
	GetConversation(ctx context.Context, userID, conversationID int64) (*models.Conversation, error)
	ListConversations(ctx context.Context, userID int64) ([]*models.Conversation, error)
	SendMessage(ctx context.Context, userID, conversationID int64, req *dto.SendMessageRequest) (*models.Message, error)
	ListMessages(ctx context.Context, userID, conversationID int64, filter *dto.ListMessagesRequest) ([]*models.Message, error)
	MarkRead(ctx context.Context, userID, conversationID int64) error
	DeleteMessage(ctx context.Context, userID, messageID int64) error
	DeleteConversation(ctx context.Context, userID, conversationID int64) error
}

// conversationServiceImpl implements ConversationService
type conversationServiceImpl struct {
	conversations ConversationStore
	messages      MessageStore
	posts         PostStore
	users         UserStore
	media         MediaStore
	ops           *storeops.Runner
	events        EventSink
	policy        ConversationPolicy
	logger        zerolog.Logger
}

// NewConversationService creates a new ConversationService
func NewConversationService(
	conversations ConversationStore,
	messages MessageStore,
	posts PostStore,
	users UserStore,
	media MediaStore,
	ops *storeops.Runner,
	events EventSink,
	policy ConversationPolicy,
	logger zerolog.Logger,
) ConversationService {
	return &conversationServiceImpl{
		conversations: conversations,
		messages:      messages,
		posts:         posts,
		users:         users,
		media:         media,
		ops:           ops,
		events:        events,
		policy:        policy,
		logger:        logger,
	}
}

// StartConversation opens (or returns) the conversation between the
// caller and the post owner. The post owner cannot start one with
// themselves.
func (s *conversationServiceImpl) StartConversation(ctx context.Context, userID, postID int64) (*models.Conversation, error) {
	s.logger.Debug().
		Int64("userID", userID).
		Int64("postID", postID).
		Msg("Starting conversation")

	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.Status == models.PostStatusResolved {
		return nil, apperrors.NewConflictError("This item has already been resolved")
	}
	if post.CreatorID == userID {
		return nil, apperrors.NewBadRequestError("You cannot start a conversation about your own post")
	}

	initiator, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	owner, err := s.users.FindByID(ctx, post.CreatorID)
	if err != nil {
		return nil, err
	}

	var conversation *models.Conversation
	err = s.ops.Do(ctx, "open conversation", func(ctx context.Context) error {
		conversation, err = s.conversations.GetOrCreate(ctx, post, initiator, owner)
		return err
	})
	if err != nil {
		return nil, err
	}
	return conversation, nil
}

// GetConversation retrieves a conversation the caller takes part in.
func (s *conversationServiceImpl) GetConversation(ctx context.Context, userID, conversationID int64) (*models.Conversation, error) {
	conversation, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conversation.HasParticipant(userID) {
		return nil, apperrors.ErrNotParticipant
	}
	return conversation, nil
}

// ListConversations retrieves the caller's conversations, most recently
// active first.
func (s *conversationServiceImpl) ListConversations(ctx context.Context, userID int64) ([]*models.Conversation, error) {
	return s.conversations.ListForUser(ctx, userID)
}

// SendMessage appends a plain text message and notifies the counterpart.
func (s *conversationServiceImpl) SendMessage(ctx context.Context, userID, conversationID int64, req *dto.SendMessageRequest) (*models.Message, error) {
	conversation, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	sender := participantOf(conversation, userID)
	if sender == nil {
		return nil, apperrors.ErrNotParticipant
	}

	message := &models.Message{
		ConversationID: conversationID,
		SenderID:       userID,
		SenderName:     sender.DisplayName,
		SenderPhotoURL: sender.ProfilePhotoURL,
		Text:           req.Text,
		Type:           models.MessageTypeText,
		ReadBy:         []int64{userID},
	}

	evict := evictLimit(ctx, s.conversations, s.policy, conversationID, s.logger)
	err = s.ops.Do(ctx, "append message", func(ctx context.Context) error {
		_, err := s.conversations.AppendMessage(ctx, message, evict)
		return err
	})
	if err != nil {
		return nil, err
	}

	if counterpart := conversation.Counterpart(userID); counterpart != nil {
		s.events.Dispatch(notify.Event{
			Type:           notify.EventNewMessage,
			ConversationID: conversationID,
			ResponderID:    userID,
			ResponderName:  sender.DisplayName,
			PostTitle:      conversation.PostTitle,
			TargetUserIDs:  []int64{counterpart.UserID},
		})
	}
	return message, nil
}

// ListMessages retrieves a page of messages, newest first.
func (s *conversationServiceImpl) ListMessages(ctx context.Context, userID, conversationID int64, filter *dto.ListMessagesRequest) ([]*models.Message, error) {
	conversation, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conversation.HasParticipant(userID) {
		return nil, apperrors.ErrNotParticipant
	}

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.messages.ListByConversation(ctx, conversationID, filter.Before, limit)
}

// MarkRead zeroes the caller's unread counter and stamps their id into
// the read_by set of unread messages.
func (s *conversationServiceImpl) MarkRead(ctx context.Context, userID, conversationID int64) error {
	conversation, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if !conversation.HasParticipant(userID) {
		return apperrors.ErrNotParticipant
	}
	return s.ops.Do(ctx, "reset unread", func(ctx context.Context) error {
		return s.conversations.ResetUnread(ctx, conversationID, userID)
	})
}

// DeleteMessage removes the caller's own message, with best-effort
// cleanup of any request payload photos it carried.
func (s *conversationServiceImpl) DeleteMessage(ctx context.Context, userID, messageID int64) error {
	message, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if message.SenderID != userID {
		return apperrors.NewForbiddenError("You can only delete your own messages")
	}

	var photoURLs []string
	if message.HandoverData != nil {
		photoURLs = message.HandoverData.PhotoURLs()
	}
	if message.ClaimData != nil {
		photoURLs = message.ClaimData.PhotoURLs()
	}

	err = s.ops.Do(ctx, "delete message", func(ctx context.Context) error {
		return s.messages.DeleteOwn(ctx, messageID, userID)
	})
	if err != nil {
		return err
	}

	if kind, isRequest := message.RequestKind(); isRequest {
		if err := s.conversations.ClearRequestPointer(ctx, message.ConversationID, kind); err != nil {
			s.logger.Warn().Err(err).
				Int64("conversationID", message.ConversationID).
				Msg("Failed to clear request pointer after message deletion")
		}
	}

	for _, url := range photoURLs {
		if _, err := s.media.Delete(ctx, url); err != nil {
			s.logger.Warn().Err(err).
				Str("url", url).
				Msg("Failed to delete payload photo")
		}
	}
	return nil
}

// DeleteConversation removes a conversation the caller takes part in,
// along with its messages.
func (s *conversationServiceImpl) DeleteConversation(ctx context.Context, userID, conversationID int64) error {
	conversation, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if !conversation.HasParticipant(userID) {
		return apperrors.ErrNotParticipant
	}
	return s.ops.Do(ctx, "delete conversation", func(ctx context.Context) error {
		return s.conversations.Delete(ctx, conversationID)
	})
}

// evictLimit computes the eviction bound for the next append. With the
// cap enforced the bound is the cap itself; otherwise zero (no
// eviction). Crossing cap-5 logs a warning in both modes.
func evictLimit(ctx context.Context, conversations ConversationStore, policy ConversationPolicy, conversationID int64, logger zerolog.Logger) int {
	if policy.MessageCap <= 0 {
		return 0
	}
	count, err := conversations.CountMessages(ctx, conversationID)
	if err != nil {
		logger.Warn().Err(err).
			Int64("conversationID", conversationID).
			Msg("Failed to count messages for cap check")
		return 0
	}
	if count >= policy.MessageCap-5 {
		logger.Warn().
			Int64("conversationID", conversationID).
			Int("count", count).
			Int("cap", policy.MessageCap).
			Msg("Conversation approaching message cap")
	}
	if policy.EnforceCap && count+1 > policy.MessageCap {
		return policy.MessageCap
	}
	return 0
}
