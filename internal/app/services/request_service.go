package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/Bluerat1/uniclaim-server/internal/app/models"
	"github.com/Bluerat1/uniclaim-server/internal/app/models/dto"
	"github.com/Bluerat1/uniclaim-server/internal/pkg/apperrors"
	"github.com/Bluerat1/uniclaim-server/internal/pkg/notify"
	"github.com/Bluerat1/uniclaim-server/internal/pkg/storeops"
)

// EventSink receives notification events emitted by the services.
type EventSink interface {
	Dispatch(event notify.Event)
}

// RequestService drives the handover and claim request lifecycle.
type RequestService interface {
	ProposeHandover(ctx context.Context, userID, conversationID int64, req *dto.ProposeHandoverRequest) (*models.Message, error)
	ProposeClaim(ctx context.Context, userID, conversationID int64, req *dto.ProposeClaimRequest) (*models.Message, error)
	Reject(ctx context.Context, responderID, messageID int64) (*models.Message, error)
	AcceptWithPhoto(ctx context.Context, responderID, messageID int64, photo io.Reader) (*models.Message, error)
	Confirm(ctx context.Context, userID, messageID int64) error
}

// requestServiceImpl implements RequestService
type requestServiceImpl struct {
	conversations ConversationStore
	messages      MessageStore
	posts         PostStore
	media         MediaStore
	ops           *storeops.Runner
	events        EventSink
	policy        ConversationPolicy
	logger        zerolog.Logger
}

// NewRequestService creates a new RequestService
func NewRequestService(
	conversations ConversationStore,
	messages MessageStore,
	posts PostStore,
	media MediaStore,
	ops *storeops.Runner,
	events EventSink,
	policy ConversationPolicy,
	logger zerolog.Logger,
) RequestService {
	return &requestServiceImpl{
		conversations: conversations,
		messages:      messages,
		posts:         posts,
		media:         media,
		ops:           ops,
		events:        events,
		policy:        policy,
		logger:        logger,
	}
}

// ProposeHandover appends a pending handover request to the conversation.
func (s *requestServiceImpl) ProposeHandover(ctx context.Context, userID, conversationID int64, req *dto.ProposeHandoverRequest) (*models.Message, error) {
	if len(req.ItemPhotos) > 3 {
		return nil, apperrors.NewValidationError("A handover request allows at most 3 item photos")
	}
	payload := &models.HandoverData{
		RequestPayload: models.RequestPayload{
			Reason: req.Reason,
		},
		ItemPhotos: req.ItemPhotos,
	}
	if req.RequesterIDPhoto != "" {
		payload.RequesterIDPhoto = &req.RequesterIDPhoto
	}
	return s.propose(ctx, userID, conversationID, models.RequestKindHandover, payload, nil)
}

// ProposeClaim appends a pending claim request to the conversation. A
// claim carries the requester's ID photo plus at least one evidence photo.
func (s *requestServiceImpl) ProposeClaim(ctx context.Context, userID, conversationID int64, req *dto.ProposeClaimRequest) (*models.Message, error) {
	if req.RequesterIDPhoto == "" {
		return nil, apperrors.NewValidationError("A claim request requires the requester's ID photo")
	}
	if len(req.EvidencePhotos) == 0 {
		return nil, apperrors.NewValidationError("A claim request requires at least one evidence photo")
	}
	if len(req.EvidencePhotos) > 5 {
		return nil, apperrors.NewValidationError("A claim request allows at most 5 evidence photos")
	}
	payload := &models.ClaimData{
		RequestPayload: models.RequestPayload{
			Reason:           req.Reason,
			RequesterIDPhoto: &req.RequesterIDPhoto,
		},
		EvidencePhotos: req.EvidencePhotos,
	}
	return s.propose(ctx, userID, conversationID, models.RequestKindClaim, nil, payload)
}

func (s *requestServiceImpl) propose(
	ctx context.Context,
	userID, conversationID int64,
	kind models.RequestKind,
	handoverData *models.HandoverData,
	claimData *models.ClaimData,
) (*models.Message, error) {
	s.logger.Debug().
		Int64("userID", userID).
		Int64("conversationID", conversationID).
		Str("kind", string(kind)).
		Msg("Proposing request")

	conversation, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conversation.HasParticipant(userID) {
		return nil, apperrors.ErrNotParticipant
	}

	post, err := s.posts.GetByID(ctx, conversation.PostID)
	if err != nil {
		return nil, err
	}
	if post.Status == models.PostStatusResolved {
		return nil, apperrors.NewConflictError("This item has already been resolved")
	}

	if err := s.checkNoOpenRequest(ctx, conversation, kind); err != nil {
		return nil, err
	}

	sender := participantOf(conversation, userID)
	if sender == nil {
		return nil, apperrors.ErrNotParticipant
	}

	var payloadCommon *models.RequestPayload
	messageType := models.MessageTypeHandoverRequest
	if kind == models.RequestKindClaim {
		messageType = models.MessageTypeClaimRequest
		payloadCommon = &claimData.RequestPayload
	} else {
		payloadCommon = &handoverData.RequestPayload
	}
	payloadCommon.PostID = post.ID
	payloadCommon.PostTitle = post.Title

	status := models.RequestStatusPending
	message := &models.Message{
		ConversationID: conversationID,
		SenderID:       userID,
		SenderName:     sender.DisplayName,
		SenderPhotoURL: sender.ProfilePhotoURL,
		Text:           fmt.Sprintf("%s requested a %s for %s", sender.DisplayName, kind, post.Title),
		Type:           messageType,
		ReadBy:         []int64{userID},
		RequestStatus:  &status,
		HandoverData:   handoverData,
		ClaimData:      claimData,
	}

	evict := s.evictLimit(ctx, conversationID)
	err = s.ops.Do(ctx, "append request message", func(ctx context.Context) error {
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
			ResponseType:   string(kind),
			PostTitle:      post.Title,
			TargetUserIDs:  []int64{counterpart.UserID},
		})
	}

	s.logger.Info().
		Int64("messageID", message.ID).
		Int64("conversationID", conversationID).
		Str("kind", string(kind)).
		Msg("Request proposed")
	return message, nil
}

// checkNoOpenRequest enforces the one-open-request-per-kind rule via the
// conversation's request pointer. A pointer at a missing or terminal
// message is stale: it is cleared and does not block.
func (s *requestServiceImpl) checkNoOpenRequest(ctx context.Context, conversation *models.Conversation, kind models.RequestKind) error {
	pointer := conversation.ActiveRequestPointer(kind)
	if pointer == nil {
		return nil
	}

	pointed, err := s.messages.GetByID(ctx, *pointer)
	if err != nil {
		if errors.Is(err, apperrors.ErrMessageNotFound) {
			s.logger.Warn().
				Int64("conversationID", conversation.ID).
				Int64("messageID", *pointer).
				Msg("Request pointer at missing message, clearing")
			return s.conversations.ClearRequestPointer(ctx, conversation.ID, kind)
		}
		return err
	}

	if pointed.RequestStatus != nil && pointed.RequestStatus.Open() {
		return apperrors.NewCustomError(apperrors.ErrRequestAlreadyOpen,
			fmt.Sprintf("A %s request is already awaiting a response in this conversation", kind))
	}

	return s.conversations.ClearRequestPointer(ctx, conversation.ID, kind)
}

// Reject declines a pending request. The payload's photos are removed
// from the media store best-effort; the URL fields are always cleared.
func (s *requestServiceImpl) Reject(ctx context.Context, responderID, messageID int64) (*models.Message, error) {
	s.logger.Debug().
		Int64("responderID", responderID).
		Int64("messageID", messageID).
		Msg("Rejecting request")

	message, conversation, kind, err := s.loadForResponse(ctx, responderID, messageID)
	if err != nil {
		return nil, err
	}

	var photoURLs []string
	var updated *models.Message
	swapped := false
	err = s.ops.Do(ctx, "reject request", func(ctx context.Context) error {
		swapped, err = s.messages.CompareAndSwap(ctx, messageID,
			[]models.RequestStatus{models.RequestStatusPending},
			func(m *models.Message) error {
				now := time.Now()
				status := models.RequestStatusRejected
				m.RequestStatus = &status
				payload := m.Payload()
				payload.ResponderID = &responderID
				payload.RespondedAt = &now
				if m.HandoverData != nil {
					photoURLs = m.HandoverData.PhotoURLs()
					m.HandoverData.ClearPhotos()
				}
				if m.ClaimData != nil {
					photoURLs = m.ClaimData.PhotoURLs()
					m.ClaimData.ClearPhotos()
				}
				updated = m
				return nil
			})
		return err
	})
	if err != nil {
		return nil, err
	}
	if !swapped {
		return nil, apperrors.NewCustomError(apperrors.ErrRequestNotPending, "Request is no longer pending")
	}

	if err := s.conversations.ClearRequestPointer(ctx, conversation.ID, kind); err != nil {
		s.logger.Warn().Err(err).
			Int64("conversationID", conversation.ID).
			Msg("Failed to clear request pointer after rejection")
	}

	s.deletePhotos(ctx, photoURLs)
	s.dispatchResponse(conversation, responderID, kind, models.RequestStatusRejected, message.SenderID)

	s.logger.Info().
		Int64("messageID", messageID).
		Str("kind", string(kind)).
		Msg("Request rejected")
	return updated, nil
}

// AcceptWithPhoto accepts a pending request. The responder's ID photo is
// uploaded before any mutation: when the upload fails nothing persists.
func (s *requestServiceImpl) AcceptWithPhoto(ctx context.Context, responderID, messageID int64, photo io.Reader) (*models.Message, error) {
	s.logger.Debug().
		Int64("responderID", responderID).
		Int64("messageID", messageID).
		Msg("Accepting request")

	message, conversation, kind, err := s.loadForResponse(ctx, responderID, messageID)
	if err != nil {
		return nil, err
	}

	photoURL, err := s.media.Upload(ctx, photo, "id_photos")
	if err != nil {
		return nil, err
	}

	var updated *models.Message
	swapped := false
	err = s.ops.Do(ctx, "accept request", func(ctx context.Context) error {
		swapped, err = s.messages.CompareAndSwap(ctx, messageID,
			[]models.RequestStatus{models.RequestStatusPending},
			func(m *models.Message) error {
				now := time.Now()
				status := models.RequestStatusPendingConfirmation
				m.RequestStatus = &status
				payload := m.Payload()
				payload.OwnerIDPhoto = &photoURL
				payload.ResponderID = &responderID
				payload.RespondedAt = &now
				updated = m
				return nil
			})
		return err
	})
	if err != nil || !swapped {
		// The acceptance did not land; drop the now-orphaned upload.
		if deleted, delErr := s.media.Delete(ctx, photoURL); delErr != nil || !deleted {
			s.logger.Warn().Err(delErr).
				Str("url", photoURL).
				Msg("Failed to remove orphaned ID photo")
		}
		if err != nil {
			return nil, err
		}
		return nil, apperrors.NewCustomError(apperrors.ErrRequestNotPending, "Request is no longer pending")
	}

	s.dispatchResponse(conversation, responderID, kind, models.RequestStatusAccepted, message.SenderID)

	s.logger.Info().
		Int64("messageID", messageID).
		Str("kind", string(kind)).
		Msg("Request accepted, awaiting confirmation")
	return updated, nil
}

// Confirm finalizes an accepted request: the post is resolved with the
// conversation transcript archived onto it, then the conversation is
// deleted. When the status is already confirmed but the conversation
// still exists, an earlier attempt stopped partway through and the
// remaining steps are carried out; once the conversation is gone a
// repeat call is a no-op success.
func (s *requestServiceImpl) Confirm(ctx context.Context, userID, messageID int64) error {
	s.logger.Debug().
		Int64("userID", userID).
		Int64("messageID", messageID).
		Msg("Confirming request")

	message, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, apperrors.ErrMessageNotFound) {
			// Message gone with its conversation: already confirmed.
			return nil
		}
		return err
	}
	kind, isRequest := message.RequestKind()
	if !isRequest {
		return apperrors.NewBadRequestError("Message is not a request")
	}

	conversation, err := s.conversations.GetByID(ctx, message.ConversationID)
	if err != nil {
		if errors.Is(err, apperrors.ErrConversationNotFound) {
			return nil
		}
		return err
	}
	if !conversation.HasParticipant(userID) {
		return apperrors.ErrNotParticipant
	}
	if userID == message.SenderID {
		return apperrors.NewForbiddenError("Only the other party can confirm this request")
	}

	swapped := false
	err = s.ops.Do(ctx, "confirm request", func(ctx context.Context) error {
		swapped, err = s.messages.CompareAndSwap(ctx, messageID,
			[]models.RequestStatus{models.RequestStatusPendingConfirmation, models.RequestStatusAccepted},
			func(m *models.Message) error {
				payload := m.Payload()
				if *m.RequestStatus == models.RequestStatusAccepted && payload.OwnerIDPhoto == nil {
					return apperrors.NewCustomError(apperrors.ErrRequestNotConfirmable, "Request is not awaiting confirmation")
				}
				status := models.RequestStatusConfirmed
				m.RequestStatus = &status
				payload.PhotoConfirmed = true
				return nil
			})
		return err
	})
	if err != nil {
		return err
	}
	if !swapped {
		current, getErr := s.messages.GetByID(ctx, messageID)
		if errors.Is(getErr, apperrors.ErrMessageNotFound) {
			// A concurrent confirm finished and removed the conversation.
			return nil
		}
		if getErr != nil || current.RequestStatus == nil || *current.RequestStatus != models.RequestStatusConfirmed {
			return apperrors.NewCustomError(apperrors.ErrRequestNotConfirmable, "Request is not awaiting confirmation")
		}
		// Confirmed, yet the conversation survived: an earlier attempt
		// stopped before resolving the post or deleting the conversation.
		// Fall through and finish those steps.
	}

	transcript, err := s.archiveTranscript(ctx, conversation.ID)
	if err != nil {
		return err
	}
	err = s.ops.Do(ctx, "resolve post", func(ctx context.Context) error {
		return s.posts.MarkResolved(ctx, conversation.PostID, transcript)
	})
	if err != nil {
		return err
	}

	err = s.ops.Do(ctx, "delete confirmed conversation", func(ctx context.Context) error {
		return s.conversations.Delete(ctx, conversation.ID)
	})
	if err != nil && !errors.Is(err, apperrors.ErrConversationNotFound) {
		return err
	}

	responder := participantOf(conversation, userID)
	responderName := ""
	if responder != nil {
		responderName = responder.DisplayName
	}
	s.events.Dispatch(notify.Event{
		Type:           notify.EventConfirmation,
		ConversationID: conversation.ID,
		ResponderID:    userID,
		ResponderName:  responderName,
		ResponseType:   string(kind),
		Status:         string(models.RequestStatusConfirmed),
		PostTitle:      conversation.PostTitle,
		TargetUserIDs:  []int64{message.SenderID},
	})

	s.logger.Info().
		Int64("messageID", messageID).
		Int64("postID", conversation.PostID).
		Str("kind", string(kind)).
		Msg("Request confirmed, post resolved")
	return nil
}

// loadForResponse fetches the request message and its conversation and
// verifies the caller may respond: a participant other than the requester.
func (s *requestServiceImpl) loadForResponse(ctx context.Context, responderID, messageID int64) (*models.Message, *models.Conversation, models.RequestKind, error) {
	message, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, nil, "", err
	}
	kind, isRequest := message.RequestKind()
	if !isRequest {
		return nil, nil, "", apperrors.NewBadRequestError("Message is not a request")
	}

	conversation, err := s.conversations.GetByID(ctx, message.ConversationID)
	if err != nil {
		return nil, nil, "", err
	}
	if !conversation.HasParticipant(responderID) {
		return nil, nil, "", apperrors.ErrNotParticipant
	}
	if responderID == message.SenderID {
		return nil, nil, "", apperrors.NewForbiddenError("You cannot respond to your own request")
	}
	return message, conversation, kind, nil
}

func (s *requestServiceImpl) archiveTranscript(ctx context.Context, conversationID int64) (json.RawMessage, error) {
	history, err := s.messages.ListAllByConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	transcript, err := json.Marshal(history)
	if err != nil {
		return nil, fmt.Errorf("error marshalling transcript: %w", err)
	}
	return transcript, nil
}

// deletePhotos removes payload photos from the media store. Failures are
// logged only; the payload fields were already cleared.
func (s *requestServiceImpl) deletePhotos(ctx context.Context, urls []string) {
	for _, url := range urls {
		if _, err := s.media.Delete(ctx, url); err != nil {
			s.logger.Warn().Err(err).
				Str("url", url).
				Msg("Failed to delete payload photo")
		}
	}
}

func (s *requestServiceImpl) dispatchResponse(conversation *models.Conversation, responderID int64, kind models.RequestKind, status models.RequestStatus, targetUserID int64) {
	responder := participantOf(conversation, responderID)
	responderName := ""
	if responder != nil {
		responderName = responder.DisplayName
	}
	s.events.Dispatch(notify.Event{
		Type:           notify.EventResponse,
		ConversationID: conversation.ID,
		ResponderID:    responderID,
		ResponderName:  responderName,
		ResponseType:   string(kind),
		Status:         string(status),
		PostTitle:      conversation.PostTitle,
		TargetUserIDs:  []int64{targetUserID},
	})
}

// evictLimit returns the eviction bound to pass to AppendMessage: the
// message cap when eviction is enforced, zero when the cap is advisory.
// Crossing cap-5 logs a warning either way.
func (s *requestServiceImpl) evictLimit(ctx context.Context, conversationID int64) int {
	return evictLimit(ctx, s.conversations, s.policy, conversationID, s.logger)
}

func participantOf(conversation *models.Conversation, userID int64) *models.ConversationParticipant {
	for _, p := range conversation.Participants {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}
