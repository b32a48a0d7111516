package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bluerat1/uniclaim-server/internal/app/models"
	"github.com/Bluerat1/uniclaim-server/internal/app/models/dto"
	"github.com/Bluerat1/uniclaim-server/internal/pkg/apperrors"
	"github.com/Bluerat1/uniclaim-server/internal/pkg/notify"
	"github.com/Bluerat1/uniclaim-server/internal/pkg/storeops"
)

const (
	ownerID     int64 = 1
	requesterID int64 = 2
	strangerID  int64 = 9
)

type requestFixture struct {
	st            *fakeState
	conversations *fakeConversations
	messages      *fakeMessages
	posts         *fakePosts
	media         *fakeMedia
	events        *fakeEvents
	service       RequestService

	post         *models.Post
	conversation *models.Conversation
}

func newRequestFixture(t *testing.T) *requestFixture {
	t.Helper()

	st := newFakeState()
	post := st.addPost(&models.Post{
		Title:     "Black umbrella",
		CreatorID: ownerID,
		Type:      models.PostTypeFound,
		Status:    models.PostStatusPending,
	})
	conversation := st.addConversation(post, requesterID, ownerID)

	f := &requestFixture{
		st:            st,
		conversations: &fakeConversations{st: st},
		messages:      &fakeMessages{st: st},
		posts:         &fakePosts{st: st},
		media:         &fakeMedia{},
		events:        &fakeEvents{},
		post:          post,
		conversation:  conversation,
	}
	ops := storeops.NewRunner(nil, zerolog.Nop()).WithBackoff(1, time.Millisecond)
	f.service = NewRequestService(
		f.conversations, f.messages, f.posts, f.media, ops, f.events,
		ConversationPolicy{MessageCap: 50}, zerolog.Nop(),
	)
	return f
}

func (f *requestFixture) proposeHandover(t *testing.T) *models.Message {
	t.Helper()
	message, err := f.service.ProposeHandover(context.Background(), requesterID, f.conversation.ID, &dto.ProposeHandoverRequest{
		Reason:           "I found this after the seminar",
		RequesterIDPhoto: "https://res.cloudinary.com/demo/image/upload/v1/id_photos/requester.jpg",
		ItemPhotos:       []string{"https://res.cloudinary.com/demo/image/upload/v1/items/umbrella.jpg"},
	})
	require.NoError(t, err)
	return message
}

func (f *requestFixture) setStatus(messageID int64, status models.RequestStatus) {
	f.st.messages[messageID].RequestStatus = &status
}

func TestProposeHandover(t *testing.T) {
	f := newRequestFixture(t)

	message := f.proposeHandover(t)

	require.NotNil(t, message.RequestStatus)
	assert.Equal(t, models.RequestStatusPending, *message.RequestStatus)
	assert.Equal(t, models.MessageTypeHandoverRequest, message.Type)
	require.NotNil(t, message.HandoverData)
	assert.Equal(t, f.post.ID, message.HandoverData.PostID)
	assert.Contains(t, message.ReadBy, requesterID)

	require.NotNil(t, f.conversation.ActiveHandoverMessageID)
	assert.Equal(t, message.ID, *f.conversation.ActiveHandoverMessageID)
	assert.True(t, f.conversation.HasHandoverRequest)

	// The owner gains one unread message; the sender does not.
	for _, p := range f.conversation.Participants {
		if p.UserID == ownerID {
			assert.Equal(t, 1, p.UnreadCount)
		} else {
			assert.Zero(t, p.UnreadCount)
		}
	}

	events := f.events.byType(notify.EventNewMessage)
	require.Len(t, events, 1)
	assert.Equal(t, []int64{ownerID}, events[0].TargetUserIDs)
}

func TestProposeHandoverBlockedWhileOpen(t *testing.T) {
	f := newRequestFixture(t)
	f.proposeHandover(t)

	_, err := f.service.ProposeHandover(context.Background(), requesterID, f.conversation.ID, &dto.ProposeHandoverRequest{
		Reason:           "Asking again",
		RequesterIDPhoto: "https://example.com/id.jpg",
	})
	assert.ErrorIs(t, err, apperrors.ErrRequestAlreadyOpen)
}

func TestProposeHandoverAfterTerminalPointer(t *testing.T) {
	f := newRequestFixture(t)
	first := f.proposeHandover(t)
	f.setStatus(first.ID, models.RequestStatusRejected)

	// A pointer at a terminal request is stale and must not block.
	second, err := f.service.ProposeHandover(context.Background(), requesterID, f.conversation.ID, &dto.ProposeHandoverRequest{
		Reason:           "Second attempt",
		RequesterIDPhoto: "https://example.com/id.jpg",
	})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Contains(t, f.conversations.clearedPointers, models.RequestKindHandover)
}

func TestProposeHandoverClearsDanglingPointer(t *testing.T) {
	f := newRequestFixture(t)
	missing := int64(424242)
	f.conversation.ActiveHandoverMessageID = &missing

	_, err := f.service.ProposeHandover(context.Background(), requesterID, f.conversation.ID, &dto.ProposeHandoverRequest{
		Reason:           "Pointer at a deleted message",
		RequesterIDPhoto: "https://example.com/id.jpg",
	})
	require.NoError(t, err)
	assert.Contains(t, f.conversations.clearedPointers, models.RequestKindHandover)
}

func TestProposeHandoverWithoutIDPhoto(t *testing.T) {
	f := newRequestFixture(t)

	// A handover may be proposed before any ID photo is uploaded.
	message, err := f.service.ProposeHandover(context.Background(), requesterID, f.conversation.ID, &dto.ProposeHandoverRequest{
		Reason: "I found this after the seminar",
	})
	require.NoError(t, err)
	require.NotNil(t, message.HandoverData)
	assert.Nil(t, message.HandoverData.RequesterIDPhoto)
	assert.Equal(t, models.RequestStatusPending, *message.RequestStatus)
}

func TestProposeClaimValidation(t *testing.T) {
	f := newRequestFixture(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  *dto.ProposeClaimRequest
	}{
		{"missing id photo", &dto.ProposeClaimRequest{
			Reason:         "It is mine",
			EvidencePhotos: []string{"https://example.com/a.jpg"},
		}},
		{"no evidence", &dto.ProposeClaimRequest{
			Reason:           "It is mine",
			RequesterIDPhoto: "https://example.com/id.jpg",
		}},
		{"too much evidence", &dto.ProposeClaimRequest{
			Reason:           "It is mine",
			RequesterIDPhoto: "https://example.com/id.jpg",
			EvidencePhotos: []string{
				"https://example.com/1.jpg", "https://example.com/2.jpg",
				"https://example.com/3.jpg", "https://example.com/4.jpg",
				"https://example.com/5.jpg", "https://example.com/6.jpg",
			},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.service.ProposeClaim(ctx, requesterID, f.conversation.ID, tc.req)
			assert.ErrorIs(t, err, apperrors.ErrValidationFailed)
		})
	}
}

func TestProposeClaimSetsClaimPointer(t *testing.T) {
	f := newRequestFixture(t)

	message, err := f.service.ProposeClaim(context.Background(), requesterID, f.conversation.ID, &dto.ProposeClaimRequest{
		Reason:           "The sticker on the handle is mine",
		RequesterIDPhoto: "https://example.com/id.jpg",
		EvidencePhotos:   []string{"https://example.com/receipt.jpg"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.MessageTypeClaimRequest, message.Type)
	require.NotNil(t, f.conversation.ActiveClaimMessageID)
	assert.Equal(t, message.ID, *f.conversation.ActiveClaimMessageID)
	assert.Nil(t, f.conversation.ActiveHandoverMessageID)
}

func TestProposeRejectedOnResolvedPost(t *testing.T) {
	f := newRequestFixture(t)
	f.post.Status = models.PostStatusResolved

	_, err := f.service.ProposeHandover(context.Background(), requesterID, f.conversation.ID, &dto.ProposeHandoverRequest{
		Reason:           "Too late",
		RequesterIDPhoto: "https://example.com/id.jpg",
	})
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestProposeRequiresParticipant(t *testing.T) {
	f := newRequestFixture(t)

	_, err := f.service.ProposeHandover(context.Background(), strangerID, f.conversation.ID, &dto.ProposeHandoverRequest{
		Reason:           "Not my conversation",
		RequesterIDPhoto: "https://example.com/id.jpg",
	})
	assert.ErrorIs(t, err, apperrors.ErrNotParticipant)
}

func TestReject(t *testing.T) {
	f := newRequestFixture(t)
	message := f.proposeHandover(t)
	photoURLs := message.HandoverData.PhotoURLs()
	require.NotEmpty(t, photoURLs)

	updated, err := f.service.Reject(context.Background(), ownerID, message.ID)
	require.NoError(t, err)

	assert.Equal(t, models.RequestStatusRejected, *updated.RequestStatus)
	assert.Nil(t, updated.HandoverData.RequesterIDPhoto)
	assert.Nil(t, updated.HandoverData.OwnerIDPhoto)
	assert.Empty(t, updated.HandoverData.ItemPhotos)
	assert.True(t, updated.HandoverData.PhotosDeleted)
	require.NotNil(t, updated.HandoverData.ResponderID)
	assert.Equal(t, ownerID, *updated.HandoverData.ResponderID)

	assert.ElementsMatch(t, photoURLs, f.media.deletes)
	assert.Nil(t, f.conversation.ActiveHandoverMessageID)

	events := f.events.byType(notify.EventResponse)
	require.Len(t, events, 1)
	assert.Equal(t, string(models.RequestStatusRejected), events[0].Status)
	assert.Equal(t, []int64{requesterID}, events[0].TargetUserIDs)
}

func TestRejectClearsPhotosWhenMediaDeleteFails(t *testing.T) {
	f := newRequestFixture(t)
	message := f.proposeHandover(t)
	f.media.failDelete = true

	updated, err := f.service.Reject(context.Background(), ownerID, message.ID)
	require.NoError(t, err)

	// Media store failure is tolerated; the URL fields clear regardless.
	assert.Nil(t, updated.HandoverData.RequesterIDPhoto)
	assert.True(t, updated.HandoverData.PhotosDeleted)
	assert.Equal(t, models.RequestStatusRejected, *updated.RequestStatus)
}

func TestRejectNotPending(t *testing.T) {
	f := newRequestFixture(t)
	message := f.proposeHandover(t)
	f.setStatus(message.ID, models.RequestStatusRejected)

	_, err := f.service.Reject(context.Background(), ownerID, message.ID)
	assert.ErrorIs(t, err, apperrors.ErrRequestNotPending)
}

func TestRejectOwnRequestForbidden(t *testing.T) {
	f := newRequestFixture(t)
	message := f.proposeHandover(t)

	_, err := f.service.Reject(context.Background(), requesterID, message.ID)
	assert.ErrorIs(t, err, apperrors.ErrPermissionDenied)
}

func TestAcceptWithPhoto(t *testing.T) {
	f := newRequestFixture(t)
	message := f.proposeHandover(t)

	updated, err := f.service.AcceptWithPhoto(context.Background(), ownerID, message.ID, strings.NewReader("jpeg"))
	require.NoError(t, err)

	assert.Equal(t, models.RequestStatusPendingConfirmation, *updated.RequestStatus)
	require.NotNil(t, updated.HandoverData.OwnerIDPhoto)
	assert.Equal(t, f.media.uploads[0], *updated.HandoverData.OwnerIDPhoto)
	// The photo awaits the counterpart's review; only confirm marks it.
	assert.False(t, updated.HandoverData.PhotoConfirmed)
	require.NotNil(t, updated.HandoverData.ResponderID)
	assert.Equal(t, ownerID, *updated.HandoverData.ResponderID)

	events := f.events.byType(notify.EventResponse)
	require.Len(t, events, 1)
	assert.Equal(t, string(models.RequestStatusAccepted), events[0].Status)
	assert.Equal(t, []int64{requesterID}, events[0].TargetUserIDs)
}

func TestAcceptWithPhotoUploadFailure(t *testing.T) {
	f := newRequestFixture(t)
	message := f.proposeHandover(t)
	f.media.failUpload = true

	_, err := f.service.AcceptWithPhoto(context.Background(), ownerID, message.ID, strings.NewReader("jpeg"))
	assert.ErrorIs(t, err, apperrors.ErrMediaUploadFailed)

	// Nothing may persist when the upload fails.
	current := f.st.messages[message.ID]
	assert.Equal(t, models.RequestStatusPending, *current.RequestStatus)
	assert.Nil(t, current.HandoverData.OwnerIDPhoto)
	assert.Empty(t, f.media.uploads)
}

func TestAcceptWithPhotoNotPendingRemovesOrphan(t *testing.T) {
	f := newRequestFixture(t)
	message := f.proposeHandover(t)
	f.setStatus(message.ID, models.RequestStatusRejected)

	_, err := f.service.AcceptWithPhoto(context.Background(), ownerID, message.ID, strings.NewReader("jpeg"))
	assert.ErrorIs(t, err, apperrors.ErrRequestNotPending)

	// The upload happened before the state check, so it must be cleaned up.
	require.Len(t, f.media.uploads, 1)
	assert.Equal(t, f.media.uploads, f.media.deletes)
}

func TestConfirm(t *testing.T) {
	f := newRequestFixture(t)
	message := f.proposeHandover(t)
	_, err := f.service.AcceptWithPhoto(context.Background(), ownerID, message.ID, strings.NewReader("jpeg"))
	require.NoError(t, err)

	err = f.service.Confirm(context.Background(), ownerID, message.ID)
	require.NoError(t, err)

	assert.True(t, message.HandoverData.PhotoConfirmed)
	assert.Equal(t, models.PostStatusResolved, f.post.Status)
	require.Contains(t, f.posts.resolved, f.post.ID)
	assert.Contains(t, string(f.posts.resolved[f.post.ID]), "handover_request")

	// The conversation and its history are gone.
	assert.NotContains(t, f.st.conversations, f.conversation.ID)
	assert.Empty(t, f.st.conversationMessages(f.conversation.ID))

	events := f.events.byType(notify.EventConfirmation)
	require.Len(t, events, 1)
	assert.Equal(t, []int64{requesterID}, events[0].TargetUserIDs)
}

func TestConfirmIdempotent(t *testing.T) {
	f := newRequestFixture(t)
	message := f.proposeHandover(t)
	_, err := f.service.AcceptWithPhoto(context.Background(), ownerID, message.ID, strings.NewReader("jpeg"))
	require.NoError(t, err)
	require.NoError(t, f.service.Confirm(context.Background(), ownerID, message.ID))

	// The first confirm deleted the conversation and its messages; a
	// repeat confirm observes nothing left and succeeds quietly.
	assert.NoError(t, f.service.Confirm(context.Background(), ownerID, message.ID))
}

func TestConfirmRetryFinishesAfterResolveFailure(t *testing.T) {
	f := newRequestFixture(t)
	message := f.proposeHandover(t)
	_, err := f.service.AcceptWithPhoto(context.Background(), ownerID, message.ID, strings.NewReader("jpeg"))
	require.NoError(t, err)

	f.posts.resolveErr = errors.New("write timeout")
	err = f.service.Confirm(context.Background(), ownerID, message.ID)
	require.Error(t, err)

	// The status flipped but the post and conversation were left behind.
	assert.Equal(t, models.RequestStatusConfirmed, *message.RequestStatus)
	assert.NotEqual(t, models.PostStatusResolved, f.post.Status)
	assert.Contains(t, f.st.conversations, f.conversation.ID)

	// A retry must finish what the failed attempt started, not report
	// success while the post stays unresolved.
	f.posts.resolveErr = nil
	require.NoError(t, f.service.Confirm(context.Background(), ownerID, message.ID))

	assert.Equal(t, models.PostStatusResolved, f.post.Status)
	require.Contains(t, f.posts.resolved, f.post.ID)
	assert.NotContains(t, f.st.conversations, f.conversation.ID)

	events := f.events.byType(notify.EventConfirmation)
	require.Len(t, events, 1)
	assert.Equal(t, []int64{requesterID}, events[0].TargetUserIDs)
}

func TestConfirmBySenderForbidden(t *testing.T) {
	f := newRequestFixture(t)
	message := f.proposeHandover(t)
	f.setStatus(message.ID, models.RequestStatusPendingConfirmation)

	err := f.service.Confirm(context.Background(), requesterID, message.ID)
	assert.ErrorIs(t, err, apperrors.ErrPermissionDenied)
}

func TestConfirmWhileStillPending(t *testing.T) {
	f := newRequestFixture(t)
	message := f.proposeHandover(t)

	err := f.service.Confirm(context.Background(), ownerID, message.ID)
	assert.ErrorIs(t, err, apperrors.ErrRequestNotConfirmable)
}

func TestConfirmAcceptedWithoutOwnerPhoto(t *testing.T) {
	f := newRequestFixture(t)
	message := f.proposeHandover(t)
	f.setStatus(message.ID, models.RequestStatusAccepted)

	err := f.service.Confirm(context.Background(), ownerID, message.ID)
	assert.ErrorIs(t, err, apperrors.ErrRequestNotConfirmable)
}

func TestConfirmAcceptedWithOwnerPhoto(t *testing.T) {
	f := newRequestFixture(t)
	message := f.proposeHandover(t)
	f.setStatus(message.ID, models.RequestStatusAccepted)
	photo := "https://example.com/owner-id.jpg"
	f.st.messages[message.ID].HandoverData.OwnerIDPhoto = &photo

	err := f.service.Confirm(context.Background(), ownerID, message.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusResolved, f.post.Status)
}
