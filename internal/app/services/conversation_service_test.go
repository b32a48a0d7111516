package services

import (
	"context"
	"fmt"
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

type conversationFixture struct {
	st            *fakeState
	conversations *fakeConversations
	messages      *fakeMessages
	media         *fakeMedia
	events        *fakeEvents
	policy        ConversationPolicy

	post         *models.Post
	conversation *models.Conversation
}

func newConversationFixture(t *testing.T, policy ConversationPolicy) (*conversationFixture, ConversationService) {
	t.Helper()

	st := newFakeState()
	st.users[ownerID] = &models.User{ID: ownerID, Email: "owner@example.edu", FirstName: "Olive", LastName: "Ng"}
	st.users[requesterID] = &models.User{ID: requesterID, Email: "finder@example.edu", FirstName: "Finn", LastName: "Reyes"}

	post := st.addPost(&models.Post{
		Title:     "Silver water bottle",
		CreatorID: ownerID,
		Type:      models.PostTypeLost,
		Status:    models.PostStatusPending,
	})
	conversation := st.addConversation(post, requesterID, ownerID)

	f := &conversationFixture{
		st:            st,
		conversations: &fakeConversations{st: st},
		messages:      &fakeMessages{st: st},
		media:         &fakeMedia{},
		events:        &fakeEvents{},
		policy:        policy,
		post:          post,
		conversation:  conversation,
	}
	ops := storeops.NewRunner(nil, zerolog.Nop()).WithBackoff(1, time.Millisecond)
	service := NewConversationService(
		f.conversations, f.messages, &fakePosts{st: st}, &fakeUsers{st: st},
		f.media, ops, f.events, policy, zerolog.Nop(),
	)
	return f, service
}

func (f *conversationFixture) send(t *testing.T, service ConversationService, senderID int64, text string) *models.Message {
	t.Helper()
	message, err := service.SendMessage(context.Background(), senderID, f.conversation.ID, &dto.SendMessageRequest{Text: text})
	require.NoError(t, err)
	return message
}

func TestStartConversation(t *testing.T) {
	f, service := newConversationFixture(t, ConversationPolicy{MessageCap: 50})

	// Starting twice returns the same conversation.
	first, err := service.StartConversation(context.Background(), requesterID, f.post.ID)
	require.NoError(t, err)
	second, err := service.StartConversation(context.Background(), requesterID, f.post.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestStartConversationOwnPost(t *testing.T) {
	f, service := newConversationFixture(t, ConversationPolicy{MessageCap: 50})

	_, err := service.StartConversation(context.Background(), ownerID, f.post.ID)
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)
}

func TestStartConversationResolvedPost(t *testing.T) {
	f, service := newConversationFixture(t, ConversationPolicy{MessageCap: 50})
	f.post.Status = models.PostStatusResolved

	_, err := service.StartConversation(context.Background(), requesterID, f.post.ID)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestSendMessageUpdatesUnreadAndSummary(t *testing.T) {
	f, service := newConversationFixture(t, ConversationPolicy{MessageCap: 50})

	f.send(t, service, requesterID, "Is this yours?")
	f.send(t, service, requesterID, "I can drop it off tomorrow")

	for _, p := range f.conversation.Participants {
		if p.UserID == ownerID {
			assert.Equal(t, 2, p.UnreadCount)
		} else {
			assert.Zero(t, p.UnreadCount)
		}
	}
	require.NotNil(t, f.conversation.LastMessageText)
	assert.Equal(t, "I can drop it off tomorrow", *f.conversation.LastMessageText)
	require.NotNil(t, f.conversation.LastMessageSender)
	assert.Equal(t, requesterID, *f.conversation.LastMessageSender)

	events := f.events.byType(notify.EventNewMessage)
	require.Len(t, events, 2)
	assert.Equal(t, []int64{ownerID}, events[0].TargetUserIDs)
}

func TestSendMessageRequiresParticipant(t *testing.T) {
	f, service := newConversationFixture(t, ConversationPolicy{MessageCap: 50})

	_, err := service.SendMessage(context.Background(), strangerID, f.conversation.ID, &dto.SendMessageRequest{Text: "hi"})
	assert.ErrorIs(t, err, apperrors.ErrNotParticipant)
}

func TestMessageCapAdvisory(t *testing.T) {
	f, service := newConversationFixture(t, ConversationPolicy{MessageCap: 10, EnforceCap: false})

	for i := 0; i < 15; i++ {
		f.send(t, service, requesterID, fmt.Sprintf("message %d", i))
	}

	// Advisory mode never evicts; the history grows past the cap.
	count, err := f.conversations.CountMessages(context.Background(), f.conversation.ID)
	require.NoError(t, err)
	assert.Equal(t, 15, count)
}

func TestMessageCapEnforced(t *testing.T) {
	f, service := newConversationFixture(t, ConversationPolicy{MessageCap: 10, EnforceCap: true})

	for i := 0; i < 15; i++ {
		f.send(t, service, requesterID, fmt.Sprintf("message %d", i))
	}

	count, err := f.conversations.CountMessages(context.Background(), f.conversation.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, count)

	// The oldest messages went first.
	history, err := f.messages.ListAllByConversation(context.Background(), f.conversation.ID)
	require.NoError(t, err)
	assert.Equal(t, "message 5", history[0].Text)
	assert.Equal(t, "message 14", history[len(history)-1].Text)
}

func TestMarkRead(t *testing.T) {
	f, service := newConversationFixture(t, ConversationPolicy{MessageCap: 50})
	message := f.send(t, service, requesterID, "ping")

	require.NoError(t, service.MarkRead(context.Background(), ownerID, f.conversation.ID))

	counterpart := f.conversation.Counterpart(requesterID)
	assert.Zero(t, counterpart.UnreadCount)
	assert.Contains(t, f.st.messages[message.ID].ReadBy, ownerID)
}

func TestListMessagesPagination(t *testing.T) {
	f, service := newConversationFixture(t, ConversationPolicy{MessageCap: 50})
	for i := 0; i < 6; i++ {
		f.send(t, service, requesterID, fmt.Sprintf("message %d", i))
	}

	page, err := service.ListMessages(context.Background(), ownerID, f.conversation.ID, &dto.ListMessagesRequest{Limit: 3})
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, "message 5", page[0].Text)

	older, err := service.ListMessages(context.Background(), ownerID, f.conversation.ID, &dto.ListMessagesRequest{
		Before: page[len(page)-1].ID,
		Limit:  3,
	})
	require.NoError(t, err)
	require.Len(t, older, 3)
	assert.Equal(t, "message 2", older[0].Text)
}

func TestDeleteMessageClearsPointerAndPhotos(t *testing.T) {
	f, service := newConversationFixture(t, ConversationPolicy{MessageCap: 50})

	idPhoto := "https://example.com/id.jpg"
	status := models.RequestStatusPending
	message := &models.Message{
		ConversationID: f.conversation.ID,
		SenderID:       requesterID,
		SenderName:     "Finn Reyes",
		Text:           "handover request",
		Type:           models.MessageTypeHandoverRequest,
		RequestStatus:  &status,
		HandoverData: &models.HandoverData{
			RequestPayload: models.RequestPayload{RequesterIDPhoto: &idPhoto},
			ItemPhotos:     []string{"https://example.com/item.jpg"},
		},
	}
	_, err := f.conversations.AppendMessage(context.Background(), message, 0)
	require.NoError(t, err)

	require.NoError(t, service.DeleteMessage(context.Background(), requesterID, message.ID))

	assert.NotContains(t, f.st.messages, message.ID)
	assert.Contains(t, f.conversations.clearedPointers, models.RequestKindHandover)
	assert.ElementsMatch(t, []string{idPhoto, "https://example.com/item.jpg"}, f.media.deletes)
}

func TestDeleteMessageNotOwn(t *testing.T) {
	f, service := newConversationFixture(t, ConversationPolicy{MessageCap: 50})
	message := f.send(t, service, requesterID, "mine")

	err := service.DeleteMessage(context.Background(), ownerID, message.ID)
	assert.ErrorIs(t, err, apperrors.ErrPermissionDenied)
}

func TestDeleteConversation(t *testing.T) {
	f, service := newConversationFixture(t, ConversationPolicy{MessageCap: 50})
	f.send(t, service, requesterID, "soon gone")

	require.NoError(t, service.DeleteConversation(context.Background(), ownerID, f.conversation.ID))
	assert.NotContains(t, f.st.conversations, f.conversation.ID)
	assert.Empty(t, f.st.conversationMessages(f.conversation.ID))

	err := service.DeleteConversation(context.Background(), ownerID, f.conversation.ID)
	assert.ErrorIs(t, err, apperrors.ErrConversationNotFound)
}
