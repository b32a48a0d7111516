package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/Bluerat1/uniclaim-server/internal/app/models"
	"github.com/Bluerat1/uniclaim-server/internal/app/models/dto"
	"github.com/Bluerat1/uniclaim-server/internal/pkg/apperrors"
	"github.com/Bluerat1/uniclaim-server/internal/pkg/notify"
)

// fakeState is the shared in-memory backing store for the store fakes.
// It mirrors the bookkeeping the pgx repositories do inside their
// transactions: last-message summaries, request pointers, unread
// counters, and cap eviction.
type fakeState struct {
	conversations map[int64]*models.Conversation
	messages      map[int64]*models.Message
	posts         map[int64]*models.Post
	users         map[int64]*models.User
	nextID        int64
}

func newFakeState() *fakeState {
	return &fakeState{
		conversations: make(map[int64]*models.Conversation),
		messages:      make(map[int64]*models.Message),
		posts:         make(map[int64]*models.Post),
		users:         make(map[int64]*models.User),
		nextID:        1000,
	}
}

func (st *fakeState) id() int64 {
	st.nextID++
	return st.nextID
}

func (st *fakeState) addPost(post *models.Post) *models.Post {
	if post.ID == 0 {
		post.ID = st.id()
	}
	st.posts[post.ID] = post
	return post
}

func (st *fakeState) addConversation(post *models.Post, userA, userB int64) *models.Conversation {
	conversation := &models.Conversation{
		ID:            st.id(),
		PostID:        post.ID,
		PostTitle:     post.Title,
		PostCreatorID: post.CreatorID,
		CreatedAt:     time.Now(),
		Participants: []*models.ConversationParticipant{
			{ConversationID: 0, UserID: userA, DisplayName: fmt.Sprintf("User %d", userA)},
			{ConversationID: 0, UserID: userB, DisplayName: fmt.Sprintf("User %d", userB)},
		},
	}
	for _, p := range conversation.Participants {
		p.ConversationID = conversation.ID
	}
	st.conversations[conversation.ID] = conversation
	return conversation
}

func (st *fakeState) conversationMessages(conversationID int64) []*models.Message {
	var out []*models.Message
	for _, m := range st.messages {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// --- ConversationStore fake ---

type fakeConversations struct {
	st *fakeState

	clearedPointers []models.RequestKind
	appendErr       error
	deleted         []int64
}

func (f *fakeConversations) GetOrCreate(_ context.Context, post *models.Post, initiator, owner *models.User) (*models.Conversation, error) {
	for _, c := range f.st.conversations {
		if c.PostID == post.ID && c.HasParticipant(initiator.ID) {
			return c, nil
		}
	}
	return f.st.addConversation(post, initiator.ID, owner.ID), nil
}

func (f *fakeConversations) GetByID(_ context.Context, id int64) (*models.Conversation, error) {
	c, ok := f.st.conversations[id]
	if !ok {
		return nil, apperrors.ErrConversationNotFound
	}
	return c, nil
}

func (f *fakeConversations) ListForUser(_ context.Context, userID int64) ([]*models.Conversation, error) {
	var out []*models.Conversation
	for _, c := range f.st.conversations {
		if c.HasParticipant(userID) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeConversations) AppendMessage(_ context.Context, message *models.Message, evictBeyond int) (int64, error) {
	if f.appendErr != nil {
		return 0, f.appendErr
	}
	conversation, ok := f.st.conversations[message.ConversationID]
	if !ok {
		return 0, apperrors.ErrConversationNotFound
	}

	message.ID = f.st.id()
	message.CreatedAt = time.Now()
	f.st.messages[message.ID] = message

	text := message.Text
	conversation.LastMessageText = &text
	conversation.LastMessageSender = &message.SenderID
	at := message.CreatedAt
	conversation.LastMessageAt = &at

	if kind, isRequest := message.RequestKind(); isRequest {
		id := message.ID
		if kind == models.RequestKindHandover {
			conversation.HasHandoverRequest = true
			conversation.ActiveHandoverMessageID = &id
		} else {
			conversation.HasClaimRequest = true
			conversation.ActiveClaimMessageID = &id
		}
	}

	for _, p := range conversation.Participants {
		if p.UserID != message.SenderID {
			p.UnreadCount++
		}
	}

	if evictBeyond > 0 {
		history := f.st.conversationMessages(message.ConversationID)
		for len(history) > evictBeyond {
			delete(f.st.messages, history[0].ID)
			history = history[1:]
		}
	}
	return message.ID, nil
}

func (f *fakeConversations) ResetUnread(_ context.Context, conversationID, userID int64) error {
	conversation, ok := f.st.conversations[conversationID]
	if !ok {
		return apperrors.ErrConversationNotFound
	}
	for _, p := range conversation.Participants {
		if p.UserID == userID {
			p.UnreadCount = 0
		}
	}
	for _, m := range f.st.conversationMessages(conversationID) {
		seen := false
		for _, reader := range m.ReadBy {
			if reader == userID {
				seen = true
				break
			}
		}
		if !seen {
			m.ReadBy = append(m.ReadBy, userID)
		}
	}
	return nil
}

func (f *fakeConversations) ClearRequestPointer(_ context.Context, conversationID int64, kind models.RequestKind) error {
	conversation, ok := f.st.conversations[conversationID]
	if !ok {
		return apperrors.ErrConversationNotFound
	}
	if kind == models.RequestKindHandover {
		conversation.ActiveHandoverMessageID = nil
	} else {
		conversation.ActiveClaimMessageID = nil
	}
	f.clearedPointers = append(f.clearedPointers, kind)
	return nil
}

func (f *fakeConversations) CountMessages(_ context.Context, conversationID int64) (int, error) {
	return len(f.st.conversationMessages(conversationID)), nil
}

func (f *fakeConversations) Delete(_ context.Context, id int64) error {
	for _, m := range f.st.conversationMessages(id) {
		delete(f.st.messages, m.ID)
	}
	delete(f.st.conversations, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeConversations) DeleteForUser(_ context.Context, userID int64) error {
	for id, c := range f.st.conversations {
		if c.HasParticipant(userID) {
			if err := f.Delete(context.Background(), id); err != nil {
				return err
			}
		}
	}
	return nil
}

// --- MessageStore fake ---

type fakeMessages struct {
	st *fakeState

	casErr error
}

func (f *fakeMessages) GetByID(_ context.Context, id int64) (*models.Message, error) {
	m, ok := f.st.messages[id]
	if !ok {
		return nil, apperrors.ErrMessageNotFound
	}
	return m, nil
}

func (f *fakeMessages) ListByConversation(_ context.Context, conversationID, beforeID int64, limit int) ([]*models.Message, error) {
	history := f.st.conversationMessages(conversationID)
	var out []*models.Message
	for i := len(history) - 1; i >= 0 && len(out) < limit; i-- {
		if beforeID > 0 && history[i].ID >= beforeID {
			continue
		}
		out = append(out, history[i])
	}
	return out, nil
}

func (f *fakeMessages) ListAllByConversation(_ context.Context, conversationID int64) ([]*models.Message, error) {
	return f.st.conversationMessages(conversationID), nil
}

func (f *fakeMessages) CompareAndSwap(_ context.Context, messageID int64, from []models.RequestStatus, mutate func(*models.Message) error) (bool, error) {
	if f.casErr != nil {
		return false, f.casErr
	}
	m, ok := f.st.messages[messageID]
	if !ok {
		return false, apperrors.ErrMessageNotFound
	}
	matched := false
	for _, status := range from {
		if m.RequestStatus != nil && *m.RequestStatus == status {
			matched = true
			break
		}
	}
	if !matched {
		return false, nil
	}
	if err := mutate(m); err != nil {
		return false, err
	}
	return true, nil
}

func (f *fakeMessages) DeleteOwn(_ context.Context, messageID, senderID int64) error {
	m, ok := f.st.messages[messageID]
	if !ok || m.SenderID != senderID {
		return apperrors.ErrMessageNotFound
	}
	delete(f.st.messages, messageID)
	return nil
}

// --- PostStore fake ---

type fakePosts struct {
	st *fakeState

	resolved   map[int64]json.RawMessage
	resolveErr error
}

func (f *fakePosts) Create(_ context.Context, post *models.Post) (int64, error) {
	f.st.addPost(post)
	return post.ID, nil
}

func (f *fakePosts) GetByID(_ context.Context, id int64) (*models.Post, error) {
	p, ok := f.st.posts[id]
	if !ok {
		return nil, apperrors.ErrPostNotFound
	}
	return p, nil
}

func (f *fakePosts) List(_ context.Context, _ *dto.PostFilter, _ uint64, _ int) ([]*models.Post, int64, error) {
	var out []*models.Post
	for _, p := range f.st.posts {
		out = append(out, p)
	}
	return out, int64(len(out)), nil
}

func (f *fakePosts) UpdateStatus(_ context.Context, id int64, status models.PostStatus) error {
	p, ok := f.st.posts[id]
	if !ok {
		return apperrors.ErrPostNotFound
	}
	p.Status = status
	return nil
}

func (f *fakePosts) MarkResolved(_ context.Context, id int64, transcript json.RawMessage) error {
	if f.resolveErr != nil {
		return f.resolveErr
	}
	p, ok := f.st.posts[id]
	if !ok {
		return apperrors.ErrPostNotFound
	}
	p.Status = models.PostStatusResolved
	p.Transcript = transcript
	if f.resolved == nil {
		f.resolved = make(map[int64]json.RawMessage)
	}
	f.resolved[id] = transcript
	return nil
}

func (f *fakePosts) Moderate(_ context.Context, id int64, hidden, flagged *bool) error {
	p, ok := f.st.posts[id]
	if !ok {
		return apperrors.ErrPostNotFound
	}
	if hidden != nil {
		p.Hidden = *hidden
	}
	if flagged != nil {
		p.Flagged = *flagged
	}
	return nil
}

func (f *fakePosts) Delete(_ context.Context, id int64) error {
	delete(f.st.posts, id)
	return nil
}

// --- UserStore fake (the subset the conversation tests need) ---

type fakeUsers struct {
	st *fakeState

	refreshTokens map[string]*models.RefreshToken
}

func (f *fakeUsers) Create(_ context.Context, user *models.User) (int64, error) {
	if user.ID == 0 {
		user.ID = f.st.id()
	}
	f.st.users[user.ID] = user
	return user.ID, nil
}

func (f *fakeUsers) FindByID(_ context.Context, id int64) (*models.User, error) {
	u, ok := f.st.users[id]
	if !ok {
		return nil, apperrors.ErrUserNotFound
	}
	return u, nil
}

func (f *fakeUsers) FindByEmail(_ context.Context, email string) (*models.User, error) {
	for _, u := range f.st.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, apperrors.ErrUserNotFound
}

func (f *fakeUsers) AddPushToken(_ context.Context, userID int64, token string) error {
	u, ok := f.st.users[userID]
	if !ok {
		return apperrors.ErrUserNotFound
	}
	u.PushTokens = append(u.PushTokens, token)
	return nil
}

func (f *fakeUsers) Delete(_ context.Context, id int64) error {
	delete(f.st.users, id)
	return nil
}

func (f *fakeUsers) SaveRefreshToken(_ context.Context, userID int64, token string, expiresAt time.Time) error {
	if f.refreshTokens == nil {
		f.refreshTokens = make(map[string]*models.RefreshToken)
	}
	f.refreshTokens[token] = &models.RefreshToken{
		ID:        f.st.id(),
		UserID:    userID,
		Token:     token,
		ExpiresAt: expiresAt,
	}
	return nil
}

func (f *fakeUsers) FindRefreshToken(_ context.Context, token string) (*models.RefreshToken, error) {
	stored, ok := f.refreshTokens[token]
	if !ok {
		return nil, apperrors.ErrTokenNotFound
	}
	return stored, nil
}

func (f *fakeUsers) RevokeRefreshToken(_ context.Context, token string) error {
	if stored, ok := f.refreshTokens[token]; ok {
		stored.Revoked = true
	}
	return nil
}

// --- MediaStore fake ---

type fakeMedia struct {
	uploads    []string
	deletes    []string
	failUpload bool
	failDelete bool
}

func (f *fakeMedia) Upload(_ context.Context, _ io.Reader, subfolder string) (string, error) {
	if f.failUpload {
		return "", apperrors.NewCustomError(apperrors.ErrMediaUploadFailed, "upload refused")
	}
	url := fmt.Sprintf("https://res.cloudinary.com/demo/image/upload/v1/%s/photo-%d.jpg", subfolder, len(f.uploads)+1)
	f.uploads = append(f.uploads, url)
	return url, nil
}

func (f *fakeMedia) Delete(_ context.Context, imageURL string) (bool, error) {
	if f.failDelete {
		return false, errors.New("media store unreachable")
	}
	f.deletes = append(f.deletes, imageURL)
	return true, nil
}

// --- EventSink fake ---

type fakeEvents struct {
	events []notify.Event
}

func (f *fakeEvents) Dispatch(event notify.Event) {
	f.events = append(f.events, event)
}

func (f *fakeEvents) byType(t notify.EventType) []notify.Event {
	var out []notify.Event
	for _, e := range f.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
