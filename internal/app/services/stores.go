package services

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/Bluerat1/uniclaim-server/internal/app/models"
	"github.com/Bluerat1/uniclaim-server/internal/app/models/dto"
	"github.com/Bluerat1/uniclaim-server/internal/app/repositories"
)

// The services consume their repositories through these narrow
// contracts. The pgx repositories satisfy them; tests substitute
// in-memory fakes.

// UserStore is the persistence contract for user accounts.
type UserStore interface {
	Create(ctx context.Context, user *models.User) (int64, error)
	FindByID(ctx context.Context, id int64) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	AddPushToken(ctx context.Context, userID int64, token string) error
	Delete(ctx context.Context, id int64) error
	SaveRefreshToken(ctx context.Context, userID int64, token string, expiresAt time.Time) error
	FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, token string) error
}

// PostStore is the persistence contract for lost/found posts.
type PostStore interface {
	Create(ctx context.Context, post *models.Post) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.Post, error)
	List(ctx context.Context, filter *dto.PostFilter, offset uint64, limit int) ([]*models.Post, int64, error)
	UpdateStatus(ctx context.Context, id int64, status models.PostStatus) error
	MarkResolved(ctx context.Context, id int64, transcript json.RawMessage) error
	Moderate(ctx context.Context, id int64, hidden, flagged *bool) error
	Delete(ctx context.Context, id int64) error
}

// ConversationStore is the persistence contract for conversations and
// their participant bookkeeping.
type ConversationStore interface {
	GetOrCreate(ctx context.Context, post *models.Post, initiator, owner *models.User) (*models.Conversation, error)
	GetByID(ctx context.Context, id int64) (*models.Conversation, error)
	ListForUser(ctx context.Context, userID int64) ([]*models.Conversation, error)
	AppendMessage(ctx context.Context, message *models.Message, evictBeyond int) (int64, error)
	ResetUnread(ctx context.Context, conversationID, userID int64) error
	ClearRequestPointer(ctx context.Context, conversationID int64, kind models.RequestKind) error
	CountMessages(ctx context.Context, conversationID int64) (int, error)
	Delete(ctx context.Context, id int64) error
	DeleteForUser(ctx context.Context, userID int64) error
}

// MessageStore is the persistence contract for individual messages.
type MessageStore interface {
	GetByID(ctx context.Context, id int64) (*models.Message, error)
	ListByConversation(ctx context.Context, conversationID, beforeID int64, limit int) ([]*models.Message, error)
	ListAllByConversation(ctx context.Context, conversationID int64) ([]*models.Message, error)
	CompareAndSwap(ctx context.Context, messageID int64, from []models.RequestStatus, mutate func(*models.Message) error) (bool, error)
	DeleteOwn(ctx context.Context, messageID, senderID int64) error
}

// MediaStore is the contract for the external image store.
type MediaStore interface {
	Upload(ctx context.Context, file io.Reader, subfolder string) (string, error)
	Delete(ctx context.Context, imageURL string) (bool, error)
}

var (
	_ UserStore         = (*repositories.UserRepository)(nil)
	_ PostStore         = (*repositories.PostRepository)(nil)
	_ ConversationStore = (*repositories.ConversationRepository)(nil)
	_ MessageStore      = (*repositories.MessageRepository)(nil)
)
