package repositories

import (
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repositories bundles all repository instances
type Repositories struct {
	UserRepository         *UserRepository
	PostRepository         *PostRepository
	ConversationRepository *ConversationRepository
	MessageRepository      *MessageRepository
}

// NewRepositories creates all repositories sharing one pool
func NewRepositories(db *pgxpool.Pool) *Repositories {
	return &Repositories{
		UserRepository:         NewUserRepository(db),
		PostRepository:         NewPostRepository(db),
		ConversationRepository: NewConversationRepository(db),
		MessageRepository:      NewMessageRepository(db),
	}
}
