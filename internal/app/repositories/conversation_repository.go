package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Bluerat1/uniclaim-server/internal/app/models"
	"github.com/Bluerat1/uniclaim-server/internal/db"
	"github.com/Bluerat1/uniclaim-server/internal/pkg/apperrors"
	"github.com/Bluerat1/uniclaim-server/internal/pkg/dberrors"
)

// ConversationRepository handles database operations for conversations
// and their participant bookkeeping.
type ConversationRepository struct {
	db *pgxpool.Pool
}

// NewConversationRepository creates a new ConversationRepository
func NewConversationRepository(db *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// GetOrCreate returns the conversation between the two users about the
// post, creating it (with participant snapshots) on first contact.
func (r *ConversationRepository) GetOrCreate(ctx context.Context, post *models.Post, initiator, owner *models.User) (*models.Conversation, error) {
	existing, err := r.findByPostAndUser(ctx, post.ID, initiator.ID)
	if err != nil && !errors.Is(err, apperrors.ErrConversationNotFound) {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	var conversationID int64
	err = db.WithTransaction(ctx, r.db, func(ctx context.Context, tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO conversations (post_id, post_title, post_creator_id)
			VALUES ($1, $2, $3)
			RETURNING id
		`, post.ID, post.Title, post.CreatorID).Scan(&conversationID)
		if err != nil {
			return fmt.Errorf("error creating conversation: %w", err)
		}

		for _, user := range []*models.User{initiator, owner} {
			_, err = tx.Exec(ctx, `
				INSERT INTO conversation_participants (conversation_id, user_id, display_name, profile_photo_url)
				VALUES ($1, $2, $3, $4)
			`, conversationID, user.ID, user.FullName(), user.ProfilePhotoURL)
			if err != nil {
				return fmt.Errorf("error adding participant: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, dberrors.Translate(err)
	}

	return r.GetByID(ctx, conversationID)
}

func (r *ConversationRepository) findByPostAndUser(ctx context.Context, postID, userID int64) (*models.Conversation, error) {
	var conversationID int64
	err := r.db.QueryRow(ctx, `
		SELECT c.id
		FROM conversations c
		JOIN conversation_participants p ON p.conversation_id = c.id
		WHERE c.post_id = $1 AND p.user_id = $2
	`, postID, userID).Scan(&conversationID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrConversationNotFound
		}
		return nil, dberrors.Translate(fmt.Errorf("error finding conversation: %w", err))
	}
	return r.GetByID(ctx, conversationID)
}

// GetByID retrieves a conversation with its participants
func (r *ConversationRepository) GetByID(ctx context.Context, id int64) (*models.Conversation, error) {
	query := `
		SELECT id, post_id, post_title, post_creator_id,
		       last_message_text, last_message_sender_id, last_message_at,
		       has_handover_request, has_claim_request,
		       active_handover_message_id, active_claim_message_id,
		       created_at, updated_at
		FROM conversations
		WHERE id = $1
	`

	var conversation models.Conversation
	err := r.db.QueryRow(ctx, query, id).Scan(
		&conversation.ID,
		&conversation.PostID,
		&conversation.PostTitle,
		&conversation.PostCreatorID,
		&conversation.LastMessageText,
		&conversation.LastMessageSender,
		&conversation.LastMessageAt,
		&conversation.HasHandoverRequest,
		&conversation.HasClaimRequest,
		&conversation.ActiveHandoverMessageID,
		&conversation.ActiveClaimMessageID,
		&conversation.CreatedAt,
		&conversation.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrConversationNotFound
		}
		return nil, dberrors.Translate(fmt.Errorf("error retrieving conversation: %w", err))
	}

	participants, err := r.getParticipants(ctx, id)
	if err != nil {
		return nil, err
	}
	conversation.Participants = participants

	return &conversation, nil
}

func (r *ConversationRepository) getParticipants(ctx context.Context, conversationID int64) ([]*models.ConversationParticipant, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, conversation_id, user_id, display_name, profile_photo_url, unread_count, joined_at
		FROM conversation_participants
		WHERE conversation_id = $1
		ORDER BY joined_at
	`, conversationID)
	if err != nil {
		return nil, dberrors.Translate(fmt.Errorf("error retrieving participants: %w", err))
	}
	defer rows.Close()

	var participants []*models.ConversationParticipant
	for rows.Next() {
		var p models.ConversationParticipant
		err := rows.Scan(
			&p.ID,
			&p.ConversationID,
			&p.UserID,
			&p.DisplayName,
			&p.ProfilePhotoURL,
			&p.UnreadCount,
			&p.JoinedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning participant row: %w", err)
		}
		participants = append(participants, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating participant rows: %w", err)
	}

	return participants, nil
}

// ListForUser retrieves all conversations a user takes part in, most
// recently active first.
func (r *ConversationRepository) ListForUser(ctx context.Context, userID int64) ([]*models.Conversation, error) {
	rows, err := r.db.Query(ctx, `
		SELECT c.id
		FROM conversations c
		JOIN conversation_participants p ON p.conversation_id = c.id
		WHERE p.user_id = $1
		ORDER BY COALESCE(c.last_message_at, c.created_at) DESC
	`, userID)
	if err != nil {
		return nil, dberrors.Translate(fmt.Errorf("error listing conversations: %w", err))
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("error scanning conversation row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversation rows: %w", err)
	}

	conversations := make([]*models.Conversation, 0, len(ids))
	for _, id := range ids {
		conversation, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, conversation)
	}
	return conversations, nil
}

// AppendMessage atomically inserts a message, refreshes the
// conversation's last-message summary and request pointers, and bumps
// every other participant's unread counter. When evictBeyond is
// positive, messages older than the newest evictBeyond are removed.
func (r *ConversationRepository) AppendMessage(ctx context.Context, message *models.Message, evictBeyond int) (int64, error) {
	err := db.WithTransaction(ctx, r.db, func(ctx context.Context, tx pgx.Tx) error {
		handoverData, claimData, err := marshalPayloads(message)
		if err != nil {
			return err
		}

		err = tx.QueryRow(ctx, `
			INSERT INTO messages (
				conversation_id, sender_id, sender_name, sender_photo_url,
				text, message_type, read_by, request_status, handover_data, claim_data
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING id, created_at
		`,
			message.ConversationID,
			message.SenderID,
			message.SenderName,
			message.SenderPhotoURL,
			message.Text,
			message.Type,
			message.ReadBy,
			message.RequestStatus,
			handoverData,
			claimData,
		).Scan(&message.ID, &message.CreatedAt)
		if err != nil {
			return fmt.Errorf("error creating message: %w", err)
		}

		// Last-message summary and, for request messages, the pointer
		// fields used to short-circuit duplicate-request checks.
		switch kind, isRequest := message.RequestKind(); {
		case isRequest && kind == models.RequestKindHandover:
			_, err = tx.Exec(ctx, `
				UPDATE conversations
				SET last_message_text = $2, last_message_sender_id = $3, last_message_at = $4,
				    has_handover_request = TRUE, active_handover_message_id = $5, updated_at = NOW()
				WHERE id = $1
			`, message.ConversationID, message.Text, message.SenderID, message.CreatedAt, message.ID)
		case isRequest && kind == models.RequestKindClaim:
			_, err = tx.Exec(ctx, `
				UPDATE conversations
				SET last_message_text = $2, last_message_sender_id = $3, last_message_at = $4,
				    has_claim_request = TRUE, active_claim_message_id = $5, updated_at = NOW()
				WHERE id = $1
			`, message.ConversationID, message.Text, message.SenderID, message.CreatedAt, message.ID)
		default:
			_, err = tx.Exec(ctx, `
				UPDATE conversations
				SET last_message_text = $2, last_message_sender_id = $3, last_message_at = $4, updated_at = NOW()
				WHERE id = $1
			`, message.ConversationID, message.Text, message.SenderID, message.CreatedAt)
		}
		if err != nil {
			return fmt.Errorf("error updating conversation summary: %w", err)
		}

		// Field-level increment, never read-modify-write: concurrent
		// sends from both participants stay consistent.
		_, err = tx.Exec(ctx, `
			UPDATE conversation_participants
			SET unread_count = unread_count + 1
			WHERE conversation_id = $1 AND user_id <> $2
		`, message.ConversationID, message.SenderID)
		if err != nil {
			return fmt.Errorf("error incrementing unread counters: %w", err)
		}

		if evictBeyond > 0 {
			_, err = tx.Exec(ctx, `
				DELETE FROM messages
				WHERE conversation_id = $1 AND id NOT IN (
					SELECT id FROM messages
					WHERE conversation_id = $1
					ORDER BY created_at DESC, id DESC
					LIMIT $2
				)
			`, message.ConversationID, evictBeyond)
			if err != nil {
				return fmt.Errorf("error evicting old messages: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		return 0, dberrors.Translate(err)
	}

	return message.ID, nil
}

// ResetUnread zeroes the opener's unread counter and stamps their id
// into the read_by set of every message they had not read yet.
func (r *ConversationRepository) ResetUnread(ctx context.Context, conversationID, userID int64) error {
	err := db.WithTransaction(ctx, r.db, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			UPDATE conversation_participants
			SET unread_count = 0
			WHERE conversation_id = $1 AND user_id = $2
		`, conversationID, userID)
		if err != nil {
			return fmt.Errorf("error resetting unread counter: %w", err)
		}

		_, err = tx.Exec(ctx, `
			UPDATE messages
			SET read_by = array_append(read_by, $2)
			WHERE conversation_id = $1 AND NOT ($2 = ANY(read_by))
		`, conversationID, userID)
		if err != nil {
			return fmt.Errorf("error marking messages read: %w", err)
		}
		return nil
	})
	return dberrors.Translate(err)
}

// ClearRequestPointer drops a stale request pointer of the given kind.
func (r *ConversationRepository) ClearRequestPointer(ctx context.Context, conversationID int64, kind models.RequestKind) error {
	var query string
	if kind == models.RequestKindHandover {
		query = `UPDATE conversations SET active_handover_message_id = NULL, updated_at = NOW() WHERE id = $1`
	} else {
		query = `UPDATE conversations SET active_claim_message_id = NULL, updated_at = NOW() WHERE id = $1`
	}
	_, err := r.db.Exec(ctx, query, conversationID)
	if err != nil {
		return dberrors.Translate(fmt.Errorf("error clearing request pointer: %w", err))
	}
	return nil
}

// CountMessages returns the number of messages in a conversation
func (r *ConversationRepository) CountMessages(ctx context.Context, conversationID int64) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM messages WHERE conversation_id = $1`, conversationID).Scan(&count)
	if err != nil {
		return 0, dberrors.Translate(fmt.Errorf("error counting messages: %w", err))
	}
	return count, nil
}

// Delete removes a conversation; its messages and participant rows
// cascade. Deleting an already-gone conversation is not an error.
func (r *ConversationRepository) Delete(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return dberrors.Translate(fmt.Errorf("error deleting conversation: %w", err))
	}
	return nil
}

// DeleteForUser removes every conversation a user takes part in. Used
// during account deletion.
func (r *ConversationRepository) DeleteForUser(ctx context.Context, userID int64) error {
	_, err := r.db.Exec(ctx, `
		DELETE FROM conversations
		WHERE id IN (
			SELECT conversation_id FROM conversation_participants WHERE user_id = $1
		)
	`, userID)
	if err != nil {
		return dberrors.Translate(fmt.Errorf("error deleting conversations for user: %w", err))
	}
	return nil
}

func marshalPayloads(message *models.Message) (handoverData, claimData []byte, err error) {
	if message.HandoverData != nil {
		handoverData, err = json.Marshal(message.HandoverData)
		if err != nil {
			return nil, nil, fmt.Errorf("error marshalling handover payload: %w", err)
		}
	}
	if message.ClaimData != nil {
		claimData, err = json.Marshal(message.ClaimData)
		if err != nil {
			return nil, nil, fmt.Errorf("error marshalling claim payload: %w", err)
		}
	}
	return handoverData, claimData, nil
}
