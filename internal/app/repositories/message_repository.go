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

// MessageRepository handles database operations for messages
type MessageRepository struct {
	db *pgxpool.Pool
}

// NewMessageRepository creates a new MessageRepository
func NewMessageRepository(db *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{db: db}
}

const messageColumns = `
	id, conversation_id, sender_id, sender_name, sender_photo_url,
	text, message_type, read_by, request_status, handover_data, claim_data, created_at
`

func scanMessage(row pgx.Row) (*models.Message, error) {
	var message models.Message
	var handoverData, claimData []byte
	err := row.Scan(
		&message.ID,
		&message.ConversationID,
		&message.SenderID,
		&message.SenderName,
		&message.SenderPhotoURL,
		&message.Text,
		&message.Type,
		&message.ReadBy,
		&message.RequestStatus,
		&handoverData,
		&claimData,
		&message.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(handoverData) > 0 {
		message.HandoverData = &models.HandoverData{}
		if err := json.Unmarshal(handoverData, message.HandoverData); err != nil {
			return nil, fmt.Errorf("error unmarshalling handover payload: %w", err)
		}
	}
	if len(claimData) > 0 {
		message.ClaimData = &models.ClaimData{}
		if err := json.Unmarshal(claimData, message.ClaimData); err != nil {
			return nil, fmt.Errorf("error unmarshalling claim payload: %w", err)
		}
	}
	return &message, nil
}

// GetByID retrieves a message by its ID
func (r *MessageRepository) GetByID(ctx context.Context, id int64) (*models.Message, error) {
	query := fmt.Sprintf(`SELECT %s FROM messages WHERE id = $1`, messageColumns)
	message, err := scanMessage(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrMessageNotFound
		}
		return nil, dberrors.Translate(fmt.Errorf("error retrieving message: %w", err))
	}
	return message, nil
}

// ListByConversation retrieves up to limit messages, newest first.
// A non-zero beforeID fetches the page older than that message.
func (r *MessageRepository) ListByConversation(ctx context.Context, conversationID, beforeID int64, limit int) ([]*models.Message, error) {
	var rows pgx.Rows
	var err error
	if beforeID > 0 {
		query := fmt.Sprintf(`
			SELECT %s FROM messages
			WHERE conversation_id = $1 AND id < $2
			ORDER BY created_at DESC, id DESC
			LIMIT $3
		`, messageColumns)
		rows, err = r.db.Query(ctx, query, conversationID, beforeID, limit)
	} else {
		query := fmt.Sprintf(`
			SELECT %s FROM messages
			WHERE conversation_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		`, messageColumns)
		rows, err = r.db.Query(ctx, query, conversationID, limit)
	}
	if err != nil {
		return nil, dberrors.Translate(fmt.Errorf("error listing messages: %w", err))
	}
	defer rows.Close()

	return collectMessages(rows)
}

// ListAllByConversation retrieves the full history, oldest first. Used
// when archiving a conversation transcript onto its post.
func (r *MessageRepository) ListAllByConversation(ctx context.Context, conversationID int64) ([]*models.Message, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at, id
	`, messageColumns)
	rows, err := r.db.Query(ctx, query, conversationID)
	if err != nil {
		return nil, dberrors.Translate(fmt.Errorf("error listing messages: %w", err))
	}
	defer rows.Close()

	return collectMessages(rows)
}

func collectMessages(rows pgx.Rows) ([]*models.Message, error) {
	var messages []*models.Message
	for rows.Next() {
		message, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning message row: %w", err)
		}
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}
	return messages, nil
}

// CompareAndSwap locks the message, verifies its request status is one
// of from, applies mutate, and persists the result. It returns false
// without error when the status check fails, so callers can
// distinguish a lost race from a real failure.
func (r *MessageRepository) CompareAndSwap(ctx context.Context, messageID int64, from []models.RequestStatus, mutate func(*models.Message) error) (bool, error) {
	swapped := false
	err := db.WithTransaction(ctx, r.db, func(ctx context.Context, tx pgx.Tx) error {
		query := fmt.Sprintf(`SELECT %s FROM messages WHERE id = $1 FOR UPDATE`, messageColumns)
		message, err := scanMessage(tx.QueryRow(ctx, query, messageID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperrors.ErrMessageNotFound
			}
			return fmt.Errorf("error locking message: %w", err)
		}

		matched := false
		for _, status := range from {
			if message.RequestStatus != nil && *message.RequestStatus == status {
				matched = true
				break
			}
		}
		if !matched {
			return nil
		}

		if err := mutate(message); err != nil {
			return err
		}

		handoverData, claimData, err := marshalPayloads(message)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			UPDATE messages
			SET request_status = $2, handover_data = $3, claim_data = $4
			WHERE id = $1
		`, messageID, message.RequestStatus, handoverData, claimData)
		if err != nil {
			return fmt.Errorf("error updating message: %w", err)
		}
		swapped = true
		return nil
	})
	if err != nil {
		return false, dberrors.Translate(err)
	}
	return swapped, nil
}

// DeleteOwn removes a message if it belongs to the given sender.
func (r *MessageRepository) DeleteOwn(ctx context.Context, messageID, senderID int64) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM messages WHERE id = $1 AND sender_id = $2`, messageID, senderID)
	if err != nil {
		return dberrors.Translate(fmt.Errorf("error deleting message: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrMessageNotFound
	}
	return nil
}
