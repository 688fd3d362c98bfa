package postgres

import (
	"context"
	"fmt"

	"github.com/Rrens/kaif-chat/internal/domain"
	"github.com/google/uuid"
)

// MessageRepository implements domain.MessageRepository
type MessageRepository struct {
	db *DB
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db *DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create inserts a new message
func (r *MessageRepository) Create(ctx context.Context, message *domain.Message) error {
	query := `
		INSERT INTO messages (conversation_id, user_id, content, is_user, type, audio_url, audio_duration)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)
		RETURNING id, created_at
	`
	err := r.db.Pool.QueryRow(ctx, query,
		message.ConversationID,
		message.UserID,
		message.Content,
		message.IsUser,
		string(message.Kind),
		message.AudioURL,
		message.AudioDuration,
	).Scan(&message.ID, &message.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// ListByConversation retrieves messages for a conversation in chronological order
func (r *MessageRepository) ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]domain.Message, error) {
	query := `
		SELECT id, conversation_id, user_id, content, is_user, type, COALESCE(audio_url, ''), audio_duration, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC
	`
	rows, err := r.db.Pool.Query(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages := []domain.Message{}
	for rows.Next() {
		var m domain.Message
		var kind string

		if err := rows.Scan(
			&m.ID,
			&m.ConversationID,
			&m.UserID,
			&m.Content,
			&m.IsUser,
			&kind,
			&m.AudioURL,
			&m.AudioDuration,
			&m.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Kind = domain.MessageKind(kind)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}

	return messages, nil
}
