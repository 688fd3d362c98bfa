package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/Rrens/kaif-chat/internal/domain"
	"github.com/google/uuid"
)

// MessageRepository implements domain.MessageRepository on SQLite
type MessageRepository struct {
	db  *DB
	now func() time.Time
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db *DB) *MessageRepository {
	return &MessageRepository{db: db, now: time.Now}
}

func (r *MessageRepository) Create(ctx context.Context, message *domain.Message) error {
	id := uuid.New()
	createdAt := r.now().UTC().UnixMilli()

	_, err := r.db.conn.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, user_id, content, is_user, type, audio_url, audio_duration, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		id.String(),
		message.ConversationID.String(),
		message.UserID.String(),
		message.Content,
		message.IsUser,
		string(message.Kind),
		message.AudioURL,
		message.AudioDuration,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}

	message.ID = id
	message.CreatedAt = time.UnixMilli(createdAt).UTC()
	return nil
}

func (r *MessageRepository) ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]domain.Message, error) {
	rows, err := r.db.conn.QueryContext(ctx, `
		SELECT id, conversation_id, user_id, content, is_user, type, audio_url, audio_duration, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at ASC, rowid ASC
	`, conversationID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages := []domain.Message{}
	for rows.Next() {
		var m domain.Message
		var kind string
		var createdAt int64
		if err := rows.Scan(
			&m.ID,
			&m.ConversationID,
			&m.UserID,
			&m.Content,
			&m.IsUser,
			&kind,
			&m.AudioURL,
			&m.AudioDuration,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Kind = domain.MessageKind(kind)
		m.CreatedAt = time.UnixMilli(createdAt).UTC()
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return messages, nil
}
