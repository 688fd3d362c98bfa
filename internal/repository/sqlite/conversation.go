package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/Rrens/kaif-chat/internal/domain"
	"github.com/google/uuid"
)

// ConversationRepository implements domain.ConversationRepository on SQLite
type ConversationRepository struct {
	db  *DB
	now func() time.Time
}

// NewConversationRepository creates a new conversation repository
func NewConversationRepository(db *DB) *ConversationRepository {
	return &ConversationRepository{db: db, now: time.Now}
}

func (r *ConversationRepository) Create(ctx context.Context, conversation *domain.Conversation) error {
	id := uuid.New()
	createdAt := r.now().UTC()

	_, err := r.db.conn.ExecContext(ctx,
		`INSERT INTO conversations (id, user_id, title, created_at) VALUES (?, ?, ?, ?)`,
		id.String(), conversation.UserID.String(), conversation.Title, createdAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}

	conversation.ID = id
	conversation.CreatedAt = time.UnixMilli(createdAt.UnixMilli()).UTC()
	return nil
}

func (r *ConversationRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Conversation, error) {
	rows, err := r.db.conn.QueryContext(ctx, `
		SELECT id, user_id, title, created_at
		FROM conversations
		WHERE user_id = ?
		ORDER BY created_at DESC, rowid DESC
	`, userID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	conversations := []domain.Conversation{}
	for rows.Next() {
		var c domain.Conversation
		var createdAt int64
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		c.CreatedAt = time.UnixMilli(createdAt).UTC()
		conversations = append(conversations, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversations: %w", err)
	}
	return conversations, nil
}

func (r *ConversationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.conn.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id.String()); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return nil
}

func (r *ConversationRepository) DeleteByUser(ctx context.Context, userID uuid.UUID) error {
	if _, err := r.db.conn.ExecContext(ctx, `DELETE FROM conversations WHERE user_id = ?`, userID.String()); err != nil {
		return fmt.Errorf("failed to delete conversations: %w", err)
	}
	return nil
}
