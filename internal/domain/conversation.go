package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Titles used when a conversation is created implicitly by the first send
const (
	TitleMaxRunes     = 50
	VoiceMessageTitle = "Voice Message"
)

// Conversation represents a chat thread owned by a user
type Conversation struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// TitleFromContent derives a conversation title from the first message
func TitleFromContent(content string) string {
	runes := []rune(content)
	if len(runes) > TitleMaxRunes {
		return string(runes[:TitleMaxRunes])
	}
	return content
}

// ConversationRepository defines the interface for conversation storage
type ConversationRepository interface {
	// ListByUser returns the user's conversations, newest first
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Conversation, error)
	// Create inserts a conversation and fills in the server-assigned ID and CreatedAt
	Create(ctx context.Context, conversation *Conversation) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByUser(ctx context.Context, userID uuid.UUID) error
}
