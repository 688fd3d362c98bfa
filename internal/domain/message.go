package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// MessageKind distinguishes typed text from recorded audio
type MessageKind string

const (
	KindText  MessageKind = "text"
	KindAudio MessageKind = "audio"
)

// Message represents a single entry in a conversation
type Message struct {
	ID             uuid.UUID   `json:"id"`
	ConversationID uuid.UUID   `json:"conversation_id"`
	UserID         uuid.UUID   `json:"user_id"`
	Content        string      `json:"content"`
	IsUser         bool        `json:"is_user"`
	Kind           MessageKind `json:"type"`
	AudioURL       string      `json:"audio_url,omitempty"`
	AudioDuration  int         `json:"audio_duration,omitempty"` // seconds
	CreatedAt      time.Time   `json:"timestamp"`
}

// MessageRepository defines the interface for message storage
type MessageRepository interface {
	// ListByConversation returns messages oldest first
	ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]Message, error)
	// Create inserts a message and fills in the server-assigned ID and CreatedAt
	Create(ctx context.Context, message *Message) error
}
