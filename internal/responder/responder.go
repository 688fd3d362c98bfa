package responder

import (
	"context"
	"time"
)

// DefaultTimeout bounds a single responder call
const DefaultTimeout = 30 * time.Second

// Request is the payload sent to the responder endpoint
type Request struct {
	Message        string `json:"message"`
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id"`
	// History holds the stored turns before Message. It is not part of
	// the webhook payload.
	History []Turn `json:"-"`
}

// Turn is one prior message of the conversation
type Turn struct {
	IsUser  bool
	Content string
}

// Responder produces an assistant reply for a user message.
// Failures wrap domain.ErrResponderUnavailable.
type Responder interface {
	Respond(ctx context.Context, req Request) (string, error)
}
