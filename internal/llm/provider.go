package llm

import "context"

// Request contains reply generation parameters
type Request struct {
	Message string
	// History holds earlier turns of the conversation, oldest first
	History []Turn
}

// Turn is one prior exchange in a conversation
type Turn struct {
	IsUser  bool
	Content string
}

// Response contains LLM generation result
type Response struct {
	Reply      string
	Model      string
	TokensUsed int
	LatencyMs  int64
}

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider identifier
	Name() string

	// AvailableModels returns list of supported models
	AvailableModels() []string

	// DefaultModel returns the default model
	DefaultModel() string

	// IsConfigured checks if provider has valid credentials
	IsConfigured() bool

	// GenerateReply produces the assistant reply for a user message
	GenerateReply(ctx context.Context, req Request, model string) (*Response, error)
}
