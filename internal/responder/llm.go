package responder

import (
	"context"
	"fmt"
	"time"

	"github.com/Rrens/kaif-chat/internal/domain"
	"github.com/Rrens/kaif-chat/internal/llm"
	"github.com/rs/zerolog/log"
)

// LLMResponder answers through a configured LLM provider
type LLMResponder struct {
	provider llm.Provider
	model    string
	timeout  time.Duration
}

// NewLLMResponder wraps a provider; an empty model uses the provider default
func NewLLMResponder(provider llm.Provider, model string, timeout time.Duration) *LLMResponder {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &LLMResponder{provider: provider, model: model, timeout: timeout}
}

func (r *LLMResponder) Respond(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	history := make([]llm.Turn, len(req.History))
	for i, t := range req.History {
		history[i] = llm.Turn{IsUser: t.IsUser, Content: t.Content}
	}

	resp, err := r.provider.GenerateReply(ctx, llm.Request{Message: req.Message, History: history}, r.model)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrResponderUnavailable, err)
	}

	log.Debug().
		Str("provider", r.provider.Name()).
		Str("model", resp.Model).
		Int("history_turns", len(history)).
		Int("tokens", resp.TokensUsed).
		Int64("latency_ms", resp.LatencyMs).
		Msg("LLM reply generated")

	return resp.Reply, nil
}
