package responder

import (
	"context"
	"fmt"
	"time"

	"github.com/Rrens/kaif-chat/internal/domain"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// WebhookClient posts user messages to an external HTTP responder
type WebhookClient struct {
	client  *resty.Client
	url     string
	timeout time.Duration
}

// NewWebhookClient creates a webhook responder; a non-positive timeout uses DefaultTimeout
func NewWebhookClient(url string, timeout time.Duration) *WebhookClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &WebhookClient{
		client: resty.New().
			SetHeader("Accept", "application/json").
			SetRetryCount(0),
		url:     url,
		timeout: timeout,
	}
}

// Respond sends exactly one request and extracts the reply text
func (c *WebhookClient) Respond(ctx context.Context, req Request) (string, error) {
	if c.url == "" {
		return "", fmt.Errorf("%w: webhook url not configured", domain.ErrResponderUnavailable)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		Post(c.url)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrResponderUnavailable, err)
	}

	log.Debug().
		Int("status", resp.StatusCode()).
		Dur("latency", time.Since(start)).
		Str("conversation_id", req.ConversationID).
		Msg("Responder webhook returned")

	if !resp.IsSuccess() {
		return "", fmt.Errorf("%w: HTTP %d", domain.ErrResponderUnavailable, resp.StatusCode())
	}

	return ExtractReply(resp.Header().Get("Content-Type"), resp.Body())
}
