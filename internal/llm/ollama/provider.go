package ollama

import (
	"context"
	"fmt"
	"time"

	"github.com/Rrens/kaif-chat/internal/llm"
	"github.com/go-resty/resty/v2"
)

// Provider implements llm.Provider for Ollama
type Provider struct {
	host         string
	defaultModel string
	client       *resty.Client
}

// NewProvider creates a new Ollama provider
func NewProvider(host, defaultModel string) llm.Provider {
	if defaultModel == "" {
		defaultModel = "llama3"
	}
	return &Provider{
		host:         host,
		defaultModel: defaultModel,
		client:       resty.New().SetBaseURL(host).SetTimeout(300 * time.Second),
	}
}

// Name returns the provider identifier
func (p *Provider) Name() string {
	return "ollama"
}

// AvailableModels returns list of supported models
func (p *Provider) AvailableModels() []string {
	return []string{
		"llama3",
		"llama3.1",
		"llama3.2",
		"mistral",
		"mixtral",
		"phi3",
		"qwen2",
	}
}

// DefaultModel returns the default model
func (p *Provider) DefaultModel() string {
	return p.defaultModel
}

// IsConfigured checks if provider has a host
func (p *Provider) IsConfigured() bool {
	return p.host != ""
}

type ollamaRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaResponse struct {
	Response  string `json:"response"`
	Done      bool   `json:"done"`
	EvalCount int    `json:"eval_count"`
}

// GenerateReply generates the assistant reply
func (p *Provider) GenerateReply(ctx context.Context, req llm.Request, model string) (*llm.Response, error) {
	if model == "" {
		model = p.defaultModel
	}

	var ollamaResp ollamaResponse
	start := time.Now()

	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(ollamaRequest{
			Model:  model,
			Prompt: llm.BuildPrompt(req),
			Stream: false,
			Options: map[string]any{
				"temperature": 0.7,
				"num_predict": 1024,
			},
		}).
		SetResult(&ollamaResp).
		Post("/api/generate")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.IsError() {
		return nil, fmt.Errorf("ollama returned status %d", resp.StatusCode())
	}

	return &llm.Response{
		Reply:      llm.CleanReply(ollamaResp.Response),
		Model:      model,
		TokensUsed: ollamaResp.EvalCount,
		LatencyMs:  time.Since(start).Milliseconds(),
	}, nil
}
