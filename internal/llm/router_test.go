package llm_test

import (
	"context"
	"testing"

	"github.com/Rrens/kaif-chat/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	name       string
	configured bool
}

func (s stubProvider) Name() string              { return s.name }
func (s stubProvider) AvailableModels() []string { return []string{s.name + "-model"} }
func (s stubProvider) DefaultModel() string      { return s.name + "-model" }
func (s stubProvider) IsConfigured() bool        { return s.configured }
func (s stubProvider) GenerateReply(ctx context.Context, req llm.Request, model string) (*llm.Response, error) {
	return &llm.Response{Reply: req.Message, Model: model}, nil
}

func TestRouter_GetProvider(t *testing.T) {
	r := llm.NewRouter("ollama")
	r.RegisterProvider(stubProvider{name: "ollama", configured: true})
	r.RegisterProvider(stubProvider{name: "openai", configured: false})

	p, err := r.GetProvider("")
	require.NoError(t, err)
	assert.Equal(t, "ollama", p.Name())

	_, err = r.GetProvider("openai")
	assert.ErrorContains(t, err, "not configured")

	_, err = r.GetProvider("gemini")
	assert.ErrorContains(t, err, "not found")

	assert.Equal(t, []string{"ollama"}, r.ListProviders())

	infos := r.GetProvidersInfo()
	require.Len(t, infos, 2)
	assert.Equal(t, "ollama", infos[0].Name)
	assert.True(t, infos[0].Default)
	assert.False(t, infos[1].Configured)
}
