package responder

import (
	"context"
	"errors"
	"testing"

	"github.com/Rrens/kaif-chat/internal/domain"
	"github.com/Rrens/kaif-chat/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	reply string
	err   error
	seen  llm.Request
}

func (f *fakeProvider) Name() string              { return "fake" }
func (f *fakeProvider) AvailableModels() []string { return nil }
func (f *fakeProvider) DefaultModel() string      { return "fake-1" }
func (f *fakeProvider) IsConfigured() bool        { return true }
func (f *fakeProvider) GenerateReply(ctx context.Context, req llm.Request, model string) (*llm.Response, error) {
	f.seen = req
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Response{Reply: f.reply, Model: "fake-1"}, nil
}

func TestLLMResponder(t *testing.T) {
	p := &fakeProvider{reply: "generated"}
	reply, err := NewLLMResponder(p, "", 0).Respond(context.Background(), Request{Message: "question"})
	require.NoError(t, err)
	assert.Equal(t, "generated", reply)
	assert.Equal(t, "question", p.seen.Message)
}

func TestLLMResponder_ProviderError(t *testing.T) {
	p := &fakeProvider{err: errors.New("quota exceeded")}
	_, err := NewLLMResponder(p, "", 0).Respond(context.Background(), Request{Message: "q"})
	assert.ErrorIs(t, err, domain.ErrResponderUnavailable)
	assert.ErrorContains(t, err, "quota exceeded")
}

func TestLLMResponder_ForwardsHistory(t *testing.T) {
	p := &fakeProvider{reply: "it is 4"}
	_, err := NewLLMResponder(p, "", 0).Respond(context.Background(), Request{
		Message: "and doubled?",
		History: []Turn{
			{IsUser: true, Content: "what is 1+1"},
			{IsUser: false, Content: "2"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []llm.Turn{
		{IsUser: true, Content: "what is 1+1"},
		{IsUser: false, Content: "2"},
	}, p.seen.History)
}
