package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Rrens/kaif-chat/internal/llm"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvider_GenerateReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req openai.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 3)
		assert.Equal(t, openai.ChatMessageRoleSystem, req.Messages[0].Role)
		assert.Equal(t, openai.ChatMessageRoleAssistant, req.Messages[1].Role)
		assert.Equal(t, "how are you?", req.Messages[2].Content)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Doing well."}}],"usage":{"total_tokens":12}}`))
	}))
	defer srv.Close()

	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	p := newProvider(cfg, "test-key", "")

	resp, err := p.GenerateReply(context.Background(), llm.Request{
		Message: "how are you?",
		History: []llm.Turn{{IsUser: false, Content: "Hello!"}},
	}, "")
	require.NoError(t, err)

	assert.Equal(t, "Doing well.", resp.Reply)
	assert.Equal(t, "gpt-4o-mini", resp.Model)
	assert.Equal(t, 12, resp.TokensUsed)
}

func TestProvider_IsConfigured(t *testing.T) {
	assert.False(t, NewProvider("", "").IsConfigured())
	assert.True(t, NewProvider("k", "").IsConfigured())
}
