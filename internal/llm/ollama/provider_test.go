package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Rrens/kaif-chat/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvider_GenerateReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)

		var req ollamaRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3", req.Model)
		assert.False(t, req.Stream)
		assert.Contains(t, req.Prompt, "User: hi there")

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"response":"  Hello!  ","done":true,"eval_count":7}`))
	}))
	defer srv.Close()

	p := NewProvider(srv.URL, "")
	resp, err := p.GenerateReply(context.Background(), llm.Request{Message: "hi there"}, "")
	require.NoError(t, err)

	assert.Equal(t, "Hello!", resp.Reply)
	assert.Equal(t, "llama3", resp.Model)
	assert.Equal(t, 7, resp.TokensUsed)
}

func TestProvider_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewProvider(srv.URL, "mistral")
	_, err := p.GenerateReply(context.Background(), llm.Request{Message: "x"}, "")
	assert.ErrorContains(t, err, "status 500")
}
