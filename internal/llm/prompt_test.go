package llm_test

import (
	"testing"

	"github.com/Rrens/kaif-chat/internal/llm"
	"github.com/stretchr/testify/assert"
)

func TestBuildPrompt(t *testing.T) {
	prompt := llm.BuildPrompt(llm.Request{Message: "What is Go?"})

	assert.Contains(t, prompt, "KaifV1")
	assert.Contains(t, prompt, "User: What is Go?")
	assert.True(t, len(prompt) > 0 && prompt[len(prompt)-len("Assistant:"):] == "Assistant:")
}

func TestBuildPrompt_WithHistory(t *testing.T) {
	prompt := llm.BuildPrompt(llm.Request{
		Message: "And channels?",
		History: []llm.Turn{
			{IsUser: true, Content: "Tell me about goroutines"},
			{IsUser: false, Content: "They are lightweight threads"},
		},
	})

	assert.Contains(t, prompt, "User: Tell me about goroutines\nAssistant: They are lightweight threads\nUser: And channels?")
}

func TestCleanReply(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected string
	}{
		{"plain", "Hello there", "Hello there"},
		{"whitespace", "  Hello \n", "Hello"},
		{"think block", "<think>\nreasoning\n</think>\n\nHello", "Hello"},
		{"unterminated think", "<think>reasoning", "<think>reasoning"},
		{"empty", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, llm.CleanReply(tt.content))
		})
	}
}
