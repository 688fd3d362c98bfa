package llm

import (
	"fmt"
	"strings"
)

// SystemPrompt is the assistant persona shared by every provider
const SystemPrompt = `You are KaifV1, a friendly and helpful assistant.
Answer clearly and concisely. When a question is ambiguous, ask a short follow-up question.
Reply in plain text without markdown headings.`

// BuildPrompt renders the persona, prior turns and the new message as one
// completion prompt for providers without a chat message API
func BuildPrompt(req Request) string {
	var b strings.Builder
	b.WriteString(SystemPrompt)
	b.WriteString("\n\n")

	for _, turn := range req.History {
		fmt.Fprintf(&b, "%s: %s\n", speaker(turn.IsUser), turn.Content)
	}

	fmt.Fprintf(&b, "User: %s\nAssistant:", req.Message)
	return b.String()
}

func speaker(isUser bool) string {
	if isUser {
		return "User"
	}
	return "Assistant"
}

// CleanReply trims whitespace and drops a leading <think> block emitted by
// reasoning models
func CleanReply(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "<think>") {
		if end := strings.Index(content, "</think>"); end != -1 {
			content = content[end+len("</think>"):]
		}
	}
	return strings.TrimSpace(content)
}
