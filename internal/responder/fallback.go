package responder

import (
	"fmt"
	"strings"
)

const (
	greetingReply = "Hello! I'm delighted to meet you. I'm KaifV1, and I'm here to help with whatever you need. What would you like to explore together?"
	helpReply     = "I can answer questions, brainstorm ideas, and much more. What's on your mind?"
	thanksReply   = "You're very welcome! I'm glad I could help."
	farewellReply = "Goodbye! It was wonderful chatting with you."
)

// Fallback maps input to a canned reply by keyword. It never fails.
func Fallback(input string) string {
	message := strings.ToLower(input)
	switch {
	case strings.Contains(message, "hello"), strings.Contains(message, "hi"):
		return greetingReply
	case strings.Contains(message, "help"):
		return helpReply
	case strings.Contains(message, "thank"):
		return thanksReply
	case strings.Contains(message, "bye"):
		return farewellReply
	default:
		return fmt.Sprintf("Thank you for sharing that. Could you tell me more about \"%s\"? I'm here to help.", input)
	}
}
