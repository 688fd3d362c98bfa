package responder

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Rrens/kaif-chat/internal/domain"
	"github.com/tidwall/gjson"
)

// replyFields are probed in order on object payloads
var replyFields = []string{"message", "response", "text", "content", "reply", "output"}

// ExtractReply turns a responder payload into reply text. Non-JSON bodies
// are used verbatim. JSON strings are unquoted, objects are probed for a
// known reply field, and anything else is pretty-printed. Scalars other than
// strings yield an empty reply.
func ExtractReply(contentType string, body []byte) (string, error) {
	if !strings.Contains(contentType, "application/json") {
		return string(body), nil
	}

	if !gjson.ValidBytes(body) {
		return "", fmt.Errorf("%w: malformed JSON reply", domain.ErrResponderUnavailable)
	}

	payload := gjson.ParseBytes(body)
	switch {
	case payload.Type == gjson.String:
		return payload.Str, nil
	case payload.IsObject():
		for _, field := range replyFields {
			v := payload.Get(field)
			if !truthy(v) {
				continue
			}
			if v.Type == gjson.String {
				return v.Str, nil
			}
			return v.Raw, nil
		}
		return indent(body)
	case payload.IsArray():
		return indent(body)
	default:
		return "", nil
	}
}

func truthy(v gjson.Result) bool {
	switch v.Type {
	case gjson.String:
		return v.Str != ""
	case gjson.Number:
		return v.Num != 0
	case gjson.True, gjson.JSON:
		return true
	default:
		return false
	}
}

// indent pretty-prints with two spaces, keeping the source key order
func indent(body []byte) (string, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, bytes.TrimSpace(body), "", "  "); err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrResponderUnavailable, err)
	}
	return buf.String(), nil
}
