package mathinfer

import (
	"encoding/json"
	"strings"
)

// StripEcho drops a leading copy of the prompt from model output.
func StripEcho(output, prompt string) string {
	if prompt != "" && strings.HasPrefix(output, prompt) {
		if tail := strings.TrimSpace(output[len(prompt):]); tail != "" {
			return tail
		}
	}
	return strings.TrimSpace(output)
}

// ExtractJSON parses the span from the first '{' to the last '}' as a JSON
// object. Nested prose braces are not handled; the span either parses or the
// output is treated as having no JSON.
func ExtractJSON(text string) (map[string]any, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(text[start:end+1]), &obj); err != nil {
		return nil, false
	}
	return obj, true
}

func stringField(obj map[string]any, key string) *string {
	if s, ok := obj[key].(string); ok {
		return &s
	}
	return nil
}
