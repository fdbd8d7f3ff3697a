package extract

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

var fencedBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// ErrNoJSONObject is returned when no syntactically valid object could be
// recovered from the model output.
var ErrNoJSONObject = errors.New("no JSON object in model output")

// CoerceJSON recovers a single JSON object from model output that may be
// wrapped in prose or code fences. Fallback order: strict parse, fenced
// block, first-brace-to-last-brace substring. Anything else fails.
func CoerceJSON(text string) (json.RawMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrNoJSONObject
	}

	if obj, ok := parseObject(text); ok {
		return obj, nil
	}

	if m := fencedBlockRe.FindStringSubmatch(text); m != nil {
		if obj, ok := parseObject(m[1]); ok {
			return obj, nil
		}
	}

	a, b := strings.Index(text, "{"), strings.LastIndex(text, "}")
	if a != -1 && b > a {
		if obj, ok := parseObject(text[a : b+1]); ok {
			return obj, nil
		}
	}

	return nil, ErrNoJSONObject
}

func parseObject(s string) (json.RawMessage, bool) {
	s = strings.TrimSpace(s)
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, false
	}
	return json.RawMessage(s), true
}
