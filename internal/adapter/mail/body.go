package mail

import (
	"encoding/base64"
	"html"
	"regexp"
	"strings"
)

var (
	scriptStyleRe = regexp.MustCompile(`(?is)<(?:script|style)\b.*?>.*?</(?:script|style)>`)
	lineBreakRe   = regexp.MustCompile(`(?i)<br\s*/?>|</p\s*>`)
	tagRe         = regexp.MustCompile(`(?s)<.*?>`)
	trailingWSRe  = regexp.MustCompile(`[ \t]+\n`)
	blankRunsRe   = regexp.MustCompile(`\n{3,}`)
)

// extractBodyText recovers readable text from a message payload, best
// effort: direct body first, then a text/plain part, then stripped
// text/html, then nested multiparts, then anything that decodes at all.
func extractBodyText(payload messagePart) string {
	if payload.Body.Data != "" {
		raw := decodeBody(payload.Body.Data)
		if strings.HasPrefix(payload.MimeType, "text/html") {
			return stripHTML(raw)
		}
		return strings.TrimSpace(raw)
	}

	for _, p := range payload.Parts {
		if p.MimeType == "text/plain" && p.Body.Data != "" {
			return strings.TrimSpace(decodeBody(p.Body.Data))
		}
	}
	for _, p := range payload.Parts {
		if p.MimeType == "text/html" && p.Body.Data != "" {
			return stripHTML(decodeBody(p.Body.Data))
		}
	}
	for _, p := range payload.Parts {
		if len(p.Parts) > 0 {
			if nested := extractBodyText(p); nested != "" {
				return nested
			}
		}
	}
	for _, p := range payload.Parts {
		if p.Body.Data != "" {
			return strings.TrimSpace(decodeBody(p.Body.Data))
		}
	}
	return ""
}

func decodeBody(data string) string {
	b, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		return ""
	}
	return string(b)
}

// stripHTML reduces an HTML body to plain text: scripts and styles removed,
// line breaks preserved, entities unescaped, whitespace tidied.
func stripHTML(s string) string {
	if s == "" {
		return ""
	}
	s = scriptStyleRe.ReplaceAllString(s, "")
	s = lineBreakRe.ReplaceAllString(s, "\n")
	s = tagRe.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	s = trailingWSRe.ReplaceAllString(s, "\n")
	s = blankRunsRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
