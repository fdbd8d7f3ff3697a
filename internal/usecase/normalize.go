package usecase

import (
	"encoding/json"
	"strings"

	"github.com/user/events-agent/internal/domain"
)

// SubjectPlaceholder is stored when neither the source nor the extractor
// produced a subject. Every persisted event has a non-empty subject.
const SubjectPlaceholder = "(no subject)"

// rawPayload is the forward-compatible audit blob stored alongside each
// event. It is never used for lookups.
type rawPayload struct {
	Subject         string `json:"subject"`
	Notes           string `json:"notes,omitempty"`
	SourceSnippet   string `json:"source_snippet,omitempty"`
	SourceMessageID string `json:"source_message_id"`
	Recurring       *bool  `json:"recurring,omitempty"`
}

// Normalize converts one raw message plus an optional extraction into the
// canonical Event. Extraction fields win when present; otherwise the raw
// subject and snippet pass through verbatim. Free text is truncated to
// maxTextLen runes so the store can assume bounded row size.
//
// Normalize is pure: no I/O, no clock, same inputs produce the same Event.
func Normalize(msg domain.RawMessage, extraction *domain.Extraction, maxTextLen int) (domain.Event, error) {
	if strings.TrimSpace(msg.ID) == "" {
		return domain.Event{}, domain.ErrMissingSourceID
	}

	subject := strings.TrimSpace(msg.Subject)
	notes := strings.TrimSpace(msg.Snippet)

	event := domain.Event{SourceMessageID: msg.ID}

	if extraction != nil {
		if s := strings.TrimSpace(extraction.Subject); s != "" {
			subject = s
		}
		if n := strings.TrimSpace(extraction.Notes); n != "" {
			notes = n
		}
		if l := strings.TrimSpace(extraction.Location); l != "" {
			event.Location = &l
		}
		if o := strings.TrimSpace(extraction.Organizer); o != "" {
			event.Sender = &o
		}
		if extraction.EventTime != nil {
			t := *extraction.EventTime
			event.EventDateTime = &t
		}
	}

	if subject == "" {
		subject = SubjectPlaceholder
	}
	subject = truncate(subject, maxTextLen)
	notes = truncate(notes, maxTextLen)

	event.Subject = subject
	if notes != "" {
		event.Notes = &notes
	}

	payload := rawPayload{
		Subject:         subject,
		Notes:           notes,
		SourceSnippet:   truncate(msg.Snippet, maxTextLen),
		SourceMessageID: msg.ID,
	}
	if extraction != nil {
		payload.Recurring = extraction.Recurring
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return domain.Event{}, err
	}
	event.RawPayload = raw

	return event, nil
}

// truncate bounds s to max runes. Non-positive max means no bound.
func truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
