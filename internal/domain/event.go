package domain

import (
	"encoding/json"
	"time"
)

// RawMessage is one candidate message as returned by the mail source.
// Snippet is the short preview the source provides; Body is the full
// readable text when the source could extract one.
type RawMessage struct {
	ID      string
	Subject string
	Snippet string
	Body    string
}

// Extraction is the structured result of running a message through the
// extractor. All fields except Subject are optional.
type Extraction struct {
	Subject   string     `json:"subject"`
	Notes     string     `json:"notes,omitempty"`
	Location  string     `json:"location,omitempty"`
	Organizer string     `json:"organizer,omitempty"`
	EventTime *time.Time `json:"event_datetime,omitempty"`
	Recurring *bool      `json:"recurring,omitempty"`
}

// Event is the canonical persisted record derived from one source message.
// SourceMessageID is the idempotency key: the store holds at most one row
// per distinct value. Events are immutable once constructed.
type Event struct {
	ID              int64           `json:"id"`
	SourceMessageID string          `json:"source_message_id"`
	Subject         string          `json:"subject"`
	Notes           *string         `json:"notes,omitempty"`
	Sender          *string         `json:"sender,omitempty"`
	Location        *string         `json:"location,omitempty"`
	EventDateTime   *time.Time      `json:"event_datetime,omitempty"`
	RawPayload      json.RawMessage `json:"raw_payload,omitempty"`
	CreatedAt       time.Time       `json:"created_at,omitzero"`
}

// RunReport summarizes one pipeline execution. Extracted counts the
// messages that survived normalization into the batch; Inserted counts the
// rows the store genuinely created (conflicts excluded).
type RunReport struct {
	RunID        string  `json:"run_id"`
	TotalFetched int     `json:"total_fetched"`
	Extracted    int     `json:"extracted"`
	Inserted     int     `json:"inserted"`
	SkipReason   string  `json:"skip_reason,omitempty"`
	Details      []Event `json:"details"`
}

// EventFilter describes the read-side filters for listing events.
type EventFilter struct {
	Query     string
	From      *time.Time
	To        *time.Time
	Recurring *bool
	Limit     int
	Offset    int
}
