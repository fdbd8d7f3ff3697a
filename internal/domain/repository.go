package domain

import "context"

// MailSource yields candidate messages for one pipeline run.
type MailSource interface {
	// ListCandidates returns up to limit messages matching the configured
	// filter. An unconfigured or failing source yields an empty slice; it
	// never surfaces an error past this boundary.
	ListCandidates(ctx context.Context, limit int) []RawMessage
}

// Extractor turns free text into a structured Extraction.
type Extractor interface {
	// Extract returns the structured fields recovered from the message text.
	// Transient failures are reported as *RetryableError; anything else is
	// fatal for this message and the caller falls back to pass-through.
	Extract(ctx context.Context, subject, body string) (*Extraction, error)

	// Enabled reports whether extraction is configured at all.
	Enabled() bool
}

// EventRepository is the persistence boundary for events.
type EventRepository interface {
	// InsertBatch persists a batch of events and returns the number of rows
	// genuinely created. Rows whose source_message_id already exists are
	// skipped by the store itself, not by a read-then-write check.
	InsertBatch(ctx context.Context, events []Event) (int, error)

	// List returns events matching the filter, most recent event time first.
	List(ctx context.Context, filter EventFilter) ([]Event, error)

	// GetByID returns the event with the given surrogate id, or ErrNotFound.
	GetByID(ctx context.Context, id int64) (*Event, error)

	// GetBySourceID returns the event imported from the given source
	// message, or ErrNotFound.
	GetBySourceID(ctx context.Context, sourceMessageID string) (*Event, error)
}

// SeenCache remembers source message ids that were already persisted so the
// pipeline can skip the extraction cost on repeat runs. It is advisory only;
// the store's uniqueness constraint remains the idempotency mechanism.
type SeenCache interface {
	// Seen reports whether the id was recorded recently. Cache errors count
	// as "not seen".
	Seen(ctx context.Context, sourceMessageID string) bool

	// MarkSeen records ids after a successful batch write. Failures are
	// logged by the implementation and otherwise ignored.
	MarkSeen(ctx context.Context, sourceMessageIDs ...string)
}
