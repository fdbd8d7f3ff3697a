package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/user/events-agent/internal/domain"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS events (
	id                BIGSERIAL PRIMARY KEY,
	source_message_id TEXT NOT NULL,
	subject           TEXT NOT NULL,
	notes             TEXT,
	sender            TEXT,
	location          TEXT,
	event_datetime    TIMESTAMPTZ,
	raw_payload       JSONB,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_events_source_message_id
	ON events (source_message_id);
`

const eventColumns = `id, source_message_id, subject, notes, sender, location, event_datetime, raw_payload, created_at`

// EventRepository implements domain.EventRepository on PostgreSQL. A nil db
// is the disabled variant: every operation reports the store unavailable,
// and the service stays live on its other surfaces.
type EventRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewEventRepository creates a new PostgreSQL event repository. Pass a nil
// db when DATABASE_URL is not configured.
func NewEventRepository(db *sql.DB, logger *slog.Logger) *EventRepository {
	return &EventRepository{db: db, logger: logger.With("component", "postgres_repository")}
}

// EnsureSchema creates the events table and the uniqueness constraint that
// enforces idempotency. Safe to run on every process start.
func (r *EventRepository) EnsureSchema(ctx context.Context) error {
	if r.db == nil {
		return domain.ErrStoreUnavailable
	}
	_, err := r.db.ExecContext(ctx, schemaDDL)
	return err
}

// InsertBatch writes a batch of events in one transaction: stage through a
// temp table with the COPY protocol, then merge with ON CONFLICT
// (source_message_id) DO NOTHING. The store decides "already exists"
// atomically, so concurrent runs importing the same message cannot race.
// The returned count covers only rows genuinely created.
func (r *EventRepository) InsertBatch(ctx context.Context, events []domain.Event) (int, error) {
	if r.db == nil {
		return 0, domain.ErrStoreUnavailable
	}
	if len(events) == 0 {
		return 0, nil
	}

	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer txn.Rollback() // Rollback is a no-op if Commit() is called

	const tempTableName = "events_import"
	_, err = txn.ExecContext(ctx, `CREATE TEMP TABLE `+tempTableName+` (LIKE events INCLUDING DEFAULTS) ON COMMIT DROP;`)
	if err != nil {
		return 0, err
	}

	stmt, err := txn.Prepare(pq.CopyIn(tempTableName,
		"source_message_id", "subject", "notes", "sender", "location", "event_datetime", "raw_payload"))
	if err != nil {
		return 0, err
	}

	for _, event := range events {
		if event.SourceMessageID == "" {
			// Unrepresentable per the normalizer contract; refuse rather
			// than store a row outside the idempotency guarantee.
			_ = stmt.Close()
			return 0, fmt.Errorf("event %q: %w", event.Subject, domain.ErrMissingSourceID)
		}
		_, err = stmt.ExecContext(ctx,
			event.SourceMessageID,
			event.Subject,
			nullString(event.Notes),
			nullString(event.Sender),
			nullString(event.Location),
			nullTime(event.EventDateTime),
			nullJSON(event.RawPayload),
		)
		if err != nil {
			_ = stmt.Close()
			return 0, err
		}
	}
	if err := stmt.Close(); err != nil {
		return 0, err
	}

	res, err := txn.ExecContext(ctx, `
		INSERT INTO events (source_message_id, subject, notes, sender, location, event_datetime, raw_payload)
		SELECT source_message_id, subject, notes, sender, location, event_datetime, raw_payload
		FROM `+tempTableName+`
		ON CONFLICT (source_message_id) DO NOTHING;
	`)
	if err != nil {
		return 0, err
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	if err := txn.Commit(); err != nil {
		return 0, err
	}
	return int(inserted), nil
}

// List returns events matching the filter, most recent event time first,
// creation time when event time is absent, id as the stable tie-breaker.
func (r *EventRepository) List(ctx context.Context, filter domain.EventFilter) ([]domain.Event, error) {
	if r.db == nil {
		return nil, domain.ErrStoreUnavailable
	}

	var clauses []string
	var args []any

	if filter.Query != "" {
		pattern := "%" + filter.Query + "%"
		clauses = append(clauses, fmt.Sprintf("(subject ILIKE $%d OR location ILIKE $%d)", len(args)+1, len(args)+2))
		args = append(args, pattern, pattern)
	}
	if filter.From != nil {
		clauses = append(clauses, fmt.Sprintf("(event_datetime IS NOT NULL AND event_datetime >= $%d)", len(args)+1))
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		clauses = append(clauses, fmt.Sprintf("(event_datetime IS NOT NULL AND event_datetime <= $%d)", len(args)+1))
		args = append(args, *filter.To)
	}
	if filter.Recurring != nil {
		// Rows without the key match neither value.
		clauses = append(clauses, fmt.Sprintf("((raw_payload->>'recurring')::boolean = $%d)", len(args)+1))
		args = append(args, *filter.Recurring)
	}

	whereSQL := ""
	if len(clauses) > 0 {
		whereSQL = "WHERE " + strings.Join(clauses, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM events
		%s
		ORDER BY COALESCE(event_datetime, created_at) DESC NULLS LAST, id DESC
		LIMIT $%d OFFSET $%d;`,
		eventColumns, whereSQL, len(args)+1, len(args)+2)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []domain.Event{}
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// GetByID returns the event with the given surrogate id.
func (r *EventRepository) GetByID(ctx context.Context, id int64) (*domain.Event, error) {
	return r.getOne(ctx, "id = $1", id)
}

// GetBySourceID returns the event imported from the given source message.
func (r *EventRepository) GetBySourceID(ctx context.Context, sourceMessageID string) (*domain.Event, error) {
	return r.getOne(ctx, "source_message_id = $1", sourceMessageID)
}

func (r *EventRepository) getOne(ctx context.Context, where string, arg any) (*domain.Event, error) {
	if r.db == nil {
		return nil, domain.ErrStoreUnavailable
	}
	row := r.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT %s FROM events WHERE %s;`, eventColumns, where), arg)
	event, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (domain.Event, error) {
	var (
		event         domain.Event
		notes         sql.NullString
		sender        sql.NullString
		location      sql.NullString
		eventDatetime sql.NullTime
		rawPayload    []byte
	)
	err := row.Scan(
		&event.ID,
		&event.SourceMessageID,
		&event.Subject,
		&notes,
		&sender,
		&location,
		&eventDatetime,
		&rawPayload,
		&event.CreatedAt,
	)
	if err != nil {
		return domain.Event{}, err
	}
	if notes.Valid {
		event.Notes = &notes.String
	}
	if sender.Valid {
		event.Sender = &sender.String
	}
	if location.Valid {
		event.Location = &location.String
	}
	if eventDatetime.Valid {
		t := eventDatetime.Time
		event.EventDateTime = &t
	}
	event.RawPayload = rawPayload
	return event, nil
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

// nullJSON passes JSONB as text; pq would encode []byte as bytea.
func nullJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
