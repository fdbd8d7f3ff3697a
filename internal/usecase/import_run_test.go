package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/user/events-agent/internal/domain"
	"github.com/user/events-agent/internal/domain/mocks"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastOpts() ImportRunOptions {
	return ImportRunOptions{
		MaxResults:  50,
		MaxAttempts: 3,
		BackoffBase: 1 * time.Millisecond,
		MaxTextLen:  4000,
	}
}

func TestImportRunUseCase_Run(t *testing.T) {
	logger := discardLogger()

	t.Run("Fresh Run", func(t *testing.T) {
		source := &mocks.MockMailSource{Messages: []domain.RawMessage{
			{ID: "m1", Subject: "Standup", Snippet: "9:30 daily"},
		}}
		repo := &mocks.MockEventRepository{}
		uc := NewImportRunUseCase(source, &mocks.MockExtractor{Disabled: true}, repo, nil, logger, nil, fastOpts())

		report := uc.Run(context.Background())

		if report.TotalFetched != 1 || report.Extracted != 1 || report.Inserted != 1 {
			t.Errorf("unexpected counters: %+v", report)
		}
		if len(repo.Rows) != 1 {
			t.Fatalf("expected 1 persisted row, got %d", len(repo.Rows))
		}
		if repo.Rows[0].SourceMessageID != "m1" || repo.Rows[0].Subject != "Standup" {
			t.Errorf("unexpected persisted event: %+v", repo.Rows[0])
		}
		if report.RunID == "" {
			t.Error("expected a run id")
		}
	})

	t.Run("Duplicate Run Is Idempotent", func(t *testing.T) {
		source := &mocks.MockMailSource{Messages: []domain.RawMessage{
			{ID: "m1", Subject: "Standup", Snippet: "9:30 daily"},
		}}
		repo := &mocks.MockEventRepository{}
		uc := NewImportRunUseCase(source, &mocks.MockExtractor{Disabled: true}, repo, nil, logger, nil, fastOpts())

		first := uc.Run(context.Background())
		second := uc.Run(context.Background())

		if first.Inserted != 1 {
			t.Errorf("expected first run to insert 1, got %d", first.Inserted)
		}
		if second.Inserted != 0 {
			t.Errorf("expected second run to insert 0, got %d", second.Inserted)
		}
		if len(repo.Rows) != 1 {
			t.Errorf("expected final row count 1, got %d", len(repo.Rows))
		}
	})

	t.Run("Empty Source Is Not An Error", func(t *testing.T) {
		repo := &mocks.MockEventRepository{}
		uc := NewImportRunUseCase(&mocks.MockMailSource{}, &mocks.MockExtractor{Disabled: true}, repo, nil, logger, nil, fastOpts())

		report := uc.Run(context.Background())

		if report.TotalFetched != 0 || report.Extracted != 0 || report.Inserted != 0 || report.SkipReason != "" {
			t.Errorf("unexpected report for empty source: %+v", report)
		}
	})

	t.Run("Extraction Enriches The Event", func(t *testing.T) {
		source := &mocks.MockMailSource{Messages: []domain.RawMessage{
			{ID: "m1", Subject: "FW: planning", Snippet: "see below"},
		}}
		extractor := &mocks.MockExtractor{Extraction: &domain.Extraction{Subject: "Quarterly planning", Notes: "Room 4"}}
		repo := &mocks.MockEventRepository{}
		uc := NewImportRunUseCase(source, extractor, repo, nil, logger, nil, fastOpts())

		uc.Run(context.Background())

		if len(repo.Rows) != 1 {
			t.Fatalf("expected 1 row, got %d", len(repo.Rows))
		}
		if repo.Rows[0].Subject != "Quarterly planning" {
			t.Errorf("expected extracted subject, got %q", repo.Rows[0].Subject)
		}
	})

	t.Run("Fatal Extraction Falls Back To Pass-Through", func(t *testing.T) {
		source := &mocks.MockMailSource{Messages: []domain.RawMessage{
			{ID: "m1", Subject: "Standup", Snippet: "9:30 daily"},
		}}
		extractor := &mocks.MockExtractor{Errs: []error{errors.New("model returned prose")}}
		repo := &mocks.MockEventRepository{}
		uc := NewImportRunUseCase(source, extractor, repo, nil, logger, nil, fastOpts())

		report := uc.Run(context.Background())

		if extractor.CallCount != 1 {
			t.Errorf("expected 1 extraction attempt for a fatal error, got %d", extractor.CallCount)
		}
		if report.Inserted != 1 {
			t.Errorf("expected pass-through event to be inserted, got %d", report.Inserted)
		}
		if repo.Rows[0].Subject != "Standup" || *repo.Rows[0].Notes != "9:30 daily" {
			t.Errorf("expected pass-through fields, got %+v", repo.Rows[0])
		}
	})

	t.Run("Retryable Failure Twice Then Success", func(t *testing.T) {
		source := &mocks.MockMailSource{Messages: []domain.RawMessage{
			{ID: "m1", Subject: "FW: planning", Snippet: "see below"},
		}}
		wait := 5 * time.Millisecond
		extractor := &mocks.MockExtractor{
			Errs: []error{
				&domain.RetryableError{Err: errors.New("rate limited"), Wait: wait},
				&domain.RetryableError{Err: errors.New("rate limited"), Wait: wait},
			},
			Extraction: &domain.Extraction{Subject: "Quarterly planning"},
		}
		repo := &mocks.MockEventRepository{}
		uc := NewImportRunUseCase(source, extractor, repo, nil, logger, nil, fastOpts())

		start := time.Now()
		uc.Run(context.Background())
		elapsed := time.Since(start)

		if extractor.CallCount != 3 {
			t.Errorf("expected 3 extraction attempts, got %d", extractor.CallCount)
		}
		if elapsed < 2*wait {
			t.Errorf("expected at least two backoff waits (%s), run took %s", 2*wait, elapsed)
		}
		if repo.Rows[0].Subject != "Quarterly planning" {
			t.Errorf("expected the extraction result to be used, got %q", repo.Rows[0].Subject)
		}
	})

	t.Run("Exhausted Retries Fall Back To Pass-Through", func(t *testing.T) {
		source := &mocks.MockMailSource{Messages: []domain.RawMessage{
			{ID: "m1", Subject: "Standup", Snippet: "9:30 daily"},
		}}
		retryable := &domain.RetryableError{Err: errors.New("rate limited")}
		extractor := &mocks.MockExtractor{Errs: []error{retryable, retryable, retryable}}
		repo := &mocks.MockEventRepository{}
		uc := NewImportRunUseCase(source, extractor, repo, nil, logger, nil, fastOpts())

		report := uc.Run(context.Background())

		if extractor.CallCount != 3 {
			t.Errorf("expected 3 attempts, got %d", extractor.CallCount)
		}
		if report.Inserted != 1 || repo.Rows[0].Subject != "Standup" {
			t.Errorf("expected pass-through insert, got %+v", report)
		}
	})

	t.Run("One Bad Message Does Not Abort The Batch", func(t *testing.T) {
		source := &mocks.MockMailSource{Messages: []domain.RawMessage{
			{ID: "m1", Subject: "One", Snippet: "a"},
			{ID: "", Subject: "Broken", Snippet: "no source id"},
			{ID: "m3", Subject: "Three", Snippet: "c"},
		}}
		repo := &mocks.MockEventRepository{}
		uc := NewImportRunUseCase(source, &mocks.MockExtractor{Disabled: true}, repo, nil, logger, nil, fastOpts())

		report := uc.Run(context.Background())

		if report.TotalFetched != 3 {
			t.Errorf("expected total_fetched 3, got %d", report.TotalFetched)
		}
		if report.Extracted != 2 {
			t.Errorf("expected 2 parsed items, got %d", report.Extracted)
		}
		if report.Inserted != 2 || len(repo.Rows) != 2 {
			t.Errorf("expected the surviving 2 events to be written, got %+v", report)
		}
	})

	t.Run("Store Failure Becomes Skip Reason", func(t *testing.T) {
		source := &mocks.MockMailSource{Messages: []domain.RawMessage{
			{ID: "m1", Subject: "Standup", Snippet: "9:30 daily"},
		}}
		repo := &mocks.MockEventRepository{InsertErr: errors.New("store unreachable")}
		uc := NewImportRunUseCase(source, &mocks.MockExtractor{Disabled: true}, repo, nil, logger, nil, fastOpts())

		report := uc.Run(context.Background())

		if report.SkipReason != "store unreachable" {
			t.Errorf("expected skip reason, got %q", report.SkipReason)
		}
		if report.Inserted != 0 {
			t.Errorf("expected 0 inserted on store failure, got %d", report.Inserted)
		}
		if report.TotalFetched != 1 || report.Extracted != 1 {
			t.Errorf("expected full diagnostics despite the failure, got %+v", report)
		}
	})

	t.Run("Seen Cache Skips Extraction Only", func(t *testing.T) {
		source := &mocks.MockMailSource{Messages: []domain.RawMessage{
			{ID: "m1", Subject: "Standup", Snippet: "9:30 daily"},
			{ID: "m2", Subject: "Review", Snippet: "2pm"},
		}}
		extractor := &mocks.MockExtractor{Extraction: &domain.Extraction{Subject: "Enriched"}}
		repo := &mocks.MockEventRepository{}
		seen := &mocks.MockSeenCache{SeenIDs: map[string]bool{"m1": true}}
		uc := NewImportRunUseCase(source, extractor, repo, seen, logger, nil, fastOpts())

		report := uc.Run(context.Background())

		if extractor.CallCount != 1 {
			t.Errorf("expected extraction only for the unseen message, got %d calls", extractor.CallCount)
		}
		// The seen message still flows through normalize and write; the
		// store stays the idempotency authority.
		if report.Extracted != 2 || report.Inserted != 2 {
			t.Errorf("expected both messages written, got %+v", report)
		}
		if len(seen.Marked) != 2 {
			t.Errorf("expected both ids marked seen after the write, got %v", seen.Marked)
		}
	})
}
