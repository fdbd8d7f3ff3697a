package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/user/events-agent/internal/adapter/metrics"
	"github.com/user/events-agent/internal/domain"
)

const (
	defaultMaxResults  = 10
	defaultMaxAttempts = 3
	defaultBackoffBase = 500 * time.Millisecond
	defaultMaxTextLen  = 4000
)

// ImportRunOptions tunes one orchestrator instance.
type ImportRunOptions struct {
	MaxResults  int           // cap passed to the mail source
	MaxAttempts int           // extraction attempts per message
	BackoffBase time.Duration // first retry wait, doubled per attempt
	MaxTextLen  int           // free-text truncation bound
}

// ImportRunUseCase drives one pipeline run: fetch, extract, normalize,
// idempotent batch write. Item-level failures never abort the run; a
// batch-level store failure is reported through RunReport.SkipReason.
type ImportRunUseCase struct {
	source    domain.MailSource
	extractor domain.Extractor
	repo      domain.EventRepository
	seen      domain.SeenCache
	logger    *slog.Logger
	metrics   *metrics.PipelineMetrics
	opts      ImportRunOptions
}

// NewImportRunUseCase creates the pipeline orchestrator. The seen cache and
// metrics are optional; pass nil to disable them.
func NewImportRunUseCase(
	source domain.MailSource,
	extractor domain.Extractor,
	repo domain.EventRepository,
	seen domain.SeenCache,
	logger *slog.Logger,
	m *metrics.PipelineMetrics,
	opts ImportRunOptions,
) *ImportRunUseCase {
	if opts.MaxResults <= 0 {
		opts.MaxResults = defaultMaxResults
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = defaultBackoffBase
	}
	if opts.MaxTextLen <= 0 {
		opts.MaxTextLen = defaultMaxTextLen
	}
	return &ImportRunUseCase{
		source:    source,
		extractor: extractor,
		repo:      repo,
		seen:      seen,
		logger:    logger,
		metrics:   m,
		opts:      opts,
	}
}

// Run executes one import. It always returns a complete report; errors from
// collaborators are folded into counters and SkipReason rather than raised.
func (uc *ImportRunUseCase) Run(ctx context.Context) domain.RunReport {
	runID := uuid.NewString()
	log := uc.logger.With("run_id", runID)
	start := time.Now()

	messages := uc.source.ListCandidates(ctx, uc.opts.MaxResults)
	log.Info("fetched candidate messages", "count", len(messages))
	if uc.metrics != nil {
		uc.metrics.MessagesFetched.Add(float64(len(messages)))
	}

	report := domain.RunReport{
		RunID:        runID,
		TotalFetched: len(messages),
		Details:      []domain.Event{},
	}

	batch := make([]domain.Event, 0, len(messages))
	for _, msg := range messages {
		extraction := uc.maybeExtract(ctx, log, msg)

		event, err := Normalize(msg, extraction, uc.opts.MaxTextLen)
		if err != nil {
			log.Warn("dropping message that failed normalization", "message_id", msg.ID, "error", err)
			if uc.metrics != nil {
				uc.metrics.ItemFailures.Inc()
			}
			continue
		}
		batch = append(batch, event)
	}
	report.Extracted = len(batch)
	report.Details = batch

	status := "ok"
	if len(batch) > 0 {
		inserted, err := uc.repo.InsertBatch(ctx, batch)
		if err != nil {
			report.SkipReason = err.Error()
			status = "store_error"
			log.Error("batch write failed", "error", err, "batch_size", len(batch))
		} else {
			report.Inserted = inserted
			uc.markSeen(ctx, batch)
		}
	}

	if uc.metrics != nil {
		uc.metrics.EventsParsed.Add(float64(report.Extracted))
		uc.metrics.EventsInserted.Add(float64(report.Inserted))
		uc.metrics.RunsTotal.WithLabelValues(status).Inc()
		uc.metrics.RunDuration.Observe(time.Since(start).Seconds())
	}

	log.Info("import run finished",
		"total_fetched", report.TotalFetched,
		"parsed", report.Extracted,
		"inserted", report.Inserted,
		"skip_reason", report.SkipReason,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return report
}

// maybeExtract runs the extractor with the bounded retry policy. A nil
// result means pass-through: extraction is an enrichment, never a gate.
func (uc *ImportRunUseCase) maybeExtract(ctx context.Context, log *slog.Logger, msg domain.RawMessage) *domain.Extraction {
	if uc.extractor == nil || !uc.extractor.Enabled() {
		return nil
	}
	if uc.seen != nil && uc.seen.Seen(ctx, msg.ID) {
		// Already persisted on a previous run; the writer would discard the
		// row anyway, so skip the model call.
		log.Debug("skipping extraction for previously imported message", "message_id", msg.ID)
		return nil
	}

	text := msg.Body
	if text == "" {
		text = msg.Snippet
	}

	backoff := uc.opts.BackoffBase
	for attempt := 1; ; attempt++ {
		extraction, err := uc.extractor.Extract(ctx, msg.Subject, text)
		if err == nil {
			return extraction
		}

		var retryable *domain.RetryableError
		if !errors.As(err, &retryable) {
			log.Warn("extraction failed, using pass-through", "message_id", msg.ID, "error", err)
			return nil
		}
		if attempt >= uc.opts.MaxAttempts {
			log.Warn("extraction retries exhausted, using pass-through", "message_id", msg.ID, "attempts", attempt)
			return nil
		}

		wait := backoff
		if retryable.Wait > 0 {
			wait = retryable.Wait
		}
		log.Warn("extractor asked for retry", "message_id", msg.ID, "attempt", attempt, "wait", wait)
		if uc.metrics != nil {
			uc.metrics.ExtractionRetries.Inc()
		}

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil
		}
		backoff *= 2
	}
}

func (uc *ImportRunUseCase) markSeen(ctx context.Context, batch []domain.Event) {
	if uc.seen == nil {
		return
	}
	ids := make([]string, 0, len(batch))
	for _, e := range batch {
		ids = append(ids, e.SourceMessageID)
	}
	uc.seen.MarkSeen(ctx, ids...)
}
