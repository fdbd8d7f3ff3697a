package usecase

import (
	"context"
	"log/slog"

	"github.com/user/events-agent/internal/domain"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// QueryEventsUseCase is the read-only surface over persisted events. It
// never mutates state and is safe for concurrent use.
type QueryEventsUseCase struct {
	repo   domain.EventRepository
	logger *slog.Logger
}

// NewQueryEventsUseCase creates a new QueryEventsUseCase.
func NewQueryEventsUseCase(repo domain.EventRepository, logger *slog.Logger) *QueryEventsUseCase {
	return &QueryEventsUseCase{repo: repo, logger: logger}
}

// List returns events matching the filter. The limit is clamped to
// [1, 200] (zero means the default page size) and negative offsets are
// treated as zero.
func (uc *QueryEventsUseCase) List(ctx context.Context, filter domain.EventFilter) ([]domain.Event, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return uc.repo.List(ctx, filter)
}

// GetByID returns the event with the given surrogate id.
func (uc *QueryEventsUseCase) GetByID(ctx context.Context, id int64) (*domain.Event, error) {
	return uc.repo.GetByID(ctx, id)
}

// GetBySourceID returns the event imported from the given source message.
func (uc *QueryEventsUseCase) GetBySourceID(ctx context.Context, sourceMessageID string) (*domain.Event, error) {
	return uc.repo.GetBySourceID(ctx, sourceMessageID)
}
