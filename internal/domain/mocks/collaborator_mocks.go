package mocks

import (
	"context"
	"sync"

	"github.com/user/events-agent/internal/domain"
)

// MockMailSource is a mock implementation of domain.MailSource for testing.
type MockMailSource struct {
	mu       sync.Mutex
	Messages []domain.RawMessage
	Calls    int
}

func (m *MockMailSource) ListCandidates(ctx context.Context, limit int) []domain.RawMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if limit > 0 && len(m.Messages) > limit {
		return m.Messages[:limit]
	}
	return m.Messages
}

// MockExtractor is a mock implementation of domain.Extractor. Errs is a
// queue consumed one entry per call; once drained, Extraction is returned.
type MockExtractor struct {
	mu         sync.Mutex
	Extraction *domain.Extraction
	Errs       []error
	Disabled   bool
	CallCount  int
}

func (m *MockExtractor) Enabled() bool { return !m.Disabled }

func (m *MockExtractor) Extract(ctx context.Context, subject, body string) (*domain.Extraction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCount++
	if len(m.Errs) > 0 {
		err := m.Errs[0]
		m.Errs = m.Errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return m.Extraction, nil
}

// MockEventRepository is a mock implementation of domain.EventRepository.
// It enforces source_message_id uniqueness the way the real store does, so
// idempotency scenarios can be exercised without Postgres.
type MockEventRepository struct {
	mu        sync.Mutex
	Rows      []domain.Event
	InsertErr error
	ListErr   error
	nextID    int64
}

func (m *MockEventRepository) InsertBatch(ctx context.Context, events []domain.Event) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InsertErr != nil {
		return 0, m.InsertErr
	}
	inserted := 0
	for _, e := range events {
		if e.SourceMessageID == "" || m.bySourceLocked(e.SourceMessageID) != nil {
			continue
		}
		m.nextID++
		e.ID = m.nextID
		m.Rows = append(m.Rows, e)
		inserted++
	}
	return inserted, nil
}

func (m *MockEventRepository) List(ctx context.Context, filter domain.EventFilter) ([]domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	out := make([]domain.Event, len(m.Rows))
	copy(out, m.Rows)
	return out, nil
}

func (m *MockEventRepository) GetByID(ctx context.Context, id int64) (*domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.Rows {
		if m.Rows[i].ID == id {
			e := m.Rows[i]
			return &e, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockEventRepository) GetBySourceID(ctx context.Context, sourceMessageID string) (*domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e := m.bySourceLocked(sourceMessageID); e != nil {
		out := *e
		return &out, nil
	}
	return nil, domain.ErrNotFound
}

func (m *MockEventRepository) bySourceLocked(sourceMessageID string) *domain.Event {
	for i := range m.Rows {
		if m.Rows[i].SourceMessageID == sourceMessageID {
			return &m.Rows[i]
		}
	}
	return nil
}

// MockSeenCache is a mock implementation of domain.SeenCache.
type MockSeenCache struct {
	mu      sync.Mutex
	SeenIDs map[string]bool
	Marked  []string
}

func (m *MockSeenCache) Seen(ctx context.Context, sourceMessageID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.SeenIDs[sourceMessageID]
}

func (m *MockSeenCache) MarkSeen(ctx context.Context, sourceMessageIDs ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Marked = append(m.Marked, sourceMessageIDs...)
}
