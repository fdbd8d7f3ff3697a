package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/user/events-agent/internal/domain"
	"github.com/user/events-agent/internal/usecase"
)

// EventsHandler handles the read-only query surface over persisted events.
type EventsHandler struct {
	useCase *usecase.QueryEventsUseCase
	logger  *slog.Logger
}

// NewEventsHandler creates a new EventsHandler.
func NewEventsHandler(uc *usecase.QueryEventsUseCase, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{useCase: uc, logger: logger}
}

// List handles filtered, paginated listing.
// GET /events?q=&date_from=&date_to=&recurring=&limit=&offset=
func (h *EventsHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	events, err := h.useCase.List(r.Context(), filter)
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, events, h.logger)
}

// GetByID fetches a single event by surrogate key.
// GET /events/{id}
func (h *EventsHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid event id", http.StatusBadRequest)
		return
	}

	event, err := h.useCase.GetByID(r.Context(), id)
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, event, h.logger)
}

// GetBySourceID fetches a single event by its source message id.
// GET /events/by-source/{sourceMessageID}
func (h *EventsHandler) GetBySourceID(w http.ResponseWriter, r *http.Request) {
	sourceMessageID := r.PathValue("sourceMessageID")
	if sourceMessageID == "" {
		http.Error(w, "sourceMessageID is required", http.StatusBadRequest)
		return
	}

	event, err := h.useCase.GetBySourceID(r.Context(), sourceMessageID)
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, event, h.logger)
}

// respondStoreError keeps the three failure classes distinct: not found,
// store unavailable, and everything else.
func (h *EventsHandler) respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		respondWithJSON(w, http.StatusNotFound, map[string]string{"error": "event not found"}, h.logger)
	case errors.Is(err, domain.ErrStoreUnavailable):
		respondWithJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "event store unavailable"}, h.logger)
	default:
		h.logger.Error("event query failed", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func parseFilter(r *http.Request) (domain.EventFilter, error) {
	q := r.URL.Query()
	filter := domain.EventFilter{Query: q.Get("q")}

	if v := q.Get("date_from"); v != "" {
		t, err := parseTimeParam(v)
		if err != nil {
			return domain.EventFilter{}, errors.New("invalid date_from, want RFC 3339 or YYYY-MM-DD")
		}
		filter.From = &t
	}
	if v := q.Get("date_to"); v != "" {
		t, err := parseTimeParam(v)
		if err != nil {
			return domain.EventFilter{}, errors.New("invalid date_to, want RFC 3339 or YYYY-MM-DD")
		}
		filter.To = &t
	}
	if v := q.Get("recurring"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return domain.EventFilter{}, errors.New("invalid recurring, want a boolean")
		}
		filter.Recurring = &b
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return domain.EventFilter{}, errors.New("invalid limit, want a positive integer")
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return domain.EventFilter{}, errors.New("invalid offset, want a non-negative integer")
		}
		filter.Offset = n
	}
	return filter, nil
}

func parseTimeParam(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", v)
}

func respondWithJSON(w http.ResponseWriter, code int, payload any, logger *slog.Logger) {
	response, err := json.Marshal(payload)
	if err != nil {
		logger.Error("failed to marshal response", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
