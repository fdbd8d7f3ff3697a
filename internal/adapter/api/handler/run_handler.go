package handler

import (
	"log/slog"
	"net/http"

	"github.com/user/events-agent/internal/usecase"
)

// RunHandler handles the administrative import trigger.
type RunHandler struct {
	useCase *usecase.ImportRunUseCase
	logger  *slog.Logger
}

// NewRunHandler creates a new RunHandler.
func NewRunHandler(uc *usecase.ImportRunUseCase, logger *slog.Logger) *RunHandler {
	return &RunHandler{useCase: uc, logger: logger}
}

// Run executes one import and always answers with the structured run
// report; collaborator degradation shows up inside the report, never as an
// opaque 500.
// POST /run
func (h *RunHandler) Run(w http.ResponseWriter, r *http.Request) {
	report := h.useCase.Run(r.Context())
	respondWithJSON(w, http.StatusOK, report, h.logger)
}
