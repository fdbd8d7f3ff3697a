package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/user/events-agent/internal/adapter/api/handler"
	"github.com/user/events-agent/internal/adapter/api/middleware"
	"github.com/user/events-agent/internal/usecase"
)

// NewRouter creates and configures the main HTTP router. Everything except
// the liveness probe sits behind the shared-secret middleware; no
// collaborator is invoked before the credential check passes.
func NewRouter(
	adminToken string,
	logger *slog.Logger,
	importUseCase *usecase.ImportRunUseCase,
	queryUseCase *usecase.QueryEventsUseCase,
) http.Handler {
	mux := http.NewServeMux()

	runHandler := handler.NewRunHandler(importUseCase, logger)
	eventsHandler := handler.NewEventsHandler(queryUseCase, logger)

	auth := middleware.Auth(adminToken, logger)

	mux.Handle("POST /run", auth(http.HandlerFunc(runHandler.Run)))
	mux.Handle("GET /events", auth(http.HandlerFunc(eventsHandler.List)))
	mux.Handle("GET /events/by-source/{sourceMessageID}", auth(http.HandlerFunc(eventsHandler.GetBySourceID)))
	mux.Handle("GET /events/{id}", auth(http.HandlerFunc(eventsHandler.GetByID)))

	// Liveness never depends on collaborators and needs no credential.
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	return mux
}
