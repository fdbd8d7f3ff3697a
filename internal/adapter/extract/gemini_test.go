package extract

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/user/events-agent/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func modelResponse(text string) string {
	body := map[string]any{
		"candidates": []map[string]any{
			{"content": map[string]any{"parts": []map[string]string{{"text": text}}}},
		},
	}
	b, _ := json.Marshal(body)
	return string(b)
}

func newTestGemini(t *testing.T, handler http.HandlerFunc) *Gemini {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	g, err := NewGemini(GeminiOptions{
		APIKey:    "test-key",
		Model:     "gemini-2.5-flash",
		BaseURL:   server.URL,
		RateLimit: 1000,
	}, discardLogger())
	if err != nil {
		t.Fatalf("failed to build extractor: %v", err)
	}
	return g
}

func TestGemini_Extract(t *testing.T) {
	t.Run("Successful Extraction", func(t *testing.T) {
		g := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/models/gemini-2.5-flash:generateContent" {
				t.Errorf("unexpected path %q", r.URL.Path)
			}
			io.WriteString(w, modelResponse(`{"subject":"Quarterly planning","notes":"Room 4","event_datetime":"2026-09-01T09:30:00","location":"Room 4","organizer":"pm@example.com"}`))
		})

		extraction, err := g.Extract(context.Background(), "FW: planning", "see below")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if extraction.Subject != "Quarterly planning" || extraction.Notes != "Room 4" {
			t.Errorf("unexpected extraction: %+v", extraction)
		}
		if extraction.EventTime == nil {
			t.Fatal("expected event time to be parsed")
		}
		want := time.Date(2026, 9, 1, 9, 30, 0, 0, time.UTC)
		if !extraction.EventTime.Equal(want) {
			t.Errorf("got event time %v, want %v", extraction.EventTime, want)
		}
	})

	t.Run("Fenced Output Is Recovered", func(t *testing.T) {
		g := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, modelResponse("```json\n{\"subject\": \"Standup\"}\n```"))
		})

		extraction, err := g.Extract(context.Background(), "Standup", "9:30")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if extraction.Subject != "Standup" {
			t.Errorf("unexpected subject %q", extraction.Subject)
		}
	})

	t.Run("Prose Output Is A Failure", func(t *testing.T) {
		g := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, modelResponse("The meeting is a standup at 9:30."))
		})

		_, err := g.Extract(context.Background(), "Standup", "9:30")
		if err == nil {
			t.Fatal("expected an error for prose output")
		}
		var retryable *domain.RetryableError
		if errors.As(err, &retryable) {
			t.Error("prose output must not be retryable")
		}
	})

	t.Run("Schema Violation Is A Failure", func(t *testing.T) {
		g := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
			// subject must be a non-empty string
			io.WriteString(w, modelResponse(`{"subject": 42}`))
		})

		_, err := g.Extract(context.Background(), "Standup", "9:30")
		if err == nil {
			t.Fatal("expected a schema validation error")
		}
	})

	t.Run("Rate Limit Is Retryable With Wait Hint", func(t *testing.T) {
		g := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
		})

		_, err := g.Extract(context.Background(), "Standup", "9:30")
		var retryable *domain.RetryableError
		if !errors.As(err, &retryable) {
			t.Fatalf("expected RetryableError, got %v", err)
		}
		if retryable.Wait != 7*time.Second {
			t.Errorf("expected 7s wait hint, got %s", retryable.Wait)
		}
	})

	t.Run("Service Unavailable Is Retryable Without Hint", func(t *testing.T) {
		g := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})

		_, err := g.Extract(context.Background(), "Standup", "9:30")
		var retryable *domain.RetryableError
		if !errors.As(err, &retryable) {
			t.Fatalf("expected RetryableError, got %v", err)
		}
		if retryable.Wait != 0 {
			t.Errorf("expected no wait hint, got %s", retryable.Wait)
		}
	})

	t.Run("Bad Request Is Fatal", func(t *testing.T) {
		g := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		})

		_, err := g.Extract(context.Background(), "Standup", "9:30")
		if err == nil {
			t.Fatal("expected an error")
		}
		var retryable *domain.RetryableError
		if errors.As(err, &retryable) {
			t.Error("a 400 must not be retryable")
		}
	})

	t.Run("Disabled Without Key", func(t *testing.T) {
		g, err := NewGemini(GeminiOptions{}, discardLogger())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if g.Enabled() {
			t.Error("expected the extractor to be disabled without an API key")
		}
	})
}

func TestCleanModelAndKey(t *testing.T) {
	if got := cleanModel(`"models/gemini-2.5-flash"`); got != "gemini-2.5-flash" {
		t.Errorf("cleanModel: got %q", got)
	}
	if got := cleanModel(""); got != defaultModel {
		t.Errorf("cleanModel empty: got %q", got)
	}
	if got := cleanKey(`="secret"`); got != "secret" {
		t.Errorf("cleanKey: got %q", got)
	}
}
