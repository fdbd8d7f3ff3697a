package usecase

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/user/events-agent/internal/domain"
)

func TestNormalize(t *testing.T) {
	t.Run("Pass-Through", func(t *testing.T) {
		msg := domain.RawMessage{ID: "m1", Subject: "Standup", Snippet: "9:30 daily"}

		event, err := Normalize(msg, nil, 4000)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if event.SourceMessageID != "m1" {
			t.Errorf("expected source id m1, got %q", event.SourceMessageID)
		}
		if event.Subject != "Standup" {
			t.Errorf("expected subject to pass through, got %q", event.Subject)
		}
		if event.Notes == nil || *event.Notes != "9:30 daily" {
			t.Errorf("expected notes to equal the snippet, got %v", event.Notes)
		}
		if event.Sender != nil || event.Location != nil || event.EventDateTime != nil {
			t.Error("expected structured fields to stay nil without an extraction")
		}
	})

	t.Run("Extraction Wins", func(t *testing.T) {
		eventTime := time.Date(2026, 9, 1, 9, 30, 0, 0, time.UTC)
		msg := domain.RawMessage{ID: "m2", Subject: "FW: meeting", Snippet: "see below"}
		extraction := &domain.Extraction{
			Subject:   "Quarterly planning",
			Notes:     "Room 4, bring the roadmap",
			Location:  "Room 4",
			Organizer: "pm@example.com",
			EventTime: &eventTime,
		}

		event, err := Normalize(msg, extraction, 4000)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if event.Subject != "Quarterly planning" {
			t.Errorf("expected extracted subject, got %q", event.Subject)
		}
		if event.Notes == nil || *event.Notes != "Room 4, bring the roadmap" {
			t.Errorf("expected extracted notes, got %v", event.Notes)
		}
		if event.Location == nil || *event.Location != "Room 4" {
			t.Errorf("expected location, got %v", event.Location)
		}
		if event.Sender == nil || *event.Sender != "pm@example.com" {
			t.Errorf("expected organizer as sender, got %v", event.Sender)
		}
		if event.EventDateTime == nil || !event.EventDateTime.Equal(eventTime) {
			t.Errorf("expected event time %v, got %v", eventTime, event.EventDateTime)
		}
	})

	t.Run("Empty Extraction Fields Fall Back", func(t *testing.T) {
		msg := domain.RawMessage{ID: "m3", Subject: "Lunch", Snippet: "noon"}
		extraction := &domain.Extraction{Subject: "  ", Notes: ""}

		event, err := Normalize(msg, extraction, 4000)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if event.Subject != "Lunch" {
			t.Errorf("expected raw subject, got %q", event.Subject)
		}
		if event.Notes == nil || *event.Notes != "noon" {
			t.Errorf("expected raw snippet as notes, got %v", event.Notes)
		}
	})

	t.Run("Subject Placeholder", func(t *testing.T) {
		event, err := Normalize(domain.RawMessage{ID: "m4"}, nil, 4000)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if event.Subject != SubjectPlaceholder {
			t.Errorf("expected placeholder subject, got %q", event.Subject)
		}
		if event.Notes != nil {
			t.Errorf("expected nil notes for an empty snippet, got %v", event.Notes)
		}
	})

	t.Run("Missing Source ID", func(t *testing.T) {
		_, err := Normalize(domain.RawMessage{Subject: "orphan"}, nil, 4000)
		if err != domain.ErrMissingSourceID {
			t.Fatalf("expected ErrMissingSourceID, got %v", err)
		}
	})

	t.Run("Truncation", func(t *testing.T) {
		long := strings.Repeat("x", 10000)
		msg := domain.RawMessage{ID: "m5", Subject: long, Snippet: long}

		event, err := Normalize(msg, nil, 4000)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(event.Subject) != 4000 {
			t.Errorf("expected subject bounded to 4000, got %d", len(event.Subject))
		}
		if event.Notes == nil || len(*event.Notes) != 4000 {
			t.Error("expected notes bounded to 4000")
		}
	})

	t.Run("Raw Payload", func(t *testing.T) {
		recurring := true
		msg := domain.RawMessage{ID: "m6", Subject: "Standup", Snippet: "9:30 daily"}
		extraction := &domain.Extraction{Subject: "Daily standup", Recurring: &recurring}

		event, err := Normalize(msg, extraction, 4000)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		var payload map[string]any
		if err := json.Unmarshal(event.RawPayload, &payload); err != nil {
			t.Fatalf("raw payload is not valid JSON: %v", err)
		}
		if payload["subject"] != "Daily standup" {
			t.Errorf("expected payload subject, got %v", payload["subject"])
		}
		if payload["source_message_id"] != "m6" {
			t.Errorf("expected payload source id, got %v", payload["source_message_id"])
		}
		if payload["source_snippet"] != "9:30 daily" {
			t.Errorf("expected payload snippet, got %v", payload["source_snippet"])
		}
		if payload["recurring"] != true {
			t.Errorf("expected payload recurring flag, got %v", payload["recurring"])
		}
	})

	t.Run("Deterministic", func(t *testing.T) {
		msg := domain.RawMessage{ID: "m7", Subject: "Standup", Snippet: "9:30 daily"}
		a, err := Normalize(msg, nil, 4000)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		b, err := Normalize(msg, nil, 4000)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if a.Subject != b.Subject || string(a.RawPayload) != string(b.RawPayload) {
			t.Error("expected identical events for identical inputs")
		}
	})
}
