package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/time/rate"

	"github.com/user/events-agent/internal/domain"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel   = "gemini-2.5-flash"
	requestTimeout = 30 * time.Second
)

const promptInstruction = "You extract calendar-event details from an email. " +
	"Return ONLY a strict JSON object with keys: subject (string, required), " +
	"notes (string), event_datetime (ISO-8601 string), location (string), " +
	"organizer (string), recurring (boolean). Omit keys you cannot determine. " +
	"No extra text."

// Gemini is the domain.Extractor backed by the Generative Language REST API.
// A zero API key yields the disabled variant: Enabled() reports false and
// the orchestrator runs in pass-through mode.
type Gemini struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	schema  *jsonschema.Schema
	logger  *slog.Logger
}

// GeminiOptions configures the extractor.
type GeminiOptions struct {
	APIKey    string
	Model     string
	BaseURL   string  // override for tests
	RateLimit float64 // requests per second toward the model API
}

// NewGemini creates the extractor. The model name and key are sanitized the
// way operators tend to mangle them (surrounding quotes, a leading "=", a
// "models/" prefix).
func NewGemini(opts GeminiOptions, logger *slog.Logger) (*Gemini, error) {
	key := cleanKey(opts.APIKey)
	if key == "" {
		logger.Info("extractor not configured, running in pass-through mode")
		return &Gemini{logger: logger}, nil
	}

	schema, err := compileExtractionSchema()
	if err != nil {
		return nil, err
	}

	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	limit := opts.RateLimit
	if limit <= 0 {
		limit = 1
	}

	return &Gemini{
		apiKey:  key,
		model:   cleanModel(opts.Model),
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: requestTimeout},
		limiter: rate.NewLimiter(rate.Limit(limit), 1),
		schema:  schema,
		logger:  logger.With("component", "gemini_extractor"),
	}, nil
}

// Enabled reports whether extraction is configured.
func (g *Gemini) Enabled() bool { return g.apiKey != "" }

// Extract asks the model for the structured fields of one message. Rate
// limiting (429) and momentary unavailability (503) surface as
// *domain.RetryableError carrying any Retry-After hint; everything else is
// fatal for this message.
func (g *Gemini) Extract(ctx context.Context, subject, body string) (*domain.Extraction, error) {
	if !g.Enabled() {
		return nil, fmt.Errorf("extractor disabled")
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	text, err := g.generate(ctx, subject, body)
	if err != nil {
		return nil, err
	}

	raw, err := CoerceJSON(text)
	if err != nil {
		return nil, fmt.Errorf("model did not return an object: %w", err)
	}
	if err := validateExtraction(g.schema, raw); err != nil {
		return nil, fmt.Errorf("model output failed schema validation: %w", err)
	}

	var out struct {
		Subject       string `json:"subject"`
		Notes         string `json:"notes"`
		EventDateTime string `json:"event_datetime"`
		Location      string `json:"location"`
		Organizer     string `json:"organizer"`
		Recurring     *bool  `json:"recurring"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}

	extraction := &domain.Extraction{
		Subject:   out.Subject,
		Notes:     out.Notes,
		Location:  out.Location,
		Organizer: out.Organizer,
		Recurring: out.Recurring,
	}
	if t, ok := parseEventTime(out.EventDateTime); ok {
		extraction.EventTime = &t
	}
	return extraction, nil
}

func (g *Gemini) generate(ctx context.Context, subject, body string) (string, error) {
	prompt := map[string]string{
		"instruction": promptInstruction,
		"subject":     subject,
		"body":        body,
	}
	promptJSON, err := json.Marshal(prompt)
	if err != nil {
		return "", err
	}

	reqBody := map[string]any{
		"contents": []map[string]any{
			{"parts": []map[string]string{{"text": string(promptJSON)}}},
		},
		"generationConfig": map[string]string{
			"response_mime_type": "application/json",
		},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, g.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", &domain.RetryableError{Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable:
		return "", &domain.RetryableError{
			Err:  fmt.Errorf("model API returned status %d", resp.StatusCode),
			Wait: retryAfter(resp),
		}
	case resp.StatusCode != http.StatusOK:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("model API returned status %d: %s", resp.StatusCode, snippet)
	}

	var result struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode model response: %w", err)
	}
	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("model response has no candidates")
	}
	return result.Candidates[0].Content.Parts[0].Text, nil
}

func retryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}

var eventTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

func parseEventTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range eventTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func cleanKey(raw string) string {
	k := strings.Trim(strings.TrimSpace(raw), `"'`)
	for strings.HasPrefix(k, "=") {
		k = strings.TrimPrefix(k, "=")
	}
	return k
}

func cleanModel(raw string) string {
	m := strings.Trim(strings.TrimSpace(raw), `"'`)
	m = strings.TrimPrefix(m, "models/")
	if m == "" {
		return defaultModel
	}
	return m
}
