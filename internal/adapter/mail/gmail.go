package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/user/events-agent/internal/domain"
)

const (
	defaultAPIBaseURL = "https://gmail.googleapis.com/gmail/v1"
	defaultTokenURL   = "https://oauth2.googleapis.com/token"
	requestTimeout    = 15 * time.Second

	// refresh slightly before the token actually expires
	tokenExpirySlack = 30 * time.Second
)

// Gmail is the domain.MailSource backed by the Gmail REST API using a
// long-lived refresh token. Missing credentials yield the disabled variant,
// which returns an empty list. No failure crosses this boundary as an error.
type Gmail struct {
	clientID     string
	clientSecret string
	refreshToken string
	query        string

	apiBaseURL string
	tokenURL   string
	client     *http.Client
	logger     *slog.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// GmailOptions configures the source adapter.
type GmailOptions struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	Query        string
	APIBaseURL   string // override for tests
	TokenURL     string // override for tests
}

// NewGmail creates the source adapter.
func NewGmail(opts GmailOptions, logger *slog.Logger) *Gmail {
	g := &Gmail{
		clientID:     opts.ClientID,
		clientSecret: opts.ClientSecret,
		refreshToken: opts.RefreshToken,
		query:        opts.Query,
		apiBaseURL:   strings.TrimRight(opts.APIBaseURL, "/"),
		tokenURL:     opts.TokenURL,
		client:       &http.Client{Timeout: requestTimeout},
		logger:       logger.With("component", "gmail_source"),
	}
	if g.apiBaseURL == "" {
		g.apiBaseURL = defaultAPIBaseURL
	}
	if g.tokenURL == "" {
		g.tokenURL = defaultTokenURL
	}
	if !g.configured() {
		g.logger.Info("mail source not configured, runs will fetch nothing")
	}
	return g
}

func (g *Gmail) configured() bool {
	return g.clientID != "" && g.clientSecret != "" && g.refreshToken != ""
}

// ListCandidates returns up to limit messages matching the configured query.
// Any failure yields an empty slice; the next scheduled run catches up.
func (g *Gmail) ListCandidates(ctx context.Context, limit int) []domain.RawMessage {
	if !g.configured() {
		return nil
	}

	token, err := g.token(ctx)
	if err != nil {
		g.logger.Error("token refresh failed", "error", err)
		return nil
	}

	ids, err := g.listMessageIDs(ctx, token, limit)
	if err != nil {
		g.logger.Error("message list failed", "error", err)
		return nil
	}

	out := make([]domain.RawMessage, 0, len(ids))
	for _, id := range ids {
		msg, err := g.getMessage(ctx, token, id)
		if err != nil {
			// One unreadable message should not hide the rest.
			g.logger.Warn("message fetch failed", "message_id", id, "error", err)
			continue
		}
		out = append(out, msg)
	}
	return out
}

// token returns a cached access token, refreshing it through the OAuth
// token endpoint when missing or near expiry.
func (g *Gmail) token(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.accessToken != "" && time.Now().Add(tokenExpirySlack).Before(g.tokenExpiry) {
		return g.accessToken, nil
	}

	form := url.Values{
		"client_id":     {g.clientID},
		"client_secret": {g.clientSecret},
		"refresh_token": {g.refreshToken},
		"grant_type":    {"refresh_token"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("token endpoint returned status %d: %s", resp.StatusCode, snippet)
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", err
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("token endpoint returned no access token")
	}

	g.accessToken = tok.AccessToken
	g.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return g.accessToken, nil
}

func (g *Gmail) listMessageIDs(ctx context.Context, token string, limit int) ([]string, error) {
	q := url.Values{}
	if g.query != "" {
		q.Set("q", g.query)
	}
	if limit > 0 {
		q.Set("maxResults", strconv.Itoa(limit))
	}

	var list struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	if err := g.getJSON(ctx, token, "/users/me/messages?"+q.Encode(), &list); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(list.Messages))
	for _, m := range list.Messages {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

type messagePart struct {
	MimeType string `json:"mimeType"`
	Headers  []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"headers"`
	Body struct {
		Data string `json:"data"`
	} `json:"body"`
	Parts []messagePart `json:"parts"`
}

func (g *Gmail) getMessage(ctx context.Context, token, id string) (domain.RawMessage, error) {
	var msg struct {
		ID      string      `json:"id"`
		Snippet string      `json:"snippet"`
		Payload messagePart `json:"payload"`
	}
	if err := g.getJSON(ctx, token, "/users/me/messages/"+url.PathEscape(id)+"?format=full", &msg); err != nil {
		return domain.RawMessage{}, err
	}

	subject := "(no subject)"
	for _, h := range msg.Payload.Headers {
		if strings.EqualFold(h.Name, "Subject") && h.Value != "" {
			subject = h.Value
			break
		}
	}

	return domain.RawMessage{
		ID:      msg.ID,
		Subject: subject,
		Snippet: strings.TrimSpace(msg.Snippet),
		Body:    extractBodyText(msg.Payload),
	}, nil
}

func (g *Gmail) getJSON(ctx context.Context, token, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.apiBaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("gmail API returned status %d: %s", resp.StatusCode, snippet)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
