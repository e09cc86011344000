package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultPostmarkEndpoint = "https://api.postmarkapp.com/email"

// ErrMissingServerToken is returned when the Postmark credential is absent.
var ErrMissingServerToken = errors.New("postmark: server token is not configured")

// PostmarkSettings configures the Postmark transactional API transport.
type PostmarkSettings struct {
	ServerToken   string
	From          string
	MessageStream string
	Endpoint      string
	Timeout       time.Duration
}

// PostmarkOption customises the Postmark mailer.
type PostmarkOption func(*postmarkMailer)

// WithHTTPClient replaces the HTTP client used to call the API.
func WithHTTPClient(c *http.Client) PostmarkOption {
	return func(m *postmarkMailer) {
		if c != nil {
			m.httpClient = c
		}
	}
}

// APIError captures a non-2xx answer from Postmark.
type APIError struct {
	StatusCode int
	ErrorCode  int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("postmark: status %d", e.StatusCode)
	}
	return fmt.Sprintf("postmark: status %d (code %d): %s", e.StatusCode, e.ErrorCode, e.Message)
}

type postmarkMailer struct {
	cfg        PostmarkSettings
	httpClient *http.Client
}

type postmarkEmail struct {
	From          string `json:"From"`
	To            string `json:"To"`
	Subject       string `json:"Subject"`
	HtmlBody      string `json:"HtmlBody,omitempty"`
	TextBody      string `json:"TextBody,omitempty"`
	Tag           string `json:"Tag,omitempty"`
	MessageStream string `json:"MessageStream,omitempty"`
}

type postmarkResponse struct {
	To          string    `json:"To"`
	SubmittedAt time.Time `json:"SubmittedAt"`
	MessageID   string    `json:"MessageID"`
	ErrorCode   int       `json:"ErrorCode"`
	Message     string    `json:"Message"`
}

// NewPostmarkMailer returns a Mailer backed by the Postmark email API. The
// server token is checked here so a misconfigured deployment fails at start-up.
func NewPostmarkMailer(cfg PostmarkSettings, opts ...PostmarkOption) (Mailer, error) {
	cfg.ServerToken = strings.TrimSpace(cfg.ServerToken)
	if cfg.ServerToken == "" {
		return nil, ErrMissingServerToken
	}
	if strings.TrimSpace(cfg.Endpoint) == "" {
		cfg.Endpoint = defaultPostmarkEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	m := &postmarkMailer{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *postmarkMailer) Send(ctx context.Context, msg Message) (Receipt, error) {
	if m.cfg.ServerToken == "" {
		return Receipt{}, ErrMissingServerToken
	}

	recipients := uniqueAddresses(msg.To)
	if len(recipients) == 0 {
		return Receipt{}, errors.New("postmark: at least one recipient is required")
	}

	from := strings.TrimSpace(msg.From)
	if from == "" {
		from = m.cfg.From
	}
	if from == "" {
		return Receipt{}, errors.New("postmark: sender address is required")
	}

	body, err := json.Marshal(postmarkEmail{
		From:          from,
		To:            strings.Join(recipients, ","),
		Subject:       escapeHeader(msg.Subject),
		HtmlBody:      msg.HTMLBody,
		TextBody:      msg.Body,
		Tag:           msg.Tag,
		MessageStream: m.cfg.MessageStream,
	})
	if err != nil {
		return Receipt{}, fmt.Errorf("postmark: marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return Receipt{}, fmt.Errorf("postmark: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", m.cfg.ServerToken)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return Receipt{}, fmt.Errorf("postmark: send email: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return Receipt{}, fmt.Errorf("postmark: read response: %w", err)
	}

	var decoded postmarkResponse
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &decoded)
	}

	if resp.StatusCode >= 300 || decoded.ErrorCode != 0 {
		return Receipt{}, &APIError{
			StatusCode: resp.StatusCode,
			ErrorCode:  decoded.ErrorCode,
			Message:    decoded.Message,
		}
	}

	submitted := decoded.SubmittedAt
	if submitted.IsZero() {
		submitted = time.Now().UTC()
	}

	return Receipt{Provider: "postmark", MessageID: decoded.MessageID, SubmittedAt: submitted}, nil
}
