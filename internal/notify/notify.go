// Package notify delivers transactional notifications to account owners.
//
// Delivery is best-effort from the gateway's point of view: callers log
// failures and move on, they never let a lost email affect the request
// path.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Sender delivers a single notification.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// HTTPSender posts messages to a transactional-email HTTP API.
type HTTPSender struct {
	endpoint string
	apiKey   string
	from     string
	client   *http.Client
}

// NewHTTPSender creates a sender for the given email API endpoint.
func NewHTTPSender(endpoint, apiKey, from string) *HTTPSender {
	return &HTTPSender{
		endpoint: endpoint,
		apiKey:   apiKey,
		from:     from,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

type emailPayload struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
}

func (s *HTTPSender) Send(ctx context.Context, to, subject, body string) error {
	payload, err := json.Marshal(emailPayload{From: s.from, To: to, Subject: subject, Text: body})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify: email API returned status %d", resp.StatusCode)
	}
	return nil
}

// LogSender writes notifications to the log instead of sending them.
// Used in development mode when no email API is configured.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a log-only sender.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, to, subject, body string) error {
	s.logger.Info("notification (log-only sender)", "to", to, "subject", subject, "body", body)
	return nil
}

// Compile-time assertions.
var (
	_ Sender = (*HTTPSender)(nil)
	_ Sender = (*LogSender)(nil)
)
