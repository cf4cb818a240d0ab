// Package webhook posts rendered payloads to a Slack-compatible incoming
// webhook.
package webhook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"dolphinbot/internal/transport"
)

type Sender struct {
	url    string
	client *http.Client
}

var _ transport.Sender = (*Sender)(nil)

// New returns a sender for url. timeout bounds a single POST.
func New(url string, timeout time.Duration) (*Sender, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("webhook url is empty")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Sender{url: url, client: &http.Client{Timeout: timeout}}, nil
}

// WithClient swaps the HTTP client.
func (s *Sender) WithClient(c *http.Client) *Sender {
	if c != nil {
		s.client = c
	}
	return s
}

func (s *Sender) Name() string { return "webhook" }

func (s *Sender) Send(ctx context.Context, p transport.Payload) error {
	ct := p.ContentType
	if ct == "" {
		ct = "application/json"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(p.Body))
	if err != nil {
		return fmt.Errorf("webhook new request: %w", err)
	}
	req.Header.Set("Content-Type", ct)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &transport.StatusError{Destination: s.Name(), Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return nil
}
