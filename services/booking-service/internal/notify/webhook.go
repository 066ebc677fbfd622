// Package notify delivers plain-text booking notices to a Discord-style
// webhook.
package notify

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

	"golang.org/x/time/rate"
)

// Notifier sends one message. Implementations must be safe for concurrent use.
type Notifier interface {
	Send(ctx context.Context, text string) error
	Enabled() bool
}

var ErrEmptyMessage = errors.New("notify: empty message")

type Webhook struct {
	url     string
	http    *http.Client
	limiter *rate.Limiter
}

// NewWebhook posts {"content": text} to url. perSecond paces outgoing
// requests; <= 0 disables pacing.
func NewWebhook(url string, perSecond float64) *Webhook {
	w := &Webhook{
		url: strings.TrimSpace(url),
		http: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
	if perSecond > 0 {
		w.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
	return w
}

func (w *Webhook) Enabled() bool { return w.url != "" }

func (w *Webhook) Send(ctx context.Context, text string) error {
	if w.url == "" {
		return errors.New("notify: webhook url not configured")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	raw, err := json.Marshal(map[string]string{"content": text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notify: webhook returned %d", resp.StatusCode)
	}
	return nil
}

type Noop struct{}

func (Noop) Enabled() bool                      { return false }
func (Noop) Send(context.Context, string) error { return nil }
