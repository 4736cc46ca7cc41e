package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"pomodoro"
)

// ErrQueueFull is returned when the webhook worker is too far behind.
var ErrQueueFull = errors.New("webhook queue full")

const webhookQueueSize = 16

// Webhook POSTs each notification as JSON to a URL. Notify only enqueues;
// delivery happens on the Run goroutine so the engine never waits on the
// network.
type Webhook struct {
	URL     string
	Client  *http.Client
	Timeout time.Duration
	Logger  *slog.Logger

	queue chan pomodoro.Notification
}

// NewWebhook returns a Webhook with a bounded queue.
func NewWebhook(url string, timeout time.Duration, logger *slog.Logger) *Webhook {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Webhook{
		URL:     url,
		Client:  &http.Client{},
		Timeout: timeout,
		Logger:  logger,
		queue:   make(chan pomodoro.Notification, webhookQueueSize),
	}
}

func (w *Webhook) Notify(_ context.Context, n pomodoro.Notification) error {
	select {
	case w.queue <- n:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run delivers queued notifications until ctx is canceled.
func (w *Webhook) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-w.queue:
			if err := w.post(ctx, n); err != nil {
				w.Logger.Warn("webhook delivery failed", "url", w.URL, "kind", string(n.Kind), "error", err)
			}
		}
	}
}

func (w *Webhook) post(ctx context.Context, n pomodoro.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, w.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.Client.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
