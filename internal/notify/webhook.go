package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Webhook posts the payload as JSON to the message's callback URL.
type Webhook struct {
	client *resty.Client
}

// NewWebhook builds a client with the given timeout and no retries.
func NewWebhook(timeout time.Duration) *Webhook {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json")
	return &Webhook{client: client}
}

// Client exposes the underlying client so callers can add middleware.
func (w *Webhook) Client() *resty.Client { return w.client }

func (w *Webhook) Notify(ctx context.Context, m Message) error {
	if m.CallbackURL == "" {
		return nil
	}
	res, err := w.client.R().
		SetContext(ctx).
		SetBody(m.Payload()).
		Post(m.CallbackURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	if res.IsError() {
		return fmt.Errorf("%w: webhook answered %s", ErrDelivery, res.Status())
	}
	return nil
}
