// Package notify reports the outcome of a scraping job to whoever asked
// for it. Delivery is best-effort: failures are logged by the caller and
// never retried.
package notify

import (
	"context"
	"errors"

	"xepelin-blog-scraper/pkg/logger"
)

var ErrDelivery = errors.New("notification not delivered")

type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// NoDataLink replaces the store link when a job produced nothing.
const NoDataLink = "Error - No data available"

// Message is the outcome of one job.
type Message struct {
	CallbackURL string
	ReplyTo     string
	Status      Status
	StoreID     string
	Error       string
}

func Success(callback, replyTo, storeID string) Message {
	return Message{CallbackURL: callback, ReplyTo: replyTo, Status: StatusSuccess, StoreID: storeID}
}

func Failure(callback, replyTo string, err error) Message {
	text := "unknown error"
	if err != nil {
		text = err.Error()
	}
	return Message{CallbackURL: callback, ReplyTo: replyTo, Status: StatusFailed, Error: text}
}

// Payload is the JSON body posted to webhooks.
type Payload struct {
	Email  string `json:"email"`
	Link   string `json:"link"`
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
}

func (m Message) Payload() Payload {
	link := m.StoreID
	if link == "" {
		link = NoDataLink
	}
	return Payload{Email: m.ReplyTo, Link: link, Status: m.Status, Error: m.Error}
}

type Notifier interface {
	Notify(ctx context.Context, m Message) error
}

// Multi fans a message out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, msg Message) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BestEffort delivers m and only logs a failure.
func BestEffort(ctx context.Context, n Notifier, m Message, log *logger.Logger) {
	if err := n.Notify(ctx, m); err != nil {
		log.Error("notification failed", "status", m.Status, "callback", m.CallbackURL, "error", err)
		return
	}
	log.Info("notification sent", "status", m.Status, "link", m.Payload().Link)
}
