// Package browser abstracts the page-driving capabilities the scraper needs
// so that the loader and pipeline work against a real headless browser or a
// plain HTTP fetcher alike.
package browser

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound       = errors.New("element not found")
	ErrNotInteractive = errors.New("driver cannot interact with elements")
	ErrUnknownDriver  = errors.New("unknown browser driver")
)

// WaitUntil selects the readiness condition Navigate waits for.
type WaitUntil int

const (
	DOMContentLoaded WaitUntil = iota
	NetworkIdle
)

func (w WaitUntil) String() string {
	if w == NetworkIdle {
		return "networkidle"
	}
	return "domcontentloaded"
}

// Browser owns a browser session. Pages must be closed before the browser.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Page is a single tab. Every blocking call is bounded by ctx and, where
// given, by its own timeout.
type Page interface {
	Navigate(ctx context.Context, url string, until WaitUntil, timeout time.Duration) error
	WaitElement(ctx context.Context, selector string, timeout time.Duration) error
	Count(ctx context.Context, selector string) (int, error)
	ScrollToBottom(ctx context.Context) error
	// FindByText returns the first element matching selector whose text
	// matches the regular expression, or ErrNotFound.
	FindByText(ctx context.Context, selector, pattern string) (Element, error)
	HTML(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	Close() error
}

type Element interface {
	Visible(ctx context.Context) (bool, error)
	ScrollIntoView(ctx context.Context) error
	Click(ctx context.Context) error
}

type Options struct {
	Driver         string
	Headless       bool
	Bin            string
	Stealth        bool
	UserAgent      string
	BlockResources bool
}

// Factory starts a new browser session per call. Jobs never share a session.
type Factory func(ctx context.Context) (Browser, error)

// NewFactory returns a Factory for the configured driver.
func NewFactory(opts Options, static StaticFetcher) (Factory, error) {
	switch opts.Driver {
	case "", "rod":
		return func(ctx context.Context) (Browser, error) {
			return LaunchRod(ctx, opts)
		}, nil
	case "static":
		return func(context.Context) (Browser, error) {
			return NewStatic(static), nil
		}, nil
	}
	return nil, ErrUnknownDriver
}
