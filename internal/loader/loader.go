// Package loader drives a listing page until it stops revealing posts.
//
// The blog exposes no "has more" signal, so progress is measured by the
// number of post links before and after each scroll or "load more" click.
// The loop ends after StallLimit consecutive rounds without new links or
// after MaxIterations rounds, whichever comes first.
package loader

import (
	"context"
	"errors"
	"time"

	"xepelin-blog-scraper/internal/browser"
	"xepelin-blog-scraper/pkg/logger"
)

type Config struct {
	LinkSelector  string
	MoreSelector  string
	MorePattern   string
	Settle        time.Duration
	PreClick      time.Duration
	FinalSettle   time.Duration
	StallLimit    int
	MaxIterations int
}

func DefaultConfig() Config {
	return Config{
		LinkSelector:  `a[href*="/blog/"][href*="-"]`,
		MoreSelector:  "button",
		MorePattern:   "Cargar más",
		Settle:        5 * time.Second,
		PreClick:      time.Second,
		FinalSettle:   2 * time.Second,
		StallLimit:    3,
		MaxIterations: 100,
	}
}

// Stop reasons reported in Result.
const (
	StopStalled  = "stalled"
	StopCap      = "iteration cap"
	StopDriver   = "driver error"
	StopCanceled = "canceled"
)

type Result struct {
	Iterations int
	Start      int
	Final      int
	Reason     string
}

type SleepFunc func(ctx context.Context, d time.Duration) error

type Loader struct {
	cfg   Config
	log   *logger.Logger
	sleep SleepFunc
}

type Option func(*Loader)

// WithSleep replaces the real-time wait, mainly for tests.
func WithSleep(fn SleepFunc) Option {
	return func(l *Loader) { l.sleep = fn }
}

func New(cfg Config, log *logger.Logger, opts ...Option) *Loader {
	d := DefaultConfig()
	if cfg.LinkSelector == "" {
		cfg.LinkSelector = d.LinkSelector
	}
	if cfg.MoreSelector == "" {
		cfg.MoreSelector = d.MoreSelector
	}
	if cfg.MorePattern == "" {
		cfg.MorePattern = d.MorePattern
	}
	if cfg.StallLimit <= 0 {
		cfg.StallLimit = d.StallLimit
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = d.MaxIterations
	}
	if log == nil {
		log = logger.Nop()
	}
	l := &Loader{cfg: cfg, log: log, sleep: Sleep}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Load reveals as many posts as the page yields. Driver failures end the
// loop and are reported in the result rather than returned: a page that
// stops answering has nothing more to show.
func (l *Loader) Load(ctx context.Context, page browser.Page) Result {
	res := Result{}
	res.Start, _ = page.Count(ctx, l.cfg.LinkSelector)

	stalls := 0
	for res.Iterations < l.cfg.MaxIterations {
		res.Iterations++
		progressed, err := l.step(ctx, page)
		if err != nil {
			res.Reason = l.stopReason(ctx, err)
			l.log.Debug("loader stopped early", "reason", res.Reason, "iteration", res.Iterations, "error", err)
			break
		}
		if progressed {
			stalls = 0
			continue
		}
		stalls++
		if stalls >= l.cfg.StallLimit {
			res.Reason = StopStalled
			break
		}
	}
	if res.Reason == "" {
		res.Reason = StopCap
		l.log.Warn("loader hit iteration cap", "iterations", res.Iterations)
	}

	// trailing lazy content
	if ctx.Err() == nil {
		_ = page.ScrollToBottom(ctx)
		_ = l.sleep(ctx, l.cfg.FinalSettle)
	}
	res.Final, _ = page.Count(ctx, l.cfg.LinkSelector)
	return res
}

// step runs one scroll and, when scrolling reveals nothing, one click on
// the load-more control.
func (l *Loader) step(ctx context.Context, page browser.Page) (bool, error) {
	before, err := page.Count(ctx, l.cfg.LinkSelector)
	if err != nil {
		return false, err
	}
	if err := page.ScrollToBottom(ctx); err != nil {
		return false, err
	}
	if err := l.sleep(ctx, l.cfg.Settle); err != nil {
		return false, err
	}
	afterScroll, err := page.Count(ctx, l.cfg.LinkSelector)
	if err != nil {
		return false, err
	}
	if afterScroll > before {
		l.log.Debug("scroll revealed posts", "before", before, "after", afterScroll)
		return true, nil
	}

	more, err := page.FindByText(ctx, l.cfg.MoreSelector, l.cfg.MorePattern)
	if errors.Is(err, browser.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if visible, err := more.Visible(ctx); err != nil || !visible {
		return false, nil
	}
	if err := more.ScrollIntoView(ctx); err != nil {
		return false, nil
	}
	if err := l.sleep(ctx, l.cfg.PreClick); err != nil {
		return false, err
	}
	// a control that cannot be clicked, including on a driver that never
	// clicks, counts as a round without progress
	if err := more.Click(ctx); err != nil {
		l.log.Debug("load more click failed", "error", err)
		return false, nil
	}
	if err := l.sleep(ctx, l.cfg.Settle); err != nil {
		return false, err
	}
	afterClick, err := page.Count(ctx, l.cfg.LinkSelector)
	if err != nil {
		return false, err
	}
	l.log.Debug("load more clicked", "before", afterScroll, "after", afterClick)
	return afterClick > afterScroll, nil
}

func (l *Loader) stopReason(ctx context.Context, err error) string {
	if ctx.Err() != nil {
		return StopCanceled
	}
	return StopDriver
}
