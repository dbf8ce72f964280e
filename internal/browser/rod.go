package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// RodBrowser drives a Chromium instance over CDP.
type RodBrowser struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	opts     Options
}

func LaunchRod(ctx context.Context, opts Options) (*RodBrowser, error) {
	bin := opts.Bin
	if bin == "" {
		path, err := launcher.NewBrowser().Get()
		if err != nil {
			return nil, fmt.Errorf("download browser: %w", err)
		}
		bin = path
	}

	l := launcher.New().
		Context(ctx).
		Headless(opts.Headless).
		Bin(bin).
		NoSandbox(true).
		Set("disable-dev-shm-usage").
		Set("disable-gpu")

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	return &RodBrowser{browser: b, launcher: l, opts: opts}, nil
}

func (r *RodBrowser) NewPage(ctx context.Context) (Page, error) {
	var (
		page *rod.Page
		err  error
	)
	if r.opts.Stealth {
		page, err = stealth.Page(r.browser.Context(ctx))
	} else {
		page, err = r.browser.Context(ctx).Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("new page: %w", err)
	}
	// detach from the creation context so the page outlives it
	page = page.Context(context.Background())

	if r.opts.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: r.opts.UserAgent, AcceptLanguage: "es-CL"}); err != nil {
			_ = page.Close()
			return nil, fmt.Errorf("set user agent: %w", err)
		}
	}
	if r.opts.BlockResources {
		if err := (proto.NetworkSetBlockedURLs{
			Urls: []string{"*.png", "*.jpg", "*.jpeg", "*.gif", "*.webp", "*.woff", "*.woff2", "*.mp4"},
		}).Call(page); err != nil {
			_ = page.Close()
			return nil, fmt.Errorf("block resources: %w", err)
		}
	}
	return &rodPage{page: page}, nil
}

func (r *RodBrowser) Close() error {
	err := r.browser.Close()
	r.launcher.Kill()
	r.launcher.Cleanup()
	return err
}

type rodPage struct {
	page *rod.Page
}

func bounded(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func (p *rodPage) Navigate(ctx context.Context, url string, until WaitUntil, timeout time.Duration) error {
	tctx, cancel := bounded(ctx, timeout)
	defer cancel()

	event := proto.PageLifecycleEventNameDOMContentLoaded
	if until == NetworkIdle {
		event = proto.PageLifecycleEventNameNetworkIdle
	}
	page := p.page.Context(tctx)
	wait := page.WaitNavigation(event)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	wait()
	if err := tctx.Err(); err != nil {
		return fmt.Errorf("wait %s for %s: %w", until, url, err)
	}
	return nil
}

func (p *rodPage) WaitElement(ctx context.Context, selector string, timeout time.Duration) error {
	tctx, cancel := bounded(ctx, timeout)
	defer cancel()
	if _, err := p.page.Context(tctx).Element(selector); err != nil {
		return fmt.Errorf("wait for %q: %w", selector, err)
	}
	return nil
}

func (p *rodPage) Count(ctx context.Context, selector string) (int, error) {
	els, err := p.page.Context(ctx).Elements(selector)
	if err != nil {
		return 0, err
	}
	return len(els), nil
}

func (p *rodPage) ScrollToBottom(ctx context.Context) error {
	_, err := p.page.Context(ctx).Eval(`() => window.scrollTo(0, document.body.scrollHeight)`)
	return err
}

func (p *rodPage) FindByText(ctx context.Context, selector, pattern string) (Element, error) {
	has, el, err := p.page.Context(ctx).HasR(selector, pattern)
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, ErrNotFound
	}
	return &rodElement{el: el}, nil
}

func (p *rodPage) HTML(ctx context.Context) (string, error) {
	return p.page.Context(ctx).HTML()
}

func (p *rodPage) Title(ctx context.Context) (string, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.Title, nil
}

func (p *rodPage) Close() error {
	err := p.page.Close()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

type rodElement struct {
	el *rod.Element
}

func (e *rodElement) Visible(ctx context.Context) (bool, error) {
	return e.el.Context(ctx).Visible()
}

func (e *rodElement) ScrollIntoView(ctx context.Context) error {
	return e.el.Context(ctx).ScrollIntoView()
}

func (e *rodElement) Click(ctx context.Context) error {
	return e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1)
}
