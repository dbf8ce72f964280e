// Package browsertest provides an in-memory browser whose listing pages reveal
// items in batches, for exercising the loader and pipeline without Chromium.
package browsertest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"xepelin-blog-scraper/internal/browser"
)

// Listing is a page that reveals Items progressively.
type Listing struct {
	Items []string
	// Initial items are visible right after navigation.
	Initial int
	// ScrollBatch items are revealed per scroll; ButtonBatch per click.
	ScrollBatch int
	ButtonBatch int
	// ButtonText is matched by FindByText. Empty means no button.
	ButtonText string
	// Extra HTML appended to the rendered body, e.g. navigation links.
	Extra string
}

// Site is a fake browser backed by static listings and item documents.
type Site struct {
	mu        sync.Mutex
	Listings  map[string]*Listing
	Docs      map[string]string
	NavErrors map[string]error
	// CountErr makes every Count fail, simulating a dead session.
	CountErr error

	Opened  int
	Closed  int
	Visited []string
	closed  bool
}

func NewSite() *Site {
	return &Site{
		Listings:  map[string]*Listing{},
		Docs:      map[string]string{},
		NavErrors: map[string]error{},
	}
}

func (s *Site) NewPage(context.Context) (browser.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("browser closed")
	}
	s.Opened++
	return &Page{site: s}, nil
}

func (s *Site) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Factory returns a browser.Factory that always hands out this site.
func (s *Site) Factory() browser.Factory {
	return func(context.Context) (browser.Browser, error) { return s, nil }
}

// OpenPages is the number of pages not yet closed.
func (s *Site) OpenPages() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Opened - s.Closed
}

type Page struct {
	site    *Site
	url     string
	listing *Listing
	visible int
	closed  bool
}

func (p *Page) Navigate(_ context.Context, url string, _ browser.WaitUntil, _ time.Duration) error {
	p.site.mu.Lock()
	defer p.site.mu.Unlock()
	if p.closed {
		return fmt.Errorf("page closed")
	}
	p.site.Visited = append(p.site.Visited, url)
	p.url = url
	p.listing = p.site.Listings[url]
	p.visible = 0
	if p.listing != nil {
		p.visible = min(p.listing.Initial, len(p.listing.Items))
	}
	// the document stays loaded so that wait timeouts can be tolerated
	return p.site.NavErrors[url]
}

func (p *Page) WaitElement(_ context.Context, selector string, _ time.Duration) error {
	if p.listing == nil || p.visible == 0 {
		return fmt.Errorf("wait for %q: %w", selector, context.DeadlineExceeded)
	}
	return nil
}

func (p *Page) Count(context.Context, string) (int, error) {
	if p.site.CountErr != nil {
		return 0, p.site.CountErr
	}
	return p.visible, nil
}

func (p *Page) reveal(n int) {
	if p.listing == nil {
		return
	}
	p.visible = min(p.visible+n, len(p.listing.Items))
}

func (p *Page) ScrollToBottom(context.Context) error {
	if p.listing != nil {
		p.reveal(p.listing.ScrollBatch)
	}
	return nil
}

func (p *Page) FindByText(_ context.Context, _ string, pattern string) (browser.Element, error) {
	if p.listing == nil || p.listing.ButtonText == "" || !strings.Contains(p.listing.ButtonText, pattern) {
		return nil, browser.ErrNotFound
	}
	// the control disappears once everything is shown
	if p.visible >= len(p.listing.Items) {
		return nil, browser.ErrNotFound
	}
	return &button{page: p}, nil
}

func (p *Page) HTML(context.Context) (string, error) {
	if p.listing == nil {
		doc, ok := p.site.Docs[p.url]
		if !ok {
			return "", fmt.Errorf("no document for %s", p.url)
		}
		return doc, nil
	}
	var b strings.Builder
	b.WriteString("<html><body>")
	b.WriteString(p.listing.Extra)
	for _, href := range p.listing.Items[:p.visible] {
		fmt.Fprintf(&b, `<a href="%s">post</a>`, href)
	}
	b.WriteString("</body></html>")
	return b.String(), nil
}

func (p *Page) Title(context.Context) (string, error) { return "fake " + p.url, nil }

func (p *Page) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	p.site.mu.Lock()
	p.site.Closed++
	p.site.mu.Unlock()
	return nil
}

type button struct {
	page *Page
}

func (b *button) Visible(context.Context) (bool, error) { return true, nil }

func (b *button) ScrollIntoView(context.Context) error { return nil }

func (b *button) Click(context.Context) error {
	b.page.reveal(b.page.listing.ButtonBatch)
	return nil
}
