package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"
)

// StaticFetcher is satisfied by crawler.HTTPClient.
type StaticFetcher interface {
	Fetch(ctx context.Context, rawURL string) (io.ReadCloser, string, error)
}

// Static serves pages fetched over plain HTTP. Nothing runs client side, so
// scrolling is a no-op and elements cannot be clicked. It suits server
// rendered pages and tests.
type Static struct {
	fetcher StaticFetcher
}

func NewStatic(f StaticFetcher) *Static {
	return &Static{fetcher: f}
}

func (s *Static) NewPage(context.Context) (Page, error) {
	if s.fetcher == nil {
		return nil, errors.New("static driver has no fetcher")
	}
	return &staticPage{fetcher: s.fetcher}, nil
}

func (s *Static) Close() error { return nil }

type staticPage struct {
	fetcher StaticFetcher
	doc     *goquery.Document
	closed  bool
}

func (p *staticPage) Navigate(ctx context.Context, url string, _ WaitUntil, timeout time.Duration) error {
	if p.closed {
		return errors.New("page closed")
	}
	tctx, cancel := bounded(ctx, timeout)
	defer cancel()

	body, contentType, err := p.fetcher.Fetch(tctx, url)
	if err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	defer body.Close()

	r, err := charset.NewReader(body, contentType)
	if err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return fmt.Errorf("parse %s: %w", url, err)
	}
	p.doc = doc
	return nil
}

func (p *staticPage) loaded() (*goquery.Document, error) {
	if p.doc == nil {
		return nil, errors.New("no document loaded")
	}
	return p.doc, nil
}

func (p *staticPage) WaitElement(_ context.Context, selector string, _ time.Duration) error {
	doc, err := p.loaded()
	if err != nil {
		return err
	}
	if doc.Find(selector).Length() == 0 {
		return fmt.Errorf("wait for %q: %w", selector, ErrNotFound)
	}
	return nil
}

func (p *staticPage) Count(_ context.Context, selector string) (int, error) {
	doc, err := p.loaded()
	if err != nil {
		return 0, err
	}
	return doc.Find(selector).Length(), nil
}

func (p *staticPage) ScrollToBottom(context.Context) error { return nil }

func (p *staticPage) FindByText(_ context.Context, selector, pattern string) (Element, error) {
	doc, err := p.loaded()
	if err != nil {
		return nil, err
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	found := false
	doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		found = re.MatchString(strings.TrimSpace(s.Text()))
		return !found
	})
	if !found {
		return nil, ErrNotFound
	}
	return staticElement{}, nil
}

func (p *staticPage) HTML(context.Context) (string, error) {
	doc, err := p.loaded()
	if err != nil {
		return "", err
	}
	return doc.Html()
}

func (p *staticPage) Title(context.Context) (string, error) {
	doc, err := p.loaded()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(doc.Find("title").First().Text()), nil
}

func (p *staticPage) Close() error {
	p.closed = true
	p.doc = nil
	return nil
}

type staticElement struct{}

func (staticElement) Visible(context.Context) (bool, error) { return true, nil }

func (staticElement) ScrollIntoView(context.Context) error { return nil }

func (staticElement) Click(context.Context) error { return ErrNotInteractive }
