// Package pipeline acquires every post of a category: it opens the listing,
// loads it to exhaustion, collects post URLs and extracts each post in
// discovery order, recycling the browser tab every RecycleEvery items.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"xepelin-blog-scraper/internal/browser"
	"xepelin-blog-scraper/internal/catalog"
	"xepelin-blog-scraper/internal/classifier"
	"xepelin-blog-scraper/internal/collector"
	"xepelin-blog-scraper/internal/loader"
	"xepelin-blog-scraper/internal/models"
	"xepelin-blog-scraper/internal/parser"
	"xepelin-blog-scraper/pkg/logger"
)

type Config struct {
	LinkSelector       string
	NetworkIdleTimeout time.Duration
	ListingWait        time.Duration
	PostLoadSettle     time.Duration
	ItemTimeout        time.Duration
	ItemSettle         time.Duration
	RecycleEvery       int
}

func DefaultConfig() Config {
	return Config{
		LinkSelector:       loader.DefaultConfig().LinkSelector,
		NetworkIdleTimeout: 60 * time.Second,
		ListingWait:        15 * time.Second,
		PostLoadSettle:     5 * time.Second,
		ItemTimeout:        30 * time.Second,
		ItemSettle:         time.Second,
		RecycleEvery:       100,
	}
}

// Deps are the collaborators of a Pipeline. Nil fields get defaults built
// from the catalog.
type Deps struct {
	Catalog   catalog.Catalog
	Loader    *loader.Loader
	Collector *collector.Collector
	Parser    *parser.Parser
	Log       *logger.Logger
	Sleep     loader.SleepFunc
}

type Pipeline struct {
	cfg    Config
	cat    catalog.Catalog
	load   *loader.Loader
	coll   *collector.Collector
	parse  *parser.Parser
	log    *logger.Logger
	sleep  loader.SleepFunc
	tracer trace.Tracer
}

func New(cfg Config, d Deps) *Pipeline {
	def := DefaultConfig()
	if cfg.LinkSelector == "" {
		cfg.LinkSelector = def.LinkSelector
	}
	if cfg.RecycleEvery <= 0 {
		cfg.RecycleEvery = def.RecycleEvery
	}
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	if d.Sleep == nil {
		d.Sleep = loader.Sleep
	}
	if d.Loader == nil {
		d.Loader = loader.New(loader.Config{LinkSelector: cfg.LinkSelector}, d.Log, loader.WithSleep(d.Sleep))
	}
	if d.Collector == nil {
		d.Collector = collector.New(classifier.New(d.Catalog))
	}
	if d.Parser == nil {
		d.Parser = parser.New(parser.DefaultOptions())
	}
	return &Pipeline{
		cfg:    cfg,
		cat:    d.Catalog,
		load:   d.Loader,
		coll:   d.Collector,
		parse:  d.Parser,
		log:    d.Log,
		sleep:  d.Sleep,
		tracer: otel.Tracer("xepelin-blog-scraper/internal/pipeline"),
	}
}

// ScrapeCategory returns the posts of one catalog category in listing
// order. An empty slice means the category has no posts; an error means
// the listing could not be acquired at all.
func (p *Pipeline) ScrapeCategory(ctx context.Context, b browser.Browser, name string) (records []models.PostRecord, err error) {
	cat, err := p.cat.Lookup(name)
	if err != nil {
		return nil, err
	}

	ctx, span := p.tracer.Start(ctx, "pipeline.ScrapeCategory", trace.WithAttributes(
		attribute.String("category", cat.Name),
	))
	defer func() {
		span.SetAttributes(attribute.Int("posts", len(records)))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	log := p.log.With("category", cat.Name)
	sess, err := newTab(ctx, b)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := sess.close(); cerr != nil {
			log.Warn("closing page", "error", cerr)
		}
	}()

	urls, err := p.listing(ctx, sess.page, p.cat.ListingURL(cat), log)
	if err != nil {
		return nil, err
	}
	log.Info("collected post urls", "total", len(urls))

	records = make([]models.PostRecord, 0, len(urls))
	for i, u := range urls {
		if err := ctx.Err(); err != nil {
			return records, err
		}
		ilog := log.With("index", i+1, "total", len(urls))
		var rec models.PostRecord
		if err := sess.ensure(ctx); err != nil {
			ilog.Warn("no page for post, using url fallback", "url", u, "error", err)
			rec = p.parse.Fallback(u)
		} else {
			rec = p.extract(ctx, sess.page, u, ilog)
		}
		rec.Category = cat.Name
		records = append(records, rec)

		processed := i + 1
		if processed%p.cfg.RecycleEvery == 0 && processed < len(urls) {
			log.Info("recycling page", "processed", processed)
			if err := sess.renew(ctx); err != nil {
				log.Error("recycling page failed, retrying on next post", "processed", processed, "error", err)
			}
		}
	}
	return records, nil
}

// listing opens the category page, drives the loader and returns the
// collected post URLs. Readiness timeouts are tolerated.
func (p *Pipeline) listing(ctx context.Context, page browser.Page, url string, log *logger.Logger) ([]string, error) {
	log.Info("opening listing", "url", url)
	if err := page.Navigate(ctx, url, browser.NetworkIdle, p.cfg.NetworkIdleTimeout); err != nil {
		if !isWaitTimeout(ctx, err) {
			return nil, err
		}
		log.Warn("listing did not reach network idle, continuing", "error", err)
	}

	if err := page.ScrollToBottom(ctx); err != nil {
		log.Debug("initial scroll failed", "error", err)
	}
	if err := page.WaitElement(ctx, p.cfg.LinkSelector, p.cfg.ListingWait); err != nil {
		log.Warn("no post links yet, continuing", "error", err)
	}
	if err := p.sleep(ctx, p.cfg.PostLoadSettle); err != nil {
		return nil, err
	}

	res := p.load.Load(ctx, page)
	log.Info("listing loaded", "iterations", res.Iterations, "links", res.Final, "reason", res.Reason)

	html, err := page.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("read listing %s: %w", url, err)
	}
	return p.coll.CollectHTML(html)
}

// extract never fails: any problem with an item yields a record derived
// from its URL.
func (p *Pipeline) extract(ctx context.Context, page browser.Page, url string, log *logger.Logger) (rec models.PostRecord) {
	ctx, span := p.tracer.Start(ctx, "pipeline.extract", trace.WithAttributes(attribute.String("url", url)))
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			log.Error("extraction panicked", "url", url, "panic", r)
			rec = p.parse.Fallback(url)
		}
	}()

	rec, err := p.parse.ExtractFrom(ctx, pageFetcher{page: page, timeout: p.cfg.ItemTimeout, settle: p.cfg.ItemSettle, sleep: p.sleep}, url)
	if err != nil {
		span.RecordError(err)
		log.Warn("post degraded to url fallback", "url", url, "error", err)
		return rec
	}
	log.Debug("post extracted", "url", url, "title", rec.Title)
	return rec
}

// pageFetcher loads item pages through the shared tab.
type pageFetcher struct {
	page    browser.Page
	timeout time.Duration
	settle  time.Duration
	sleep   loader.SleepFunc
}

func (f pageFetcher) Fetch(ctx context.Context, url string) (io.ReadCloser, string, error) {
	if err := f.page.Navigate(ctx, url, browser.DOMContentLoaded, f.timeout); err != nil {
		return nil, "", err
	}
	if err := f.sleep(ctx, f.settle); err != nil {
		return nil, "", err
	}
	html, err := f.page.HTML(ctx)
	if err != nil {
		return nil, "", err
	}
	return io.NopCloser(strings.NewReader(html)), "text/html; charset=utf-8", nil
}

// tab owns the current page and replaces it on renew.
type tab struct {
	b    browser.Browser
	page browser.Page
}

func newTab(ctx context.Context, b browser.Browser) (*tab, error) {
	page, err := b.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	return &tab{b: b, page: page}, nil
}

// renew replaces the page. On failure the tab is left without a page and
// ensure opens one later.
func (t *tab) renew(ctx context.Context) error {
	closeErr := t.close()
	if err := t.ensure(ctx); err != nil {
		return errors.Join(closeErr, err)
	}
	return nil
}

func (t *tab) ensure(ctx context.Context) error {
	if t.page != nil {
		return nil
	}
	page, err := t.b.NewPage(ctx)
	if err != nil {
		return fmt.Errorf("open page: %w", err)
	}
	t.page = page
	return nil
}

func (t *tab) close() error {
	if t.page == nil {
		return nil
	}
	err := t.page.Close()
	t.page = nil
	return err
}

func isWaitTimeout(ctx context.Context, err error) bool {
	return ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded)
}
