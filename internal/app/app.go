// Package app assembles the scraper from its configuration. Both binaries
// build the same object graph through it.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"

	"xepelin-blog-scraper/internal/browser"
	"xepelin-blog-scraper/internal/catalog"
	"xepelin-blog-scraper/internal/classifier"
	"xepelin-blog-scraper/internal/collector"
	"xepelin-blog-scraper/internal/config"
	"xepelin-blog-scraper/internal/crawler"
	"xepelin-blog-scraper/internal/jobs"
	"xepelin-blog-scraper/internal/loader"
	"xepelin-blog-scraper/internal/notify"
	"xepelin-blog-scraper/internal/parser"
	"xepelin-blog-scraper/internal/pipeline"
	"xepelin-blog-scraper/internal/store"
	"xepelin-blog-scraper/internal/telemetry"
	"xepelin-blog-scraper/pkg/logger"
)

type App struct {
	Config    config.Config
	Log       *logger.Logger
	Catalog   catalog.Catalog
	HTTP      *crawler.HTTPClient
	Parser    *parser.Parser
	Pipeline  *pipeline.Pipeline
	Browsers  browser.Factory
	Notifier  notify.Notifier
	Telemetry telemetry.Telemetry

	store store.Store
}

// New wires everything except the store, which is opened lazily because
// the Sheets backend needs credentials that not every command has.
func New(ctx context.Context, cfg config.Config, log *logger.Logger) (*App, error) {
	tel, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	cat, err := cfg.Catalog()
	if err != nil {
		return nil, err
	}

	httpc := crawler.NewHTTPClient(cfg.CrawlerOptions())
	browsers, err := browser.NewFactory(cfg.Browser.Options(), httpc)
	if err != nil {
		return nil, err
	}

	parse := parser.New(cfg.Site.Extractor)
	ld := loader.New(cfg.Loader.Config(), log)
	pipe := pipeline.New(cfg.PipelineConfig(), pipeline.Deps{
		Catalog:   cat,
		Loader:    ld,
		Collector: collector.New(classifier.New(cat)),
		Parser:    parse,
		Log:       log,
	})

	hook := notify.NewWebhook(cfg.Notify.WebhookTimeout())
	telemetry.InstrumentResty(hook.Client(), otel.Tracer("xepelin-blog-scraper/internal/notify"))
	notifier := notify.Multi{hook}
	if cfg.Notify.SMTP.Host != "" {
		notifier = append(notifier, notify.NewEmail(cfg.Notify.SMTPConfig()))
	}

	return &App{
		Config:    cfg,
		Log:       log,
		Catalog:   cat,
		HTTP:      httpc,
		Parser:    parse,
		Pipeline:  pipe,
		Browsers:  browsers,
		Notifier:  notifier,
		Telemetry: tel,
	}, nil
}

// Store opens the configured backend on first use.
func (a *App) Store(ctx context.Context) (store.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	s, err := store.Open(ctx, a.Config.Store.Config(), a.Log)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", a.Config.Store.Backend, err)
	}
	a.store = s
	return s, nil
}

// Runner builds the job runner over the app's pipeline and store.
func (a *App) Runner(ctx context.Context) (*jobs.Runner, error) {
	st, err := a.Store(ctx)
	if err != nil {
		return nil, err
	}
	return jobs.NewRunner(jobs.Config{
		Workers:    a.Config.Jobs.Workers,
		QueueSize:  a.Config.Jobs.QueueSize,
		JobTimeout: a.Config.Jobs.JobTimeout(),
	}, jobs.Deps{
		Catalog:  a.Catalog,
		Scraper:  a.Pipeline,
		Browsers: a.Browsers,
		Store:    st,
		Notifier: a.Notifier,
		Log:      a.Log,
	}), nil
}

func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	errs = append(errs, a.Telemetry.Shutdown(ctx))
	return errors.Join(errs...)
}
