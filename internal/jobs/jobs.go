// Package jobs runs scraping requests in the background. Each job gets its
// own browser session, a bounded lifetime and exactly one completion
// notification.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"xepelin-blog-scraper/internal/browser"
	"xepelin-blog-scraper/internal/catalog"
	"xepelin-blog-scraper/internal/models"
	"xepelin-blog-scraper/internal/notify"
	"xepelin-blog-scraper/internal/store"
	"xepelin-blog-scraper/pkg/logger"
)

var (
	ErrQueueFull = errors.New("job queue is full")
	ErrClosed    = errors.New("job runner is closed")
	ErrNoPosts   = errors.New("no posts extracted")
)

// emptyResult carries the user facing message of a job that found nothing.
type emptyResult struct{ msg string }

func (e emptyResult) Error() string        { return e.msg }
func (e emptyResult) Is(target error) bool { return target == ErrNoPosts }

func noPostsIn(category string) error {
	return emptyResult{fmt.Sprintf("No se encontraron posts en la categoría '%s'", category)}
}

var errNoData = emptyResult{"No se pudieron extraer datos del blog"}

// Scraper is the pipeline as seen by a job.
type Scraper interface {
	ScrapeCategory(ctx context.Context, b browser.Browser, name string) ([]models.PostRecord, error)
	ScrapeAll(ctx context.Context, b browser.Browser) (*models.CategoryResult, int)
}

type Config struct {
	Workers    int
	QueueSize  int
	JobTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{Workers: 1, QueueSize: 8, JobTimeout: 2 * time.Hour}
}

type Deps struct {
	Catalog  catalog.Catalog
	Scraper  Scraper
	Browsers browser.Factory
	Store    store.Store
	Notifier notify.Notifier
	Log      *logger.Logger
}

type Outcome struct {
	JobID   string
	Status  notify.Status
	StoreID string
	Total   int
	Err     error
}

type queued struct {
	id  string
	req Request
}

var meter = otel.Meter("xepelin-blog-scraper/internal/jobs")

type Runner struct {
	cfg    Config
	d      Deps
	tracer trace.Tracer

	jobsTotal  metric.Int64Counter
	postsTotal metric.Int64Counter

	queue chan queued
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool

	// ctx bounds every job; cancel aborts the ones still running on Close.
	ctx    context.Context
	cancel context.CancelFunc
}

func NewRunner(cfg Config, d Deps) *Runner {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = def.JobTimeout
	}
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	if d.Notifier == nil {
		d.Notifier = notify.Multi{}
	}
	jobsTotal, err := meter.Int64Counter("scraper_jobs_total",
		metric.WithDescription("Finished scraping jobs by mode and status."))
	if err != nil {
		d.Log.Warn("jobs counter unavailable", "error", err)
	}
	postsTotal, err := meter.Int64Counter("scraper_posts_total",
		metric.WithDescription("Posts extracted by finished jobs."))
	if err != nil {
		d.Log.Warn("posts counter unavailable", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		cfg:        cfg,
		d:          d,
		tracer:     otel.Tracer("xepelin-blog-scraper/internal/jobs"),
		jobsTotal:  jobsTotal,
		postsTotal: postsTotal,
		queue:      make(chan queued, cfg.QueueSize),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start launches the workers. Jobs submitted before Start wait in the queue.
func (r *Runner) Start() {
	for i := 0; i < r.cfg.Workers; i++ {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			for job := range r.queue {
				r.Run(r.ctx, job.id, job.req)
			}
		}()
	}
}

// Submit validates and enqueues req, returning its job id. It never blocks.
func (r *Runner) Submit(req Request) (string, error) {
	if err := req.Validate(r.d.Catalog); err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return "", ErrClosed
	}

	id := uuid.NewString()
	select {
	case r.queue <- queued{id: id, req: req}:
		r.d.Log.Info("job queued", "job", id, "mode", req.Mode(), "webhook", req.CallbackURL)
		return id, nil
	default:
		return "", ErrQueueFull
	}
}

// Close stops accepting jobs and waits for queued ones to finish. When ctx
// expires first the running jobs are canceled, still notify, and Close
// returns ctx.Err().
func (r *Runner) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.cancel()
		<-done
		return ctx.Err()
	}
}

// Run executes one job synchronously and always sends one notification.
func (r *Runner) Run(ctx context.Context, id string, req Request) (out Outcome) {
	if id == "" {
		id = uuid.NewString()
	}
	log := r.d.Log.With("job", id, "mode", req.Mode())

	ctx, cancel := context.WithTimeout(ctx, r.cfg.JobTimeout)
	defer cancel()
	ctx, span := r.tracer.Start(ctx, "jobs.Run", trace.WithAttributes(
		attribute.String("job.id", id),
		attribute.String("job.mode", req.Mode()),
	))

	out = Outcome{JobID: id}
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("job panicked", "panic", rec)
			out.Status, out.StoreID = notify.StatusFailed, ""
			out.Err = fmt.Errorf("job panicked: %v", rec)
		}

		var msg notify.Message
		if out.Err != nil {
			span.RecordError(out.Err)
			span.SetStatus(codes.Error, out.Err.Error())
			msg = notify.Failure(req.CallbackURL, req.ReplyTo, out.Err)
		} else {
			msg = notify.Success(req.CallbackURL, req.ReplyTo, out.StoreID)
		}
		out.Status = msg.Status
		span.SetAttributes(attribute.Int("posts", out.Total))
		span.End()

		// The job context may already be spent; delivery gets its own.
		bg := context.WithoutCancel(ctx)
		r.record(bg, req, out)
		notify.BestEffort(bg, r.d.Notifier, msg, log)
		log.Info("job finished", "status", out.Status, "posts", out.Total, "store", out.StoreID)
	}()

	result, err := r.scrape(ctx, req, log)
	if err != nil {
		out.Err = err
		return out
	}
	out.Total = result.Total()

	storeID, err := r.d.Store.Write(ctx, result, req.StoreTarget)
	if err != nil {
		out.Err = fmt.Errorf("write store: %w", err)
		return out
	}
	out.StoreID = storeID
	return out
}

func (r *Runner) record(ctx context.Context, req Request, out Outcome) {
	mode := "category"
	if req.All {
		mode = "all"
	}
	attrs := metric.WithAttributes(attribute.String("mode", mode), attribute.String("status", string(out.Status)))
	if r.jobsTotal != nil {
		r.jobsTotal.Add(ctx, 1, attrs)
	}
	if r.postsTotal != nil && out.Total > 0 {
		r.postsTotal.Add(ctx, int64(out.Total), attrs)
	}
}

func (r *Runner) scrape(ctx context.Context, req Request, log *logger.Logger) (*models.CategoryResult, error) {
	b, err := r.d.Browsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("start browser: %w", err)
	}
	defer func() {
		if cerr := b.Close(); cerr != nil {
			log.Warn("closing browser", "error", cerr)
		}
	}()

	if req.All {
		result, total := r.d.Scraper.ScrapeAll(ctx, b)
		if total == 0 {
			return nil, errNoData
		}
		return result, nil
	}

	records, err := r.d.Scraper.ScrapeCategory(ctx, b, req.Category)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, noPostsIn(req.Category)
	}
	result := models.NewCategoryResult()
	result.Set(req.Category, records)
	return result, nil
}
