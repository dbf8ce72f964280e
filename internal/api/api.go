// Package api is the HTTP trigger of the scraper: it validates scrape
// requests, hands them to the job runner and answers right away.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"xepelin-blog-scraper/internal/browser"
	"xepelin-blog-scraper/internal/catalog"
	"xepelin-blog-scraper/internal/jobs"
	"xepelin-blog-scraper/pkg/logger"
)

const version = "1.0"

// Submitter queues a job and returns its id.
type Submitter interface {
	Submit(req jobs.Request) (string, error)
}

type Config struct {
	// ReplyTo and StoreTarget apply when the request leaves them empty.
	ReplyTo      string
	StoreTarget  string
	ProbeURL     string
	ProbeTimeout time.Duration
}

type Server struct {
	cfg      Config
	cat      catalog.Catalog
	jobs     Submitter
	browsers browser.Factory
	log      *logger.Logger
}

func New(cfg Config, cat catalog.Catalog, jobs Submitter, browsers browser.Factory, log *logger.Logger) *Server {
	if cfg.ProbeURL == "" {
		cfg.ProbeURL = "https://example.com"
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 30 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Server{cfg: cfg, cat: cat, jobs: jobs, browsers: browsers, log: log}
}

// Handler returns the routed, request-logging handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.index)
	mux.HandleFunc("/health", get(s.health))
	mux.HandleFunc("/categories", get(s.categories))
	mux.HandleFunc("/test-browser", get(s.testBrowser))
	mux.HandleFunc("/scrape", s.scrape)
	return logRequest(s.log, mux)
}

func get(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}
		h(w, r)
	}
}

type endpoint struct {
	Method      string            `json:"method"`
	Description string            `json:"description"`
	Required    map[string]string `json:"required_parameters,omitempty"`
	Optional    map[string]string `json:"optional_parameters,omitempty"`
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error":   "Endpoint not found",
			"message": "Use GET / to see available endpoints",
		})
		return
	}
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Xepelin Blog Scraper API",
		"version": version,
		"endpoints": map[string]endpoint{
			"/scrape": {
				Method:      http.MethodPost,
				Description: "Scrape blog posts from a category",
				Required: map[string]string{
					"categoria": "Category name (e.g., 'Pymes', 'Noticias', 'Corporativos')",
					"webhook":   "Webhook URL to receive results",
				},
				Optional: map[string]string{
					"scrape_all": "true to scrape every category instead of one",
					"email":      "reply identity reported in the webhook payload",
					"sheet_url":  "store to overwrite instead of the default",
				},
			},
			"/categories":   {Method: http.MethodGet, Description: "Get list of available categories"},
			"/test-browser": {Method: http.MethodGet, Description: "Test if the headless browser is working correctly"},
			"/health":       {Method: http.MethodGet, Description: "Health check endpoint"},
		},
	})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "message": "API is running"})
}

func (s *Server) categories(w http.ResponseWriter, _ *http.Request) {
	names := s.cat.Names()
	writeJSON(w, http.StatusOK, map[string]any{"categories": names, "count": len(names)})
}

// testBrowser opens the probe page in a fresh browser and reports its title.
func (s *Server) testBrowser(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ProbeTimeout)
	defer cancel()

	title, err := s.probe(ctx)
	if err != nil {
		s.log.Error("browser probe failed", "url", s.cfg.ProbeURL, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"status":  "error",
			"message": "Browser test failed",
			"error":   err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":          "success",
		"message":         "Browser is working correctly",
		"test_page_title": title,
	})
}

func (s *Server) probe(ctx context.Context) (title string, err error) {
	b, err := s.browsers(ctx)
	if err != nil {
		return "", err
	}
	defer func() { err = errors.Join(err, b.Close()) }()

	page, err := b.NewPage(ctx)
	if err != nil {
		return "", err
	}
	defer page.Close()

	if err := page.Navigate(ctx, s.cfg.ProbeURL, browser.DOMContentLoaded, s.cfg.ProbeTimeout); err != nil {
		return "", err
	}
	return page.Title(ctx)
}

type scrapeReq struct {
	Categoria string `json:"categoria"`
	Webhook   string `json:"webhook"`
	ScrapeAll bool   `json:"scrape_all"`
	Email     string `json:"email"`
	SheetURL  string `json:"sheet_url"`
}

func (s *Server) scrape(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var body scrapeReq
	err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&body)
	if err != nil || body == (scrapeReq{}) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No JSON data provided"})
		return
	}

	req := jobs.Request{
		Category:    body.Categoria,
		All:         body.ScrapeAll,
		CallbackURL: body.Webhook,
		ReplyTo:     firstNonEmpty(body.Email, s.cfg.ReplyTo),
		StoreTarget: firstNonEmpty(body.SheetURL, s.cfg.StoreTarget),
	}
	if req.All {
		req.Category = ""
	}

	id, err := s.jobs.Submit(req)
	switch {
	case err == nil:
	case errors.Is(err, jobs.ErrMissingCallback):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing required parameter: 'webhook'"})
		return
	case errors.Is(err, jobs.ErrMissingCategory):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing required parameter: 'categoria' (or set 'scrape_all': true)"})
		return
	case errors.Is(err, catalog.ErrUnknownCategory):
		resp := map[string]any{
			"error":                fmt.Sprintf("Invalid category: '%s'", body.Categoria),
			"available_categories": s.cat.Names(),
		}
		if name, ok := s.cat.Suggest(body.Categoria); ok {
			resp["suggestion"] = name
		}
		writeJSON(w, http.StatusBadRequest, resp)
		return
	case errors.Is(err, jobs.ErrQueueFull), errors.Is(err, jobs.ErrClosed):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	resp := map[string]any{
		"status":  "accepted",
		"message": "Scraping job started. Results will be sent to webhook when complete.",
		"webhook": req.CallbackURL,
		"job_id":  id,
	}
	if req.All {
		resp["mode"] = "all_categories"
		resp["info"] = fmt.Sprintf("Scraping all %d categories", len(s.cat.Names()))
	} else {
		resp["categoria"] = req.Category
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func logRequest(l *logger.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)
		l.Info("request", "method", r.Method, "path", r.URL.Path, "status", sw.code, "elapsed", time.Since(start))
	})
}
