// Package config loads the scraper configuration from config.json5, merges
// config.local.json5 over it and applies environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/titanous/json5"

	"xepelin-blog-scraper/internal/browser"
	"xepelin-blog-scraper/internal/catalog"
	"xepelin-blog-scraper/internal/crawler"
	"xepelin-blog-scraper/internal/loader"
	"xepelin-blog-scraper/internal/notify"
	"xepelin-blog-scraper/internal/parser"
	"xepelin-blog-scraper/internal/pipeline"
	"xepelin-blog-scraper/internal/store"
	"xepelin-blog-scraper/internal/telemetry"
)

// Configuration validation errors.
var (
	ErrInvalidPort       = errors.New("server.port must be between 1 and 65535")
	ErrInvalidLogLevel   = errors.New("logging.level must be one of: debug, info, warn, error")
	ErrInvalidLogFormat  = errors.New("logging.format must be 'text' or 'json'")
	ErrInvalidStallLimit = errors.New("loader.stall_limit must be at least 1")
	ErrInvalidIterations = errors.New("loader.max_iterations must be at least 1")
	ErrInvalidRecycle    = errors.New("pipeline.recycle_every must be at least 1")
	ErrNegativeDuration  = errors.New("durations must be non-negative")
	ErrInvalidDriver     = errors.New("browser.driver must be 'rod' or 'static'")
	ErrInvalidBackend    = errors.New("store.backend must be 'sheets', 'sqlite' or 'postgres'")
	ErrInvalidWorkers    = errors.New("jobs.workers must be at least 1")
	ErrInvalidQueueSize  = errors.New("jobs.queue_size must be at least 1")
	ErrInvalidJobTimeout = errors.New("jobs.job_timeout_sec must be at least 1")
	ErrScheduleWebhook   = errors.New("jobs.schedule requires jobs.schedule_webhook")
)

type Config struct {
	Server    ServerConfig     `json:"server"`
	Logging   LoggingConfig    `json:"logging"`
	Site      SiteConfig       `json:"site"`
	Loader    LoaderConfig     `json:"loader"`
	Pipeline  PipelineConfig   `json:"pipeline"`
	Browser   BrowserConfig    `json:"browser"`
	Store     StoreConfig      `json:"store"`
	Notify    NotifyConfig     `json:"notify"`
	Jobs      JobsConfig       `json:"jobs"`
	Telemetry telemetry.Config `json:"telemetry"`
}

type ServerConfig struct {
	Host               string `json:"host"`
	Port               int    `json:"port"`
	ReadTimeoutSec     int    `json:"read_timeout_sec"`
	WriteTimeoutSec    int    `json:"write_timeout_sec"`
	ShutdownTimeoutSec int    `json:"shutdown_timeout_sec"`
}

func (s ServerConfig) Addr() string { return fmt.Sprintf("%s:%d", s.Host, s.Port) }

type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// SiteConfig describes the blog. Empty categories mean the built-in catalog.
type SiteConfig struct {
	BaseURL    string             `json:"base_url"`
	Categories []catalog.Category `json:"categories"`
	Extractor  parser.Options     `json:"extractor"`
}

type LoaderConfig struct {
	LinkSelector  string `json:"link_selector"`
	MoreSelector  string `json:"more_selector"`
	MoreText      string `json:"more_text"`
	SettleMs      int    `json:"settle_ms"`
	PreClickMs    int    `json:"pre_click_ms"`
	FinalSettleMs int    `json:"final_settle_ms"`
	StallLimit    int    `json:"stall_limit"`
	MaxIterations int    `json:"max_iterations"`
}

type PipelineConfig struct {
	NetworkIdleSec   int `json:"network_idle_sec"`
	ListingWaitSec   int `json:"listing_wait_sec"`
	PostLoadSettleMs int `json:"post_load_settle_ms"`
	ItemTimeoutSec   int `json:"item_timeout_sec"`
	ItemSettleMs     int `json:"item_settle_ms"`
	RecycleEvery     int `json:"recycle_every"`
}

type BrowserConfig struct {
	Driver         string `json:"driver"`
	Bin            string `json:"bin"`
	Headless       *bool  `json:"headless"`
	Stealth        *bool  `json:"stealth"`
	UserAgent      string `json:"user_agent"`
	BlockResources bool   `json:"block_resources"`
	ProbeURL       string `json:"probe_url"`
}

type StoreConfig struct {
	Backend     string `json:"backend"`
	Target      string `json:"target"`
	Credentials string `json:"credentials"`
	Dir         string `json:"dir"`
	DSN         string `json:"dsn"`
}

type SMTPConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	From     string `json:"from"`
}

type NotifyConfig struct {
	ReplyTo           string     `json:"reply_to"`
	WebhookTimeoutSec int        `json:"webhook_timeout_sec"`
	SMTP              SMTPConfig `json:"smtp"`
}

type JobsConfig struct {
	Workers         int    `json:"workers"`
	QueueSize       int    `json:"queue_size"`
	JobTimeoutSec   int    `json:"job_timeout_sec"`
	Schedule        string `json:"schedule"`
	ScheduleWebhook string `json:"schedule_webhook"`
}

func boolPtr(b bool) *bool { return &b }

// Default mirrors the timings the scraper was tuned with.
func Default() Config {
	ld := loader.DefaultConfig()
	return Config{
		Server:  ServerConfig{Host: "0.0.0.0", Port: 5000, ReadTimeoutSec: 10, WriteTimeoutSec: 60, ShutdownTimeoutSec: 10},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Site: SiteConfig{
			BaseURL:   catalog.DefaultBaseURL,
			Extractor: parser.DefaultOptions(),
		},
		Loader: LoaderConfig{
			LinkSelector:  ld.LinkSelector,
			MoreSelector:  ld.MoreSelector,
			MoreText:      ld.MorePattern,
			SettleMs:      5000,
			PreClickMs:    1000,
			FinalSettleMs: 2000,
			StallLimit:    3,
			MaxIterations: 100,
		},
		Pipeline: PipelineConfig{
			NetworkIdleSec:   60,
			ListingWaitSec:   15,
			PostLoadSettleMs: 5000,
			ItemTimeoutSec:   30,
			ItemSettleMs:     1000,
			RecycleEvery:     100,
		},
		Browser: BrowserConfig{
			Driver:   "rod",
			Headless: boolPtr(true),
			Stealth:  boolPtr(true),
			ProbeURL: "https://example.com",
		},
		Store:  StoreConfig{Backend: "sheets", Dir: "data"},
		Notify: NotifyConfig{WebhookTimeoutSec: 30},
		Jobs:   JobsConfig{Workers: 1, QueueSize: 8, JobTimeoutSec: 7200},
	}
}

func splitExt(f string) (string, string) {
	ext := filepath.Ext(f)
	return strings.TrimSuffix(f, ext), strings.TrimPrefix(ext, ".")
}

// Read loads name over the defaults and merges <name>.local.<ext> over it.
// Missing files are not an error.
func Read(name string) (Config, error) {
	out := Default()

	data, err := os.ReadFile(name)
	if err != nil && !os.IsNotExist(err) {
		return out, err
	}
	if len(data) > 0 {
		if err := json5.Unmarshal(data, &out); err != nil {
			return out, fmt.Errorf("parse %s: %w", name, err)
		}
	}

	prefix, ext := splitExt(name)
	localPath := fmt.Sprintf("%s.local.%s", prefix, ext)
	local, err := os.ReadFile(localPath)
	if err != nil && !os.IsNotExist(err) {
		return out, err
	}
	if len(local) > 0 {
		var override Config
		if err := json5.Unmarshal(local, &override); err != nil {
			return out, fmt.Errorf("parse %s: %w", localPath, err)
		}
		// Pointers are replaced, not dereferenced, so a local false beats a base true.
		if err := mergo.Merge(&out, override, mergo.WithOverride, mergo.WithoutDereference); err != nil {
			return out, err
		}
	}
	return out, nil
}

// Load reads the files, applies the environment and validates.
func Load(name string) (Config, error) {
	cfg, err := Read(name)
	if err != nil {
		return cfg, err
	}
	cfg.ApplyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from the deployment environment.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("HOST"); v != "" {
		c.Server.Host = v
	}
	if v, err := strconv.Atoi(getenv("PORT")); err == nil {
		c.Server.Port = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := getenv("GOOGLE_CREDENTIALS_JSON"); v != "" {
		c.Store.Credentials = v
	}
	if v := getenv("SHEET_URL"); v != "" {
		c.Store.Target = v
	}
	if v := getenv("PG_DSN"); v != "" {
		c.Store.DSN = v
	}
	if v := getenv("YOUR_EMAIL"); v != "" {
		c.Notify.ReplyTo = v
	}
	if v := getenv("BROWSER_BIN"); v != "" {
		c.Browser.Bin = v
	}
	if v, err := strconv.ParseBool(getenv("HEADLESS")); err == nil {
		c.Browser.Headless = boolPtr(v)
	}
	if v := getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.Telemetry.Endpoint = v
	}
}

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return ErrInvalidPort
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return ErrInvalidLogLevel
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return ErrInvalidLogFormat
	}
	if c.Loader.StallLimit < 1 {
		return ErrInvalidStallLimit
	}
	if c.Loader.MaxIterations < 1 {
		return ErrInvalidIterations
	}
	if c.Pipeline.RecycleEvery < 1 {
		return ErrInvalidRecycle
	}
	for _, v := range []int{
		c.Loader.SettleMs, c.Loader.PreClickMs, c.Loader.FinalSettleMs,
		c.Pipeline.NetworkIdleSec, c.Pipeline.ListingWaitSec, c.Pipeline.PostLoadSettleMs,
		c.Pipeline.ItemTimeoutSec, c.Pipeline.ItemSettleMs, c.Notify.WebhookTimeoutSec,
	} {
		if v < 0 {
			return ErrNegativeDuration
		}
	}
	switch c.Browser.Driver {
	case "rod", "static":
	default:
		return ErrInvalidDriver
	}
	switch c.Store.Backend {
	case "sheets", "sqlite", "postgres":
	default:
		return ErrInvalidBackend
	}
	if c.Jobs.Workers < 1 {
		return ErrInvalidWorkers
	}
	if c.Jobs.QueueSize < 1 {
		return ErrInvalidQueueSize
	}
	if c.Jobs.JobTimeoutSec < 1 {
		return ErrInvalidJobTimeout
	}
	if c.Jobs.Schedule != "" && c.Jobs.ScheduleWebhook == "" {
		return ErrScheduleWebhook
	}
	if _, err := c.Catalog(); err != nil {
		return err
	}
	return nil
}

func ms(v int) time.Duration  { return time.Duration(v) * time.Millisecond }
func sec(v int) time.Duration { return time.Duration(v) * time.Second }

// Catalog builds the category catalog the site section describes.
func (c *Config) Catalog() (catalog.Catalog, error) {
	if c.Site.BaseURL == catalog.DefaultBaseURL && len(c.Site.Categories) == 0 {
		return catalog.Default(), nil
	}
	cats := c.Site.Categories
	if len(cats) == 0 {
		cats = catalog.DefaultCategories()
	}
	return catalog.New(c.Site.BaseURL, cats)
}

func (l LoaderConfig) Config() loader.Config {
	return loader.Config{
		LinkSelector:  l.LinkSelector,
		MoreSelector:  l.MoreSelector,
		MorePattern:   l.MoreText,
		Settle:        ms(l.SettleMs),
		PreClick:      ms(l.PreClickMs),
		FinalSettle:   ms(l.FinalSettleMs),
		StallLimit:    l.StallLimit,
		MaxIterations: l.MaxIterations,
	}
}

func (c *Config) PipelineConfig() pipeline.Config {
	p := c.Pipeline
	return pipeline.Config{
		LinkSelector:       c.Loader.LinkSelector,
		NetworkIdleTimeout: sec(p.NetworkIdleSec),
		ListingWait:        sec(p.ListingWaitSec),
		PostLoadSettle:     ms(p.PostLoadSettleMs),
		ItemTimeout:        sec(p.ItemTimeoutSec),
		ItemSettle:         ms(p.ItemSettleMs),
		RecycleEvery:       p.RecycleEvery,
	}
}

func (b BrowserConfig) Options() browser.Options {
	return browser.Options{
		Driver:         b.Driver,
		Headless:       b.Headless == nil || *b.Headless,
		Bin:            b.Bin,
		Stealth:        b.Stealth == nil || *b.Stealth,
		UserAgent:      b.UserAgent,
		BlockResources: b.BlockResources,
	}
}

func (s StoreConfig) Config() store.Config {
	return store.Config{Backend: s.Backend, Credentials: s.Credentials, Dir: s.Dir, DSN: s.DSN}
}

func (n NotifyConfig) WebhookTimeout() time.Duration { return sec(n.WebhookTimeoutSec) }

func (n NotifyConfig) SMTPConfig() notify.SMTPConfig {
	return notify.SMTPConfig{
		Host:     n.SMTP.Host,
		Port:     n.SMTP.Port,
		Username: n.SMTP.Username,
		Password: n.SMTP.Password,
		From:     n.SMTP.From,
	}
}

func (j JobsConfig) JobTimeout() time.Duration { return sec(j.JobTimeoutSec) }

func (s ServerConfig) ReadTimeout() time.Duration     { return sec(s.ReadTimeoutSec) }
func (s ServerConfig) WriteTimeout() time.Duration    { return sec(s.WriteTimeoutSec) }
func (s ServerConfig) ShutdownTimeout() time.Duration { return sec(s.ShutdownTimeoutSec) }

// CrawlerOptions configures the plain HTTP client behind the static driver
// and the extract command.
func (c *Config) CrawlerOptions() crawler.Options {
	opts := crawler.DefaultOptions()
	if c.Browser.UserAgent != "" {
		opts.UserAgent = c.Browser.UserAgent
	}
	if c.Pipeline.ItemTimeoutSec > 0 {
		opts.Timeout = sec(c.Pipeline.ItemTimeoutSec)
	}
	return opts
}
