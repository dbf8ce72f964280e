package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"xepelin-blog-scraper/internal/api"
	"xepelin-blog-scraper/internal/app"
	"xepelin-blog-scraper/internal/config"
	"xepelin-blog-scraper/internal/jobs"
	"xepelin-blog-scraper/pkg/logger"
)

func main() {
	cfgPath := flag.String("config", "config.json5", "config file; <name>.local.<ext> is merged over it")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.New("error", "").Error("load config", "error", err)
		os.Exit(1)
	}
	l := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx := context.Background()
	a, err := app.New(ctx, cfg, l)
	if err != nil {
		l.Error("startup failed", "error", err)
		os.Exit(1)
	}
	runner, err := a.Runner(ctx)
	if err != nil {
		l.Error("startup failed", "error", err)
		os.Exit(1)
	}
	runner.Start()

	if cfg.Jobs.Schedule != "" {
		c, err := runner.Schedule(cfg.Jobs.Schedule, jobs.Request{
			All:         true,
			CallbackURL: cfg.Jobs.ScheduleWebhook,
			ReplyTo:     cfg.Notify.ReplyTo,
			StoreTarget: cfg.Store.Target,
		})
		if err != nil {
			l.Error("invalid schedule", "error", err)
			os.Exit(1)
		}
		defer c.Stop()
		l.Info("scheduled scrape enabled", "spec", cfg.Jobs.Schedule)
	}

	handler := api.New(api.Config{
		ReplyTo:     cfg.Notify.ReplyTo,
		StoreTarget: cfg.Store.Target,
		ProbeURL:    cfg.Browser.ProbeURL,
	}, a.Catalog, runner, a.Browsers, l).Handler()

	addr := cfg.Server.Addr()
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout(),
		WriteTimeout: cfg.Server.WriteTimeout(),
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(l.Slog().Handler(), slog.LevelError),
	}

	go func() {
		l.Infof("server listening on %s", addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			l.Errorf("server error: %v", err)
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	l.Infof("shutting down...")
	sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout())
	defer cancel()
	_ = srv.Shutdown(sctx)
	if err := runner.Close(sctx); err != nil {
		l.Warn("jobs still running were canceled", "error", err)
	}
	if err := a.Close(sctx); err != nil {
		l.Warn("closing resources", "error", err)
	}
	l.Infof("bye")
}
