package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/epiwatch/internal/adapters/fetch"
	"github.com/okian/epiwatch/internal/adapters/http/api"
	"github.com/okian/epiwatch/internal/adapters/repository"
	"github.com/okian/epiwatch/internal/app"
	"github.com/okian/epiwatch/internal/config"
	"github.com/okian/epiwatch/internal/domain/region"
	"github.com/okian/epiwatch/internal/notify"
	"github.com/okian/epiwatch/pkg/logger"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	log := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}

	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	catalog, err := region.NewCatalog(region.WithTableFile(cfg.AliasFile))
	if err != nil {
		log.Error(ctx, "building region catalog failed", logger.Error(err))
		return
	}

	// An unreadable store is fatal: starting with silently-empty
	// subscriptions would drop every watch on the floor.
	store, err := repository.NewSQLiteStore(cfg.StorePath)
	if err != nil {
		log.Error(ctx, "opening subscription store failed",
			logger.String("path", cfg.StorePath), logger.Error(err))
		return
	}

	fetcher := fetch.NewHTTPFetcher(cfg.FeedURL,
		fetch.WithTimeout(cfg.FetchTimeout),
		fetch.WithUserAgent(cfg.UserAgent),
	)

	var notifier notify.Notifier = notify.NewLogNotifier()
	if cfg.WebhookURL != "" {
		notifier = notify.NewWebhookNotifier(cfg.WebhookURL)
		log.Info(ctx, "delivering notifications via webhook")
	}

	svc := app.New(catalog, store, fetcher, notifier,
		app.WithLogger(log),
		app.WithInterval(cfg.FetchInterval),
		app.WithMaxSubscriptions(cfg.MaxSubscriptions),
		app.WithMaxRankingLimit(cfg.MaxRankingLimit),
		app.WithNotifyWorkers(cfg.NotifyWorkers),
	)
	if err := svc.Start(ctx); err != nil {
		log.Error(ctx, "failed to start service", logger.Error(err))
		return
	}
	defer svc.Stop()

	mux := http.NewServeMux()
	api.NewServer(svc).Register(ctx, mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			os.Stderr.WriteString("HTTP server failed: " + err.Error() + "\n")
		}
	}()

	<-ctx.Done()
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
}
