package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Meschack/lyriks/cache"
	"github.com/Meschack/lyriks/config"
	"github.com/Meschack/lyriks/logcolors"
	"github.com/Meschack/lyriks/reporting"

	log "github.com/sirupsen/logrus"
)

const (
	shutdownTimeout     = 15 * time.Second
	limiterPruneEvery   = 10 * time.Minute
	sentryFlushDeadline = 2 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("%s Invalid configuration: %v", logcolors.LogConfig, err)
	}
	setupLogging(cfg)

	if err := reporting.Init(reporting.Config{
		DSN:         cfg.App.SentryDSN,
		Environment: cfg.App.Env,
		Release:     "lyriks@" + version,
	}); err != nil {
		log.Warnf("%s Failed to initialize: %v", logcolors.LogSentry, err)
	}
	defer reporting.Flush(sentryFlushDeadline)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Errorf("%s %v", logcolors.LogServer, err)
		reporting.Flush(sentryFlushDeadline)
		os.Exit(1)
	}
}

// run serves until ctx is cancelled, then drains requests and closes the store.
func run(ctx context.Context, cfg config.Config) error {
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Errorf("%s Failed to close cache: %v", logcolors.LogCacheInit, err)
		}
	}()

	if bs, ok := store.(*cache.BoltStore); ok {
		bs.StartSweeper(cfg.CacheSweepInterval())
	}

	srv, err := newServer(cfg, store)
	if err != nil {
		return err
	}
	srv.limiter.StartPruner(ctx, limiterPruneEvery)

	httpServer := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           srv.handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Infof("%s %s listening on port %s", logcolors.LogServer, cfg.App.Name, cfg.App.Port)
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Infof("%s Shutting down", logcolors.LogServer)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
