package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/application/workflow"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/config"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/infra/httpserver"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/logging"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/middleware"
)

func main() {
	cfg, err := config.Load(config.Path())
	if err != nil {
		logrus.Fatalf("config load error: %v", err)
	}

	log, logCloser, err := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		Stdout:     cfg.Log.Stdout,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		logrus.Fatalf("logger init error: %v", err)
	}
	defer logCloser.Close()

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
}

func run(cfg *config.Config, log *logrus.Logger) error {
	ctx := context.Background()

	deps, err := wire(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer deps.Close()

	opts := cfg.WorkflowOptions()
	opts.Reporter = middleware.EventMetrics
	sessions := workflow.NewRegistry(workflow.RegistryOptions{
		Max: cfg.Sessions.Max,
		TTL: cfg.Sessions.TTL,
	}, func(id string) *workflow.Session {
		return workflow.NewSession(id, deps.analyzer, deps.reports, opts, log)
	}, log)

	var limiter *middleware.RateLimiter
	if cfg.Server.RateLimit.Capacity > 0 {
		limiter = middleware.NewRateLimiter(cfg.Server.RateLimit.Capacity, cfg.Server.RateLimit.RefillRate)
		defer limiter.Stop()
	}

	var ready atomic.Bool
	ready.Store(true)
	handler := httpserver.NewRouter(sessions, httpserver.Options{
		CORSOrigins: cfg.Server.CORSOrigins,
		APIKeys:     cfg.Server.APIKeys,
		Limiter:     limiter,
		Checks:      deps.checks,
		Ready:       ready.Load,
	}, log)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		// WriteTimeout is left unset so /watch streams are not cut off.
		IdleTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{
			"addr":     addr,
			"analyzer": cfg.Analyzer.Kind,
			"store":    cfg.Report.Store,
			"repo":     cfg.Report.Repository,
		}).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-stop:
	}
	log.Info("shutting down server...")
	ready.Store(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("shutdown error")
	}
	sessions.Close()
	log.Info("server stopped")
	return nil
}
