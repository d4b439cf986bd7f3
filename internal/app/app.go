// Package app wires configuration, storage and the processing components
// into a running server.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gmsas95/docdesk/internal/api"
	"github.com/gmsas95/docdesk/internal/audit"
	"github.com/gmsas95/docdesk/internal/blob"
	"github.com/gmsas95/docdesk/internal/config"
	"github.com/gmsas95/docdesk/internal/cron"
	"github.com/gmsas95/docdesk/internal/duplicates"
	"github.com/gmsas95/docdesk/internal/idempotency"
	"github.com/gmsas95/docdesk/internal/locking"
	"github.com/gmsas95/docdesk/internal/metrics"
	"github.com/gmsas95/docdesk/internal/pages"
	"github.com/gmsas95/docdesk/internal/review"
	"github.com/gmsas95/docdesk/internal/revision"
	"github.com/gmsas95/docdesk/internal/store"
)

const auditBuffer = 1024

type App struct {
	Config  *config.Config
	Store   *store.Store
	Logger  *zap.Logger
	Version string

	Blobs      blob.Store
	Metrics    *metrics.Metrics
	Audit      *audit.LogRecorder
	Cache      *idempotency.Cache
	Locks      *locking.Manager
	Pages      *pages.Service
	Duplicates *duplicates.Detector
	Revisions  *revision.Manager
	Review     *review.Navigator
	CronRunner *cron.Runner
}

// New builds every component over an open store
func New(ctx context.Context, cfg *config.Config, st *store.Store, logger *zap.Logger, version string) (*App, error) {
	blobs, err := blob.New(ctx, &cfg.Blob, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open blob store: %w", err)
	}
	return NewWithBlobs(cfg, st, blobs, logger, version), nil
}

// NewWithBlobs is New with an explicit binary store
func NewWithBlobs(cfg *config.Config, st *store.Store, blobs blob.Store, logger *zap.Logger, version string) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{
		Config:  cfg,
		Store:   st,
		Logger:  logger,
		Version: version,
		Blobs:   blobs,
		Metrics: metrics.Default(),
		Audit:   audit.NewLogRecorder(logger, auditBuffer),
	}

	app.Cache = idempotency.NewCache(st.Badger(), cfg.Idempotency.TTL, logger)
	app.Locks = locking.NewManager(st, locking.Options{
		TTL:     cfg.Locking.TTL,
		Cache:   app.Cache,
		Metrics: app.Metrics,
		Audit:   app.Audit,
		Logger:  logger,
	})
	app.Duplicates = duplicates.NewDetector(st, duplicates.Options{
		Threshold:     cfg.Duplicates.Threshold,
		LookbackDays:  cfg.Duplicates.LookbackDays,
		MaxCandidates: cfg.Duplicates.MaxCandidates,
		Metrics:       app.Metrics,
		Audit:         app.Audit,
		Logger:        logger,
	})
	app.Pages = pages.NewService(st, blobs, app.Locks, pages.Options{
		Cache:      app.Cache,
		Duplicates: app.Duplicates,
		Metrics:    app.Metrics,
		Audit:      app.Audit,
		Logger:     logger,
	})
	app.Revisions = revision.NewManager(st, app.Metrics, app.Audit, logger)
	app.Review = review.NewNavigator(st)

	return app
}

// MaintenanceJobs are the housekeeping tasks the cron runner schedules
func (app *App) MaintenanceJobs() []cron.Job {
	return []cron.Job{
		{Name: "expired-locks", Run: func(ctx context.Context) error {
			_, err := app.Locks.Sweep(ctx)
			return err
		}},
		{Name: "badger-gc", Run: func(ctx context.Context) error {
			return app.Cache.RunGC()
		}},
	}
}

// Server builds the HTTP API over the app's components
func (app *App) Server() *api.Server {
	api.Version = app.Version
	return api.New(app.Config, api.Services{
		Pages:      app.Pages,
		Locks:      app.Locks,
		Duplicates: app.Duplicates,
		Revisions:  app.Revisions,
		Review:     app.Review,
		Metrics:    app.Metrics,
	}, app.Logger)
}

// RunServer serves the API until SIGINT or SIGTERM
func (app *App) RunServer() error {
	if app.Config.Maintenance.Enabled {
		app.CronRunner = cron.NewRunner(cron.Config{
			Schedule: app.Config.Maintenance.Schedule,
		}, app.Logger, app.MaintenanceJobs()...)
		if err := app.CronRunner.Start(); err != nil {
			return fmt.Errorf("failed to start cron runner: %w", err)
		}
	}

	if app.Config.Security.EphemeralSecret {
		app.Logger.Warn("security.jwt_secret is not configured; tokens will not survive a restart")
	}

	server := app.Server()
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	app.Logger.Info("Server started",
		zap.String("address", app.Config.HTTPAddress()),
		zap.String("version", app.Version),
		zap.String("blob_backend", app.Config.Blob.Backend),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var serveErr error
	select {
	case <-quit:
	case serveErr = <-errCh:
		app.Logger.Error("Server error", zap.Error(serveErr))
	}

	app.Logger.Info("Shutting down...")

	if app.CronRunner != nil {
		app.CronRunner.Stop()
	}
	if err := server.Shutdown(); err != nil {
		app.Logger.Error("Server shutdown error", zap.Error(err))
	}
	app.Close()
	return serveErr
}

// Close flushes the audit log and releases the blob backend
func (app *App) Close() {
	if app.Audit != nil {
		app.Audit.Close()
	}
	if closer, ok := app.Blobs.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			app.Logger.Warn("Failed to close blob store", zap.Error(err))
		}
	}
}

// NewLogger builds the process logger from the log settings
func NewLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	var zc zap.Config
	if cfg.Format == "json" {
		zc = zap.NewProductionConfig()
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.DateTime)
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
