package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	domrepo "CandleGrid/internal/domain/repository"
	internalrepo "CandleGrid/internal/repository"
	icache "CandleGrid/internal/service/cache"
	"CandleGrid/internal/service/ratelimit"
	"CandleGrid/pkg/config"
	xhttp "CandleGrid/pkg/http"
	applogger "CandleGrid/pkg/logger"
)

// App encapsulates the entire application lifecycle: the HTTP surface, the
// cache expiry sweeper and the cron-driven storage maintenance jobs.
type App struct {
	cfg     *config.Config
	log     *applogger.Logger
	handler xhttp.Handler
	store   *internalrepo.Manager
	cache   *icache.CandleCache
	events  domrepo.EventPublisher
	limiter *ratelimit.Limiter

	httpServer *xhttp.Server
	scheduler  *cron.Cron
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	handler xhttp.Handler,
	store *internalrepo.Manager,
	cache *icache.CandleCache,
	events domrepo.EventPublisher,
	limiter *ratelimit.Limiter,
) *App {
	return &App{
		cfg:     cfg,
		log:     log,
		handler: handler,
		store:   store,
		cache:   cache,
		events:  events,
		limiter: limiter,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithRequestMetrics(a.log, a.cfg.Server.WriteTimeout/2),
	)
	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}

	a.cache.StartSweeper()
	a.log.Info("cache sweeper started")

	if err := a.startMaintenance(ctx); err != nil {
		a.log.Error("maintenance scheduler error", applogger.Error(err))
		return err
	}

	a.log.Info("application started",
		applogger.Int("port", a.cfg.Server.Port),
		applogger.Strings("symbols", a.cfg.Alignment.RequiredSymbols),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// startMaintenance registers the cron jobs: nightly hot-tier compaction,
// weekly archival and retention cleanup, and daily backups when enabled.
func (a *App) startMaintenance(ctx context.Context) error {
	sched := cron.New(cron.WithSeconds())

	jobs := []struct {
		name string
		spec string
		run  func()
	}{
		{
			name: "compact_hot",
			spec: a.cfg.Maintenance.CompactCron,
			run: func() {
				moved, err := a.store.CompactHot(ctx)
				if err != nil {
					a.log.Error("hot compaction failed", applogger.Error(err))
					return
				}
				a.log.Info("hot compaction done", applogger.Int("candles_moved", moved))
			},
		},
		{
			name: "archive",
			spec: a.cfg.Maintenance.ArchiveCron,
			run: func() {
				moved, err := a.store.CompressOldData(ctx, a.cfg.Storage.ArchiveAfterDays)
				if err != nil {
					a.log.Error("archive pass failed", applogger.Error(err))
					return
				}
				a.log.Info("archive pass done", applogger.Int("files_moved", moved))
			},
		},
		{
			name: "cleanup",
			spec: a.cfg.Maintenance.CleanupCron,
			run: func() {
				removed, err := a.store.CleanupExpiredData(ctx, a.cfg.Storage.RetentionDays)
				if err != nil {
					a.log.Error("retention cleanup failed", applogger.Error(err))
					return
				}
				expired := a.cache.CleanupExpired()
				pruned := 0
				if a.limiter != nil {
					pruned = a.limiter.Prune(time.Hour)
				}
				a.log.Info("retention cleanup done",
					applogger.Int("files_removed", removed),
					applogger.Int("cache_expired", expired),
					applogger.Int("limiter_pruned", pruned),
				)
			},
		},
	}
	if a.cfg.Storage.BackupEnabled {
		jobs = append(jobs, struct {
			name string
			spec string
			run  func()
		}{
			name: "backup",
			spec: a.cfg.Maintenance.BackupCron,
			run: func() {
				if err := a.store.Backup(ctx, ""); err != nil {
					a.log.Error("backup failed", applogger.Error(err))
					return
				}
				pruned, err := a.store.PruneBackups()
				if err != nil {
					a.log.Warn("backup prune failed", applogger.Error(err))
				}
				a.log.Info("backup done", applogger.Int("pruned", pruned))
			},
		})
	}

	for _, job := range jobs {
		if _, err := sched.AddFunc(job.spec, job.run); err != nil {
			return err
		}
		a.log.Info("maintenance job scheduled",
			applogger.String("job", job.name),
			applogger.String("cron", job.spec),
		)
	}

	sched.Start()
	a.scheduler = sched
	return nil
}

// shutdown gracefully stops all services.
func (a *App) shutdown(ctx context.Context) error {
	if a.scheduler != nil {
		<-a.scheduler.Stop().Done()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	if err := a.cache.Close(); err != nil {
		a.log.Warn("cache close error", applogger.Error(err))
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("storage close error", applogger.Error(err))
	}
	if a.events != nil {
		if err := a.events.Close(); err != nil {
			a.log.Warn("publisher close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
