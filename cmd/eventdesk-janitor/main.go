package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"github.com/mindara-hq/eventdesk/pkg/auth"
	"github.com/mindara-hq/eventdesk/pkg/config"
	"github.com/mindara-hq/eventdesk/pkg/notifications"
	"github.com/mindara-hq/eventdesk/pkg/observability"
	"github.com/mindara-hq/eventdesk/pkg/policy"
	"github.com/mindara-hq/eventdesk/pkg/reports"
	"github.com/mindara-hq/eventdesk/pkg/storage"
)

const (
	sweepSchedule = "*/5 * * * *" // expired notifications
	purgeSchedule = "17 * * * *"  // expired sessions
	pruneSchedule = "40 3 * * *"  // report history

	historyRetention = 90 * 24 * time.Hour
	jobTimeout       = 2 * time.Minute
)

func main() {
	runOnce := flag.Bool("run-once", false, "run every job once and exit")
	flag.Parse()

	if err := run(*runOnce); err != nil {
		fmt.Fprintf(os.Stderr, "eventdesk-janitor: %v\n", err)
		os.Exit(1)
	}
}

type job struct {
	name     string
	schedule string
	fn       func(context.Context) (int64, error)
}

func run(runOnce bool) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	db, err := storage.Connect(cfg.Storage)
	if err != nil {
		return err
	}
	defer db.Close()

	var cache *storage.RedisClient
	if cfg.Storage.RedisURL != "" {
		if cache, err = storage.NewRedisClient(cfg.Storage); err != nil {
			logger.WithError(err).Warn("redis unavailable, unread caches will expire on their own")
			cache = nil
		} else {
			defer cache.Close()
		}
	}

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	engine := policy.NewEngine(0, 0, metrics)
	notifService := notifications.NewService(notifications.NewStore(db), engine, cache, metrics, logger)
	sessions := auth.NewStore(db)
	history := reports.NewHistoryStore(db)

	jobs := []job{
		{"sweep-expired-notifications", sweepSchedule, notifService.SweepExpired},
		{"purge-expired-sessions", purgeSchedule, sessions.PurgeExpiredSessions},
		{"prune-report-history", pruneSchedule, func(ctx context.Context) (int64, error) {
			return history.Prune(ctx, time.Now().Add(-historyRetention))
		}},
	}

	if runOnce {
		for _, j := range jobs {
			runJob(logger, j)
		}
		return nil
	}

	c := cron.New()
	for _, j := range jobs {
		j := j
		if _, err := c.AddFunc(j.schedule, func() { runJob(logger, j) }); err != nil {
			return fmt.Errorf("scheduling %s: %w", j.name, err)
		}
	}
	c.Start()
	logger.Infof("janitor running with %d jobs", len(jobs))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("janitor stopping")
	<-c.Stop().Done()
	return nil
}

func runJob(logger *observability.Logger, j job) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	defer observability.RecoverPanic(logger, j.name)

	start := time.Now()
	count, err := j.fn(ctx)
	entry := logger.WithFields(map[string]interface{}{
		"job":         j.name,
		"count":       count,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Error("janitor job failed")
		return
	}
	entry.Info("janitor job complete")
}
