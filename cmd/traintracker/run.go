package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sourcegraph/conc"
	"github.com/urfave/cli/v2"

	"github.com/traintracker-data/internal/common/config"
	"github.com/traintracker-data/internal/common/db"
	"github.com/traintracker-data/internal/common/logger"
	"github.com/traintracker-data/internal/common/maintenance"
	gtfs_realtime "github.com/traintracker-data/internal/gtfs-realtime"
	"github.com/traintracker-data/internal/gtfs-realtime/processor"
	"github.com/traintracker-data/internal/observation"
	"github.com/traintracker-data/internal/sink/pgsink"
	"github.com/traintracker-data/internal/sink/redissink"
	"github.com/traintracker-data/internal/stats"
)

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Poll both realtime feeds and emit train observations until interrupted",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(c.Context, cfg, newLogger(cfg.Logging))
		},
	}
}

func run(parent context.Context, cfg *config.Config, log logger.Logger) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("Train tracker starting",
		"version", version,
		"log_level", cfg.Logging.Level,
		"static_path", cfg.Static.Path,
		"positions_url", cfg.Realtime.Positions.URL,
		"adherence_url", cfg.Realtime.Adherence.URL)

	index, err := loadSchedule(ctx, cfg, log)
	if err != nil {
		return err
	}

	collector := stats.NewCollector()
	sinks := observation.MultiSink{collector}

	if cfg.Redis.Enabled {
		client, err := redissink.Connect(ctx, cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer closeRedis(client, log)
		sinks = append(sinks, redissink.New(client, redissink.Options{
			KeyPrefix: cfg.Redis.KeyPrefix,
			Channel:   cfg.Redis.Channel,
		}))
		log.Info("Redis sink enabled", "address", cfg.Redis.Address, "channel", cfg.Redis.Channel)
	}

	if cfg.Database.Enabled {
		database, err := db.New(ctx, cfg.Database.ConnectionString(), log)
		if err != nil {
			return err
		}
		defer database.Close()
		pg := pgsink.New(database, cfg.Database.Table, log)
		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}
		sinks = append(sinks, pg)
	}

	proc, err := processor.New(index, observation.NewEmitter(sinks), log)
	if err != nil {
		return err
	}

	cleanup := maintenance.NewCleanupScheduler(
		maintenance.New(proc.Store(), sinks, log),
		log,
		maintenance.SchedulerConfig{
			CleanupInterval:  cfg.Maintenance.CleanupInterval,
			VehicleRetention: cfg.Maintenance.VehicleRetention,
		},
	)

	manager := gtfs_realtime.NewManager(cfg.Realtime, proc, log, gtfs_realtime.Options{
		Observer: collector,
		Cleanup:  cleanup,
	})

	var wg conc.WaitGroup
	var metrics *http.Server
	if cfg.Metrics.Address != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(collector.Registry(), promhttp.HandlerOpts{}))
		metrics = &http.Server{Addr: cfg.Metrics.Address, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		wg.Go(func() {
			log.Info("Serving metrics", "address", cfg.Metrics.Address)
			if err := metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Metrics server failed", "error", err)
			}
		})
	}

	if err := manager.Start(ctx); err != nil {
		return fmt.Errorf("starting realtime manager: %w", err)
	}

	<-ctx.Done()
	log.Info("Shutdown signal received")

	manager.Stop()

	if metrics != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metrics.Shutdown(shutdownCtx); err != nil {
			log.Warn("Metrics server shutdown", "error", err)
		}
	}
	wg.Wait()

	snap := collector.Snapshot()
	log.Info("Train tracker stopped",
		"trains", snap.Overall.TotalTrains,
		"on_schedule", snap.Overall.OnScheduleTrains,
		"delayed", snap.Overall.DelayedTrains)
	return nil
}

func closeRedis(client *redis.Client, log logger.Logger) {
	if err := client.Close(); err != nil {
		log.Warn("Closing redis client", "error", err)
	}
}
