package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/traintracker-data/internal/common/config"
	"github.com/traintracker-data/internal/common/logger"
	"github.com/traintracker-data/internal/gtfs-static/parser"
	"github.com/traintracker-data/internal/gtfs-static/schedule"
	"github.com/traintracker-data/internal/gtfs-static/scraper"
)

func scheduleCommand() *cli.Command {
	return &cli.Command{
		Name:  "schedule",
		Usage: "Fetch the static snapshot if needed and report what the schedule index holds",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "refresh",
				Usage: "download the snapshot even if one exists",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if c.Bool("refresh") {
				cfg.Static.Refresh = true
			}
			if err := config.Check(cfg.Static); err != nil {
				return err
			}
			if err := config.Check(cfg.Logging); err != nil {
				return err
			}

			log := newLogger(cfg.Logging)
			index, err := loadSchedule(c.Context, cfg, log)
			if err != nil {
				return err
			}

			stats := index.Stats()
			fmt.Fprintf(c.App.Writer, "agencies: %d\nroutes: %d\nstops: %d\ntrips: %d\nstop times: %d\n",
				stats.Agencies, stats.Routes, stats.Stops, stats.Trips, stats.StopTimes)
			return nil
		},
	}
}

// loadSchedule makes sure the static snapshot is on disk and builds the
// schedule index from it.
func loadSchedule(ctx context.Context, cfg *config.Config, log logger.Logger) (*schedule.Index, error) {
	downloader := scraper.NewHTTPDownloader(scraper.DownloaderConfig{
		APIKeyHeader: cfg.Realtime.APIKeyHeader,
		APIKey:       cfg.Static.APIKey,
	}, log)
	if err := downloader.EnsureSnapshot(ctx, cfg.Static.URL, cfg.Static.Path, cfg.Static.Refresh); err != nil {
		return nil, fmt.Errorf("acquiring static snapshot: %w", err)
	}

	var opts []parser.Option
	if cfg.Static.NestedArchive != "" {
		opts = append(opts, parser.WithNestedArchive(cfg.Static.NestedArchive))
	}

	index, err := schedule.NewLoader(parser.New(log, opts...), log).Load(ctx, cfg.Static.Path)
	if err != nil {
		return nil, fmt.Errorf("building schedule index: %w", err)
	}
	return index, nil
}
