package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/traintracker-data/internal/common/logger"
	"github.com/traintracker-data/internal/gtfs-static/parser"
	"github.com/traintracker-data/pkg/gtfs-static/models"
)

// Loader builds an Index from a static GTFS zip on disk.
type Loader struct {
	parser *parser.Parser
	logger logger.Logger
}

func NewLoader(p *parser.Parser, log logger.Logger) *Loader {
	return &Loader{parser: p, logger: log}
}

func (l *Loader) Load(ctx context.Context, zipPath string) (*Index, error) {
	start := time.Now()
	b := NewBuilder()
	skipped := 0

	err := l.parser.ParseZip(ctx, zipPath, parser.ParseCallbacks{
		OnAgency: func(a *models.Agency) error {
			b.AddAgency(a)
			return nil
		},
		OnStop: func(s *models.Stop) error {
			b.AddStop(s)
			return nil
		},
		OnRoute: func(r *models.Route) error {
			b.AddRoute(r)
			return nil
		},
		OnTrip: func(t *models.Trip) error {
			b.AddTrip(t)
			return nil
		},
		OnStopTime: func(st *models.StopTime) error {
			if err := b.AddStopTime(st); err != nil {
				skipped++
				l.logger.Warn("Skipping stop time", "error", err)
			}
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("loading schedule from %s: %w", zipPath, err)
	}

	idx := b.Build()
	stats := idx.Stats()
	l.logger.Info("Schedule index built",
		"agencies", stats.Agencies,
		"routes", stats.Routes,
		"stops", stats.Stops,
		"trips", stats.Trips,
		"stop_times", stats.StopTimes,
		"skipped_stop_times", skipped,
		"duration", time.Since(start),
	)
	return idx, nil
}
