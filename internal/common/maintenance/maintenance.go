package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/traintracker-data/internal/common/logger"
	"github.com/traintracker-data/internal/observation"
)

// Evictor drops vehicles last updated before cutoff (epoch seconds) and
// returns their ids. Contains reports whether a vehicle is live again.
type Evictor interface {
	EvictOlderThan(cutoff int64) []string
	Contains(id string) bool
}

// CleanupResult represents the result of one eviction pass
type CleanupResult struct {
	Cutoff int64
	// Evicted lists vehicles dropped and not sighted again before removal.
	Evicted  []string
	Duration time.Duration
	Success  bool
	Error    string
}

// Maintenance evicts stale vehicles and tells the sinks about it
type Maintenance struct {
	store   Evictor
	remover observation.Remover
	logger  logger.Logger
	now     func() time.Time
}

// New creates a new Maintenance instance. remover may be nil.
func New(store Evictor, remover observation.Remover, logger logger.Logger) *Maintenance {
	return &Maintenance{
		store:   store,
		remover: remover,
		logger:  logger,
		now:     time.Now,
	}
}

// EvictStaleVehicles removes every vehicle whose last update is older than
// retention and propagates the removal to the sinks.
func (m *Maintenance) EvictStaleVehicles(ctx context.Context, retention time.Duration) CleanupResult {
	start := m.now()
	result := CleanupResult{Cutoff: start.Add(-retention).Unix()}

	result.Evicted = m.store.EvictOlderThan(result.Cutoff)
	if len(result.Evicted) == 0 {
		result.Success = true
		result.Duration = m.now().Sub(start)
		m.logger.Debug("No stale vehicles", "cutoff", result.Cutoff)
		return result
	}

	m.logger.Info("Evicted stale vehicles",
		"count", len(result.Evicted),
		"retention", retention,
		"cutoff", result.Cutoff)

	if m.remover != nil {
		// a vehicle sighted again since eviction already has fresh sink state
		gone := make([]string, 0, len(result.Evicted))
		for _, id := range result.Evicted {
			if !m.store.Contains(id) {
				gone = append(gone, id)
			}
		}
		if len(gone) < len(result.Evicted) {
			m.logger.Debug("Skipping removal of re-sighted vehicles", "count", len(result.Evicted)-len(gone))
		}
		result.Evicted = gone
		if len(gone) == 0 {
			result.Success = true
			result.Duration = m.now().Sub(start)
			return result
		}
		if err := m.remover.Remove(ctx, gone...); err != nil {
			result.Error = fmt.Sprintf("removing evicted vehicles from sinks: %v", err)
			result.Duration = m.now().Sub(start)
			return result
		}
	}

	result.Success = true
	result.Duration = m.now().Sub(start)
	return result
}
