package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/traintracker-data/internal/common/logger"
)

// CleanupScheduler runs vehicle eviction on a fixed interval
type CleanupScheduler struct {
	maintenance *Maintenance
	logger      logger.Logger
	config      SchedulerConfig

	mu        sync.RWMutex
	isRunning bool
	cancelFn  context.CancelFunc
	done      chan struct{}

	runMu      sync.Mutex // one eviction pass at a time
	runs       int
	lastResult *CleanupResult
}

// SchedulerConfig contains configuration for the cleanup scheduler
type SchedulerConfig struct {
	CleanupInterval  time.Duration // How often to look for stale vehicles
	VehicleRetention time.Duration // How long a vehicle survives without updates
}

// DefaultSchedulerConfig returns the default cadence and retention
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		CleanupInterval:  5 * time.Minute,
		VehicleRetention: 30 * time.Minute,
	}
}

func NewCleanupScheduler(m *Maintenance, logger logger.Logger, config SchedulerConfig) *CleanupScheduler {
	return &CleanupScheduler{
		maintenance: m,
		logger:      logger,
		config:      config,
	}
}

// Start begins the cleanup scheduling
func (s *CleanupScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("cleanup scheduler is already running")
	}
	if s.config.CleanupInterval <= 0 {
		return fmt.Errorf("cleanup interval must be positive, got %s", s.config.CleanupInterval)
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancelFn = cancel
	s.done = make(chan struct{})
	s.isRunning = true

	s.logger.Info("Starting cleanup scheduler",
		"interval", s.config.CleanupInterval,
		"retention", s.config.VehicleRetention)

	go s.cleanupLoop(ctx, s.done)

	return nil
}

// Stop stops the scheduler and waits for an in-flight pass to finish
func (s *CleanupScheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}

	s.logger.Info("Stopping cleanup scheduler")
	s.cancelFn()
	done := s.done
	s.isRunning = false
	s.mu.Unlock()

	<-done
	s.logger.Info("Cleanup scheduler stopped")
}

func (s *CleanupScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

func (s *CleanupScheduler) cleanupLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Cleanup loop stopping")
			return
		case <-ticker.C:
			s.performCleanup(ctx)
		}
	}
}

func (s *CleanupScheduler) performCleanup(ctx context.Context) CleanupResult {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	result := s.maintenance.EvictStaleVehicles(ctx, s.config.VehicleRetention)
	s.runs++
	s.lastResult = &result

	if !result.Success {
		s.logger.Error("Vehicle cleanup failed",
			"error", result.Error,
			"evicted", len(result.Evicted),
			"duration", result.Duration)
	}
	return result
}

// TriggerCleanup runs an eviction pass immediately
func (s *CleanupScheduler) TriggerCleanup(ctx context.Context) CleanupResult {
	s.logger.Info("Manual vehicle cleanup triggered")
	return s.performCleanup(ctx)
}

// GetStatus returns the current status of the cleanup scheduler
func (s *CleanupScheduler) GetStatus() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.runMu.Lock()
	defer s.runMu.Unlock()

	status := map[string]interface{}{
		"is_running":        s.isRunning,
		"cleanup_interval":  s.config.CleanupInterval.String(),
		"vehicle_retention": s.config.VehicleRetention.String(),
		"runs":              s.runs,
	}
	if s.lastResult != nil {
		status["last_evicted"] = len(s.lastResult.Evicted)
		status["last_success"] = s.lastResult.Success
	}
	return status
}
