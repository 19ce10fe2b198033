package gtfs_realtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/traintracker-data/internal/common/config"
	"github.com/traintracker-data/internal/common/logger"
	"github.com/traintracker-data/internal/common/maintenance"
	"github.com/traintracker-data/internal/gtfs-realtime/consumer"
	"github.com/traintracker-data/internal/gtfs-realtime/processor"
	"github.com/traintracker-data/internal/observation"
)

// Options carries the optional collaborators of a Manager.
type Options struct {
	Observer consumer.CycleObserver
	Cleanup  *maintenance.CleanupScheduler
}

// Manager runs the position and adherence pollers against one processor.
type Manager struct {
	config    config.RealtimeConfig
	logger    logger.Logger
	processor *processor.Processor
	positions *consumer.Poller
	adherence *consumer.Poller
	cleanup   *maintenance.CleanupScheduler

	mu        sync.RWMutex
	isRunning bool
	cancelFn  context.CancelFunc
}

func NewManager(cfg config.RealtimeConfig, proc *processor.Processor, log logger.Logger, opts Options) *Manager {
	m := &Manager{
		config:    cfg,
		logger:    log,
		processor: proc,
		cleanup:   opts.Cleanup,
	}

	var pollerOpts []consumer.Option
	if opts.Observer != nil {
		pollerOpts = append(pollerOpts, consumer.WithObserver(opts.Observer))
	}

	m.positions = consumer.NewPoller(string(observation.FeedPositions),
		m.fetcher(cfg.Positions), consumer.HandlerFunc(m.handlePositions), log, pollerOpts...)
	m.adherence = consumer.NewPoller(string(observation.FeedAdherence),
		m.fetcher(cfg.Adherence), consumer.HandlerFunc(m.handleAdherence), log, pollerOpts...)
	return m
}

func (m *Manager) fetcher(feed config.FeedConfig) consumer.Fetcher {
	return consumer.NewHTTPFetcher(consumer.FetcherConfig{
		URL:          feed.URL,
		APIKeyHeader: m.config.APIKeyHeader,
		APIKey:       m.config.APIKey,
		Timeout:      m.config.RequestTimeout,
	})
}

func (m *Manager) handlePositions(ctx context.Context, feed *gtfs.FeedMessage) error {
	res, err := m.processor.HandlePositions(ctx, feed)
	m.logger.Debug("Processed position feed",
		"entities", res.Entities,
		"applied", res.Applied,
		"vehicles", m.processor.Store().Len())
	return err
}

func (m *Manager) handleAdherence(ctx context.Context, feed *gtfs.FeedMessage) error {
	res, err := m.processor.HandleAdherence(ctx, feed)
	m.logger.Debug("Processed adherence feed",
		"entities", res.Entities,
		"applied", res.Applied)
	return err
}

func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isRunning {
		return fmt.Errorf("GTFS-realtime manager is already running")
	}

	if err := m.validateConfig(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	m.cancelFn = cancel

	if err := m.positions.Start(ctx, m.config.Positions.Interval, m.config.Positions.InitialDelay); err != nil {
		cancel()
		return fmt.Errorf("failed to start position poller: %w", err)
	}

	if err := m.adherence.Start(ctx, m.config.Adherence.Interval, m.config.Adherence.InitialDelay); err != nil {
		m.positions.Stop()
		cancel()
		return fmt.Errorf("failed to start adherence poller: %w", err)
	}

	if m.cleanup != nil {
		if err := m.cleanup.Start(ctx); err != nil {
			m.positions.Stop()
			m.adherence.Stop()
			cancel()
			return fmt.Errorf("failed to start cleanup scheduler: %w", err)
		}
	}

	m.isRunning = true
	m.logger.Info("GTFS-realtime manager started successfully",
		"positions_interval", m.config.Positions.Interval,
		"adherence_interval", m.config.Adherence.Interval)

	return nil
}

// Stop halts both pollers and waits for in-flight cycles.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.isRunning {
		return
	}

	m.logger.Info("Stopping GTFS-realtime manager")

	if m.cancelFn != nil {
		m.cancelFn()
	}

	m.positions.Stop()
	m.adherence.Stop()
	if m.cleanup != nil {
		m.cleanup.Stop()
	}

	m.isRunning = false
	m.logger.Info("GTFS-realtime manager stopped", "vehicles", m.processor.Store().Len())
}

func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isRunning
}

func (m *Manager) validateConfig() error {
	if m.config.APIKey == "" {
		return fmt.Errorf("API key is required")
	}

	feeds := map[string]config.FeedConfig{
		"positions": m.config.Positions,
		"adherence": m.config.Adherence,
	}
	for name, feed := range feeds {
		if feed.URL == "" {
			return fmt.Errorf("%s feed URL cannot be empty", name)
		}
		if feed.Interval <= 0 {
			return fmt.Errorf("%s polling interval must be positive", name)
		}
		if feed.InitialDelay < 0 {
			return fmt.Errorf("%s initial delay cannot be negative", name)
		}
	}

	return nil
}
