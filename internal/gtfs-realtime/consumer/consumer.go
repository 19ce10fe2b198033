package consumer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"github.com/traintracker-data/internal/common/logger"
)

// Handler consumes a decoded feed message.
type Handler interface {
	HandleFeed(ctx context.Context, feed *gtfs.FeedMessage) error
}

type HandlerFunc func(ctx context.Context, feed *gtfs.FeedMessage) error

func (f HandlerFunc) HandleFeed(ctx context.Context, feed *gtfs.FeedMessage) error {
	return f(ctx, feed)
}

// CycleObserver is told about every tick outcome.
type CycleObserver interface {
	CycleCompleted(feed string, duration time.Duration, err error)
	TickSkipped(feed string)
}

type Option func(*Poller)

func WithObserver(o CycleObserver) Option {
	return func(p *Poller) {
		p.observer = o
	}
}

// Poller runs fetch/handle cycles for one feed on a fixed cadence. A tick
// that arrives while the previous cycle is still running is dropped.
type Poller struct {
	name     string
	fetcher  Fetcher
	handler  Handler
	logger   logger.Logger
	observer CycleObserver

	gate   sync.Mutex // held for the duration of a cycle
	cycles conc.WaitGroup

	mu        sync.Mutex
	isRunning bool
	cancelFn  context.CancelFunc
	loopDone  chan struct{}
}

func NewPoller(name string, fetcher Fetcher, handler Handler, log logger.Logger, opts ...Option) *Poller {
	p := &Poller{
		name:    name,
		fetcher: fetcher,
		handler: handler,
		logger:  log.With("feed", name),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the ticker loop. The first tick fires after initialDelay,
// then every interval.
func (p *Poller) Start(ctx context.Context, interval, initialDelay time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("polling interval must be positive")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isRunning {
		return fmt.Errorf("poller %s is already running", p.name)
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancelFn = cancel
	p.loopDone = make(chan struct{})
	p.isRunning = true

	p.logger.Info("Starting feed poller", "interval", interval, "initial_delay", initialDelay)
	go p.loop(ctx, interval, initialDelay, p.loopDone)
	return nil
}

// Stop cancels in-flight fetches and waits for the loop and any running cycle.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return
	}
	p.cancelFn()
	done := p.loopDone
	p.isRunning = false
	p.mu.Unlock()

	<-done
	p.cycles.Wait()
	p.logger.Info("Feed poller stopped")
}

func (p *Poller) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isRunning
}

func (p *Poller) loop(ctx context.Context, interval, initialDelay time.Duration, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(initialDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
		p.Tick(ctx)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Tick starts one cycle in the background unless a cycle is already in
// progress. It reports whether a cycle was started.
func (p *Poller) Tick(ctx context.Context) bool {
	if !p.gate.TryLock() {
		p.logger.Debug("Skipping tick, previous cycle still running")
		if p.observer != nil {
			p.observer.TickSkipped(p.name)
		}
		return false
	}

	p.cycles.Go(func() {
		defer p.gate.Unlock()
		p.runCycle(ctx)
	})
	return true
}

// Wait blocks until every started cycle has finished.
func (p *Poller) Wait() {
	p.cycles.Wait()
}

func (p *Poller) runCycle(ctx context.Context) {
	start := time.Now()

	var err error
	var pc panics.Catcher
	pc.Try(func() { err = p.cycle(ctx) })
	if r := pc.Recovered(); r != nil {
		err = fmt.Errorf("%s feed cycle panicked: %w", p.name, r.AsError())
	}
	duration := time.Since(start)

	if p.observer != nil {
		p.observer.CycleCompleted(p.name, duration, err)
	}

	switch {
	case err == nil:
		p.logger.Debug("Poll cycle completed", "duration", duration)
	case errors.Is(err, context.Canceled):
		p.logger.Debug("Poll cycle cancelled", "duration", duration)
	default:
		p.logger.Warn("Poll cycle failed", "error", err, "duration", duration)
	}
}

func (p *Poller) cycle(ctx context.Context) error {
	feed, err := p.fetcher.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetching %s feed: %w", p.name, err)
	}
	if err := p.handler.HandleFeed(ctx, feed); err != nil {
		return fmt.Errorf("handling %s feed: %w", p.name, err)
	}
	return nil
}
