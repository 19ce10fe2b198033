// Package stats keeps running train statistics over the observation stream
// and exposes them, together with poll cycle counters, as Prometheus metrics.
package stats

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/traintracker-data/internal/observation"
)

const namespace = "traintracker"

// TrainStatistics is the aggregate of a set of trains. AverageDelay is the
// mean delay, in minutes, of the delayed trains only.
type TrainStatistics struct {
	TotalTrains      int
	OnScheduleTrains int
	DelayedTrains    int
	AverageDelay     float64
}

type Snapshot struct {
	Overall      TrainStatistics
	Routes       map[string]TrainStatistics
	Observations map[observation.Feed]int
}

type trainState struct {
	routeID string
	delay   int32
}

func (t trainState) onSchedule() bool {
	return t.delay <= 0
}

// Collector is an observation sink and a poll cycle observer.
type Collector struct {
	mu           sync.Mutex
	trains       map[string]trainState
	observations map[observation.Feed]int

	registry *prometheus.Registry

	trainsTotal      prometheus.Gauge
	trainsOnSchedule prometheus.Gauge
	trainsDelayed    prometheus.Gauge
	averageDelay     prometheus.Gauge

	routeTrains       *prometheus.GaugeVec
	routeOnSchedule   *prometheus.GaugeVec
	routeDelayed      *prometheus.GaugeVec
	routeAverageDelay *prometheus.GaugeVec

	observationsTotal *prometheus.CounterVec
	cyclesTotal       *prometheus.CounterVec
	cycleDuration     *prometheus.HistogramVec
	skippedTotal      *prometheus.CounterVec
}

func NewCollector() *Collector {
	c := &Collector{
		trains:       make(map[string]trainState),
		observations: make(map[observation.Feed]int),
		registry:     prometheus.NewRegistry(),

		trainsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "trains",
			Help: "Trains currently tracked.",
		}),
		trainsOnSchedule: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "trains_on_schedule",
			Help: "Tracked trains with a delay of zero minutes or less.",
		}),
		trainsDelayed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "trains_delayed",
			Help: "Tracked trains running late.",
		}),
		averageDelay: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "average_delay_minutes",
			Help: "Mean delay of the delayed trains.",
		}),

		routeTrains: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "route", Name: "trains",
			Help: "Trains currently tracked per route.",
		}, []string{"route"}),
		routeOnSchedule: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "route", Name: "trains_on_schedule",
			Help: "On-schedule trains per route.",
		}, []string{"route"}),
		routeDelayed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "route", Name: "trains_delayed",
			Help: "Delayed trains per route.",
		}, []string{"route"}),
		routeAverageDelay: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "route", Name: "average_delay_minutes",
			Help: "Mean delay of the delayed trains per route.",
		}, []string{"route"}),

		observationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "observations_total",
			Help: "Observations emitted per feed.",
		}, []string{"feed"}),
		cyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "poller", Name: "cycles_total",
			Help: "Completed poll cycles per feed and result.",
		}, []string{"feed", "result"}),
		cycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "poller", Name: "cycle_duration_seconds",
			Help:    "Duration of fetch and merge per poll cycle.",
			Buckets: prometheus.DefBuckets,
		}, []string{"feed"}),
		skippedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "poller", Name: "ticks_skipped_total",
			Help: "Ticks dropped because the previous cycle was still running.",
		}, []string{"feed"}),
	}

	c.registry.MustRegister(
		c.trainsTotal, c.trainsOnSchedule, c.trainsDelayed, c.averageDelay,
		c.routeTrains, c.routeOnSchedule, c.routeDelayed, c.routeAverageDelay,
		c.observationsTotal, c.cyclesTotal, c.cycleDuration, c.skippedTotal,
	)
	return c
}

// Registry is served on the metrics endpoint.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Append records the train's current route and delay.
func (c *Collector) Append(_ context.Context, obs observation.Observation) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if obs.Feed != "" {
		c.observations[obs.Feed]++
		c.observationsTotal.WithLabelValues(string(obs.Feed)).Inc()
	}

	prev, known := c.trains[obs.TrainID]
	c.trains[obs.TrainID] = trainState{routeID: obs.RouteID, delay: obs.Delay}

	c.publishOverall()
	c.publishRoute(obs.RouteID)
	if known && prev.routeID != obs.RouteID {
		c.publishRoute(prev.routeID)
	}
	return nil
}

// Remove forgets evicted trains.
func (c *Collector) Remove(_ context.Context, trainIDs ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	touched := make(map[string]struct{})
	for _, id := range trainIDs {
		t, ok := c.trains[id]
		if !ok {
			continue
		}
		delete(c.trains, id)
		touched[t.routeID] = struct{}{}
	}
	if len(touched) == 0 {
		return nil
	}

	c.publishOverall()
	for route := range touched {
		c.publishRoute(route)
	}
	return nil
}

func (c *Collector) CycleCompleted(feed string, duration time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	c.cyclesTotal.WithLabelValues(feed, result).Inc()
	c.cycleDuration.WithLabelValues(feed).Observe(duration.Seconds())
}

func (c *Collector) TickSkipped(feed string) {
	c.skippedTotal.WithLabelValues(feed).Inc()
}

// Snapshot returns the current statistics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		Overall:      c.aggregate(func(trainState) bool { return true }),
		Routes:       make(map[string]TrainStatistics),
		Observations: make(map[observation.Feed]int, len(c.observations)),
	}
	for _, route := range c.routes() {
		snap.Routes[route] = c.aggregate(onRoute(route))
	}
	for feed, n := range c.observations {
		snap.Observations[feed] = n
	}
	return snap
}

func onRoute(route string) func(trainState) bool {
	return func(t trainState) bool { return t.routeID == route }
}

func (c *Collector) routes() []string {
	seen := make(map[string]struct{})
	for _, t := range c.trains {
		seen[t.routeID] = struct{}{}
	}
	routes := make([]string, 0, len(seen))
	for r := range seen {
		routes = append(routes, r)
	}
	sort.Strings(routes)
	return routes
}

func (c *Collector) aggregate(include func(trainState) bool) TrainStatistics {
	var s TrainStatistics
	var delaySum int64
	for _, t := range c.trains {
		if !include(t) {
			continue
		}
		s.TotalTrains++
		if t.onSchedule() {
			s.OnScheduleTrains++
			continue
		}
		s.DelayedTrains++
		delaySum += int64(t.delay)
	}
	if s.DelayedTrains > 0 {
		s.AverageDelay = float64(delaySum) / float64(s.DelayedTrains)
	}
	return s
}

func (c *Collector) publishOverall() {
	s := c.aggregate(func(trainState) bool { return true })
	c.trainsTotal.Set(float64(s.TotalTrains))
	c.trainsOnSchedule.Set(float64(s.OnScheduleTrains))
	c.trainsDelayed.Set(float64(s.DelayedTrains))
	c.averageDelay.Set(s.AverageDelay)
}

func (c *Collector) publishRoute(route string) {
	s := c.aggregate(onRoute(route))
	if s.TotalTrains == 0 {
		c.routeTrains.DeleteLabelValues(route)
		c.routeOnSchedule.DeleteLabelValues(route)
		c.routeDelayed.DeleteLabelValues(route)
		c.routeAverageDelay.DeleteLabelValues(route)
		return
	}
	c.routeTrains.WithLabelValues(route).Set(float64(s.TotalTrains))
	c.routeOnSchedule.WithLabelValues(route).Set(float64(s.OnScheduleTrains))
	c.routeDelayed.WithLabelValues(route).Set(float64(s.DelayedTrains))
	c.routeAverageDelay.WithLabelValues(route).Set(s.AverageDelay)
}
