package processor

import (
	"context"
	"fmt"

	"github.com/traintracker-data/internal/common/logger"
	"github.com/traintracker-data/internal/gtfs-static/schedule"
	"github.com/traintracker-data/internal/observation"
)

// Emitter receives a snapshot of every vehicle record a source record touched.
type Emitter interface {
	Emit(ctx context.Context, feed observation.Feed, p observation.Projector) error
}

// PositionUpdate is one vehicle sighting from the position feed.
type PositionUpdate struct {
	VehicleID    string
	TripID       string
	RouteID      string
	StopSequence int
	Status       string
	Position     *observation.Point
	Bearing      float64
	Timestamp    int64
}

// StopUpdate is a predicted arrival/departure at one stop. Times are epoch
// seconds; zero means absent.
type StopUpdate struct {
	StopID    string
	Arrival   int64
	Departure int64
}

// time returns the arrival, else the departure, else 0.
func (u StopUpdate) time() int64 {
	if u.Arrival != 0 {
		return u.Arrival
	}
	return u.Departure
}

// AdherenceUpdate is one trip update from the adherence feed.
type AdherenceUpdate struct {
	VehicleID   string
	TripID      string
	Scheduled   bool
	StopUpdates []StopUpdate
	Timestamp   int64
}

// Processor merges feed records into the vehicle store and emits the result.
type Processor struct {
	index   *schedule.Index
	store   *Store
	emitter Emitter
	logger  logger.Logger
}

// New wires a processor over a fully built index.
func New(index *schedule.Index, emitter Emitter, log logger.Logger) (*Processor, error) {
	if !index.Ready() {
		return nil, schedule.ErrNotInitialized
	}
	if emitter == nil {
		return nil, fmt.Errorf("emitter is required")
	}
	return &Processor{
		index:   index,
		store:   NewStore(),
		emitter: emitter,
		logger:  log,
	}, nil
}

func (p *Processor) Store() *Store {
	return p.store
}

// ApplyPosition merges a position record, creating the vehicle on first
// sighting, and emits the updated record.
func (p *Processor) ApplyPosition(ctx context.Context, u PositionUpdate) error {
	if u.VehicleID == "" {
		return nil
	}

	e := p.store.lockOrCreate(u.VehicleID)
	defer e.mu.Unlock()
	v := &e.vehicle

	if u.TripID != v.TripID {
		v.RouteID = u.RouteID
		if v.RouteID == "" {
			v.RouteID = p.index.TripRouteID(u.TripID)
		}
		v.RouteColor = 0
		if route, ok := p.index.Route(v.RouteID); ok {
			v.RouteColor = route.Color
		}

		v.TripID = u.TripID
		summary := p.index.TripSummary(v.TripID)
		v.Origin = summary.Origin
		v.Destination = summary.Destination
		v.NumberOfStops = summary.NumberOfStops
	}

	sequenceChanged := u.StopSequence != v.StopSequence
	if sequenceChanged {
		v.StopSequence = u.StopSequence
		if stop, ok := p.index.StopAtSequence(v.TripID, v.StopSequence); ok {
			v.StopID = stop.ID
			v.ScheduledTime = p.index.ScheduledTime(v.TripID, v.StopSequence)
		} else {
			v.StopID = ""
			v.StopName = ""
			v.ScheduledTime = 0
		}
	}

	if sequenceChanged || u.Status != v.Status {
		v.Status = u.Status
		if v.Status == StatusStopped {
			v.StopName = p.index.StationName(v.StopID)
		} else {
			v.StopName = p.index.NextStationName(v.TripID, v.StopSequence)
		}
	}

	if u.Position != nil {
		pos := *u.Position
		v.Position = &pos
	}
	v.Bearing = u.Bearing
	v.Timestamp = u.Timestamp

	if err := p.emitter.Emit(ctx, observation.FeedPositions, v.clone()); err != nil {
		return fmt.Errorf("emitting position for vehicle %s: %w", v.ID, err)
	}
	return nil
}

// ApplyAdherence merges a trip update into an already tracked vehicle. It
// reports whether the record was applied; rejected records change nothing
// and emit nothing.
func (p *Processor) ApplyAdherence(ctx context.Context, u AdherenceUpdate) (bool, error) {
	if !u.Scheduled || u.VehicleID == "" {
		return false, nil
	}

	e, ok := p.store.lockExisting(u.VehicleID)
	if !ok {
		p.logger.Debug("Dropping trip update for unknown vehicle", "vehicle_id", u.VehicleID)
		return false, nil
	}
	defer e.mu.Unlock()
	v := &e.vehicle

	if v.Position == nil {
		p.logger.Debug("Dropping trip update for vehicle without position", "vehicle_id", u.VehicleID)
		return false, nil
	}

	if v.StopID != "" {
		for _, su := range u.StopUpdates {
			if su.StopID == v.StopID {
				v.Delay = CalculateDelay(v.ScheduledTime, su.time())
				break
			}
		}
	}

	// A trip update without a timestamp keeps the last one.
	if u.Timestamp != 0 {
		v.Timestamp = u.Timestamp
	}

	if err := p.emitter.Emit(ctx, observation.FeedAdherence, v.clone()); err != nil {
		return true, fmt.Errorf("emitting adherence for vehicle %s: %w", v.ID, err)
	}
	return true, nil
}
