package observation

import (
	"context"
	"fmt"
)

// Projector is anything that can be flattened into an Observation.
type Projector interface {
	Observation() Observation
}

// Emitter projects vehicle snapshots into the output schema and forwards
// them to a sink. It holds no state of its own.
type Emitter struct {
	sink Sink
}

func NewEmitter(sink Sink) *Emitter {
	return &Emitter{sink: sink}
}

func (e *Emitter) Emit(ctx context.Context, feed Feed, p Projector) error {
	obs := p.Observation()
	obs.Feed = feed
	if err := e.sink.Append(ctx, obs); err != nil {
		return fmt.Errorf("appending observation for %s: %w", obs.TrainID, err)
	}
	return nil
}
