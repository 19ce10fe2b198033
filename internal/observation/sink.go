package observation

import (
	"context"
	"errors"
	"fmt"
)

// Sink receives one Append per processed source record, keyed by TrainID.
type Sink interface {
	Append(ctx context.Context, obs Observation) error
}

// Remover is implemented by sinks that drop state for evicted vehicles.
type Remover interface {
	Remove(ctx context.Context, trainIDs ...string) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, obs Observation) error

func (f SinkFunc) Append(ctx context.Context, obs Observation) error {
	return f(ctx, obs)
}

// MultiSink fans an observation out to every sink. All sinks are attempted;
// failures are joined.
type MultiSink []Sink

func (m MultiSink) Append(ctx context.Context, obs Observation) error {
	var errs []error
	for _, s := range m {
		if err := s.Append(ctx, obs); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiSink) Remove(ctx context.Context, trainIDs ...string) error {
	if len(trainIDs) == 0 {
		return nil
	}
	var errs []error
	for _, s := range m {
		r, ok := s.(Remover)
		if !ok {
			continue
		}
		if err := r.Remove(ctx, trainIDs...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ChannelSink publishes observations to in-process subscribers. Append
// blocks until the observation is received or ctx is done.
type ChannelSink struct {
	ch chan Observation
}

func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{ch: make(chan Observation, buffer)}
}

func (c *ChannelSink) Append(ctx context.Context, obs Observation) error {
	select {
	case c.ch <- obs:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("publishing observation for %s: %w", obs.TrainID, ctx.Err())
	}
}

func (c *ChannelSink) C() <-chan Observation {
	return c.ch
}
