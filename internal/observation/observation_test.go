package observation

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() Observation {
	return Observation{
		TrainID:            "101",
		Timestamp:          1700000000,
		RouteID:            "RED",
		TripID:             "T1",
		Origin:             "Alpha Station",
		Destination:        "Charlie Station",
		Status:             "Stopped",
		StopID:             "A1",
		StopName:           "Alpha Station",
		StopSequence:       1,
		NumberOfStops:      4,
		ArriveOrDepartTime: 28800,
		Bearing:            90.5,
		RouteColor:         0xBF0D3E,
		Delay:              -1,
		Geometry:           &Point{Lon: -77.03, Lat: 38.9},
	}
}

func TestSchemaMatchesValues(t *testing.T) {
	names := make([]string, 0, len(Schema))
	for _, f := range Schema {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{
		"TrainId", "Timestamp", "RouteId", "TripId", "Origin", "Destination", "Status",
		"StopId", "StopName", "StopSequence", "NumberOfStops", "ArriveOrDepartTime",
		"Bearing", "RouteColor", "Delay",
	}, names)

	values := sample().Values()
	require.Len(t, values, len(Schema))

	wantKind := map[FieldType]reflect.Kind{
		Text:    reflect.String,
		Int32:   reflect.Int32,
		Int64:   reflect.Int64,
		Float64: reflect.Float64,
	}
	for i, f := range Schema {
		assert.Equal(t, wantKind[f.Type], reflect.TypeOf(values[i]).Kind(), f.Name)
	}
}

func TestAttributes(t *testing.T) {
	attrs := sample().Attributes()
	assert.Len(t, attrs, 15)
	assert.Equal(t, "101", attrs[FieldTrainID])
	assert.Equal(t, int32(-1), attrs[FieldDelay])
	assert.NotContains(t, attrs, "Geometry")
}

func TestEmitterForwardsProjection(t *testing.T) {
	var got []Observation
	e := NewEmitter(SinkFunc(func(_ context.Context, obs Observation) error {
		got = append(got, obs)
		return nil
	}))

	require.NoError(t, e.Emit(context.Background(), FeedAdherence, projectorFunc(sample)))
	require.Len(t, got, 1)
	assert.Equal(t, FeedAdherence, got[0].Feed)
	assert.Equal(t, "101", got[0].TrainID)
}

func TestEmitterWrapsSinkError(t *testing.T) {
	boom := errors.New("sink down")
	e := NewEmitter(SinkFunc(func(context.Context, Observation) error { return boom }))

	err := e.Emit(context.Background(), FeedPositions, projectorFunc(sample))
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "101")
}

type removerSink struct {
	removed []string
}

func (r *removerSink) Append(context.Context, Observation) error { return nil }

func (r *removerSink) Remove(_ context.Context, ids ...string) error {
	r.removed = append(r.removed, ids...)
	return nil
}

func TestMultiSink(t *testing.T) {
	first, second := errors.New("first"), errors.New("second")
	var calls int
	m := MultiSink{
		SinkFunc(func(context.Context, Observation) error { calls++; return first }),
		SinkFunc(func(context.Context, Observation) error { calls++; return nil }),
		SinkFunc(func(context.Context, Observation) error { calls++; return second }),
	}

	err := m.Append(context.Background(), sample())
	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, first)
	assert.ErrorIs(t, err, second)

	r := &removerSink{}
	m = MultiSink{SinkFunc(func(context.Context, Observation) error { return nil }), r}
	require.NoError(t, m.Remove(context.Background(), "101", "102"))
	assert.Equal(t, []string{"101", "102"}, r.removed)
}

func TestChannelSink(t *testing.T) {
	c := NewChannelSink(1)
	require.NoError(t, c.Append(context.Background(), sample()))
	assert.Equal(t, "101", (<-c.C()).TrainID)

	require.NoError(t, c.Append(context.Background(), sample()))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.Append(ctx, sample()), context.DeadlineExceeded)
}

type projectorFunc func() Observation

func (f projectorFunc) Observation() Observation { return f() }
