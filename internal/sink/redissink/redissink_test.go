package redissink

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traintracker-data/internal/observation"
)

func newTestSink(t *testing.T, channel string) (*Sink, *redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := Connect(context.Background(), mr.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return New(client, Options{KeyPrefix: "tt", Channel: channel}), client, mr
}

func sample() observation.Observation {
	return observation.Observation{
		TrainID:            "101",
		Timestamp:          1700000000,
		RouteID:            "RED",
		TripID:             "T1",
		Status:             "Incoming",
		StopID:             "B1",
		StopName:           "Bravo Station",
		StopSequence:       3,
		NumberOfStops:      4,
		ArriveOrDepartTime: 29220,
		Bearing:            45.5,
		RouteColor:         0xBF0D3E,
		Delay:              -2,
		Geometry:           &observation.Point{Lon: -77.03, Lat: 38.9},
	}
}

func TestAppendWritesHashAndPosition(t *testing.T) {
	s, client, mr := newTestSink(t, "")
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, sample()))

	assert.Equal(t, "Bravo Station", mr.HGet("tt:vehicle:101", "StopName"))
	assert.Equal(t, "-2", mr.HGet("tt:vehicle:101", "Delay"))
	assert.Equal(t, "1700000000", mr.HGet("tt:vehicle:101", "Timestamp"))
	assert.Equal(t, "45.5", mr.HGet("tt:vehicle:101", "Bearing"))

	fields, err := client.HKeys(ctx, "tt:vehicle:101").Result()
	require.NoError(t, err)
	assert.Len(t, fields, len(observation.Schema))

	members, err := mr.Members("tt:vehicles")
	require.NoError(t, err)
	assert.Equal(t, []string{"101"}, members)

	pos, err := client.GeoPos(ctx, "tt:positions", "101").Result()
	require.NoError(t, err)
	require.Len(t, pos, 1)
	require.NotNil(t, pos[0])
	assert.InDelta(t, -77.03, pos[0].Longitude, 1e-4)
	assert.InDelta(t, 38.9, pos[0].Latitude, 1e-4)
}

func TestAppendWithoutGeometrySkipsGeoSet(t *testing.T) {
	s, _, mr := newTestSink(t, "")
	obs := sample()
	obs.Geometry = nil

	require.NoError(t, s.Append(context.Background(), obs))
	assert.True(t, mr.Exists("tt:vehicle:101"))
	assert.False(t, mr.Exists("tt:positions"))
}

func TestAppendPublishes(t *testing.T) {
	s, client, _ := newTestSink(t, "tt:observations")
	ctx := context.Background()

	sub := client.Subscribe(ctx, "tt:observations")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Append(ctx, sample()))

	select {
	case msg := <-sub.Channel():
		var got observation.Observation
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, "101", got.TrainID)
		assert.Equal(t, int32(-2), got.Delay)
		require.NotNil(t, got.Geometry)
		assert.Equal(t, 38.9, got.Geometry.Lat)
	case <-time.After(2 * time.Second):
		t.Fatal("no message published")
	}
}

func TestRemove(t *testing.T) {
	s, _, mr := newTestSink(t, "")
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, sample()))
	other := sample()
	other.TrainID = "202"
	require.NoError(t, s.Append(ctx, other))

	require.NoError(t, s.Remove(ctx, "101"))
	assert.False(t, mr.Exists("tt:vehicle:101"))
	assert.True(t, mr.Exists("tt:vehicle:202"))

	members, err := mr.Members("tt:vehicles")
	require.NoError(t, err)
	assert.Equal(t, []string{"202"}, members)

	geo, err := mr.ZMembers("tt:positions")
	require.NoError(t, err)
	assert.Equal(t, []string{"202"}, geo)

	assert.NoError(t, s.Remove(ctx))
}

func TestAppendFailsWhenServerDown(t *testing.T) {
	s, _, mr := newTestSink(t, "")
	mr.Close()

	err := s.Append(context.Background(), sample())
	assert.ErrorContains(t, err, "101")
}

func TestConnectFails(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := Connect(context.Background(), addr, "", 0)
	assert.Error(t, err)
}
