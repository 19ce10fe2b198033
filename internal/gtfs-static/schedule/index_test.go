package schedule

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/traintracker-data/internal/common/logger"
	"github.com/traintracker-data/internal/gtfs-static/gtfstest"
	"github.com/traintracker-data/internal/gtfs-static/parser"
	"github.com/traintracker-data/pkg/gtfs-static/models"
)

func loadFixture(t *testing.T) *Index {
	t.Helper()
	path := gtfstest.WriteZip(t, t.TempDir(), gtfstest.Files)
	idx, err := NewLoader(parser.New(logger.Nop()), logger.Nop()).Load(context.Background(), path)
	require.NoError(t, err)
	return idx
}

func TestIndexLookups(t *testing.T) {
	idx := loadFixture(t)
	require.True(t, idx.Ready())

	red, ok := idx.Route("RED")
	require.True(t, ok)
	assert.Equal(t, int32(0xBF0D3E), red.Color)
	assert.Equal(t, "Red Line", red.LongName)

	_, ok = idx.Route("GREEN")
	assert.False(t, ok)

	stop, ok := idx.Stop("A1")
	require.True(t, ok)
	assert.Equal(t, "STN_A", stop.ParentStation)
	assert.False(t, stop.IsStation)

	assert.Equal(t, "BLUE", idx.TripRouteID("T2"))
	assert.Equal(t, "", idx.TripRouteID("T404"))

	assert.Equal(t, Stats{Agencies: 1, Routes: 2, Stops: 7, Trips: 2, StopTimes: 6}, idx.Stats())
}

func TestStopAtSequence(t *testing.T) {
	idx := loadFixture(t)

	stop, ok := idx.StopAtSequence("T1", 3)
	require.True(t, ok)
	assert.Equal(t, "B1", stop.ID)

	_, ok = idx.StopAtSequence("T1", 7)
	assert.False(t, ok)
	_, ok = idx.StopAtSequence("T404", 1)
	assert.False(t, ok)
}

func TestScheduledTime(t *testing.T) {
	idx := loadFixture(t)

	assert.Equal(t, int64(28800), idx.ScheduledTime("T1", 1))
	assert.Equal(t, int64(29040), idx.ScheduledTime("T1", 2), "falls back to departure")
	assert.Equal(t, int64(29520), idx.ScheduledTime("T1", 4))
	assert.Equal(t, int64(86700), idx.ScheduledTime("T2", 2))
	assert.Equal(t, int64(0), idx.ScheduledTime("T1", 9))
}

func TestStationName(t *testing.T) {
	idx := loadFixture(t)

	assert.Equal(t, "Alpha Station", idx.StationName("A1"))
	assert.Equal(t, "Bravo Station", idx.StationName("STN_B"))
	assert.Equal(t, "Crossover", idx.StationName("X9"))
	assert.Equal(t, "", idx.StationName("nope"))
}

func TestNextStationName(t *testing.T) {
	idx := loadFixture(t)

	assert.Equal(t, "Alpha Station", idx.NextStationName("T1", 0))
	assert.Equal(t, "Bravo Station", idx.NextStationName("T1", 1), "skips parentless platform X9")
	assert.Equal(t, "Charlie Station", idx.NextStationName("T1", 3))
	assert.Equal(t, "", idx.NextStationName("T1", 4))
	assert.Equal(t, "", idx.NextStationName("T404", 1))
}

func TestTripSummary(t *testing.T) {
	idx := loadFixture(t)

	assert.Equal(t, TripSummary{Origin: "Alpha Station", Destination: "Charlie Station", NumberOfStops: 4}, idx.TripSummary("T1"))
	assert.Equal(t, TripSummary{Origin: "Charlie Station", Destination: "Alpha Station", NumberOfStops: 2}, idx.TripSummary("T2"))
	assert.Equal(t, TripSummary{}, idx.TripSummary("T404"))
}

func TestNotInitializedPanics(t *testing.T) {
	var nilIndex *Index
	assert.PanicsWithError(t, ErrNotInitialized.Error(), func() { nilIndex.Route("RED") })

	empty := &Index{}
	assert.False(t, empty.Ready())
	assert.PanicsWithError(t, ErrNotInitialized.Error(), func() { empty.TripSummary("T1") })
	assert.PanicsWithError(t, ErrNotInitialized.Error(), func() { empty.NextStationName("T1", 1) })
}

func TestBuilderRejectsMalformedTimes(t *testing.T) {
	b := NewBuilder()
	err := b.AddStopTime(&models.StopTime{TripID: "T1", StopID: "A1", StopSequence: 1, ArrivalTime: "8am"})
	assert.ErrorContains(t, err, "arrival")

	require.NoError(t, b.AddStopTime(&models.StopTime{TripID: "T1", StopID: "B1", StopSequence: 2, ArrivalTime: "08:10:00"}))
	require.NoError(t, b.AddStopTime(&models.StopTime{TripID: "T1", StopID: "A1", StopSequence: 1, DepartureTime: "08:00:00"}))

	idx := b.Build()
	assert.Equal(t, 2, idx.Stats().StopTimes)
	assert.Equal(t, int64(28800), idx.ScheduledTime("T1", 1))
	assert.Panics(t, func() { b.Build() })
}
