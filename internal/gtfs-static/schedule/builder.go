package schedule

import (
	"errors"
	"fmt"
	"sort"

	"github.com/traintracker-data/pkg/gtfs-static/models"
)

// Builder accumulates static rows. It is not safe for concurrent use.
type Builder struct {
	idx   *Index
	built bool
}

func NewBuilder() *Builder {
	return &Builder{idx: &Index{
		agencies:  make(map[string]string),
		routes:    make(map[string]Route),
		stops:     make(map[string]Stop),
		trips:     make(map[string]string),
		stopTimes: make(map[string][]StopTime),
	}}
}

func (b *Builder) AddAgency(a *models.Agency) {
	b.idx.agencies[a.AgencyID] = a.AgencyName
}

func (b *Builder) AddRoute(r *models.Route) {
	b.idx.routes[r.RouteID] = Route{
		ID:          r.RouteID,
		ShortName:   r.RouteShortName,
		LongName:    r.RouteLongName,
		Description: r.RouteDesc,
		Type:        r.RouteType,
		Color:       models.ParseHexColor(r.RouteColor),
		TextColor:   models.ParseHexColor(r.RouteTextColor),
	}
}

func (b *Builder) AddStop(s *models.Stop) {
	b.idx.stops[s.StopID] = Stop{
		ID:            s.StopID,
		Name:          s.StopName,
		ParentStation: s.ParentStation,
		IsStation:     s.IsStation(),
		Lat:           s.StopLat,
		Lon:           s.StopLon,
	}
}

func (b *Builder) AddTrip(t *models.Trip) {
	b.idx.trips[t.TripID] = t.RouteID
}

// AddStopTime records a scheduled visit. Blank times are allowed; malformed
// ones are rejected and the row is not added.
func (b *Builder) AddStopTime(st *models.StopTime) error {
	row := StopTime{StopID: st.StopID, Sequence: st.StopSequence}

	arrival, err := models.ParseGTFSTime(st.ArrivalTime)
	switch {
	case err == nil:
		row.Arrival, row.HasArrival = arrival, true
	case !errors.Is(err, models.ErrEmptyTime):
		return fmt.Errorf("trip %s sequence %d arrival: %w", st.TripID, st.StopSequence, err)
	}

	departure, err := models.ParseGTFSTime(st.DepartureTime)
	switch {
	case err == nil:
		row.Departure, row.HasDeparture = departure, true
	case !errors.Is(err, models.ErrEmptyTime):
		return fmt.Errorf("trip %s sequence %d departure: %w", st.TripID, st.StopSequence, err)
	}

	b.idx.stopTimes[st.TripID] = append(b.idx.stopTimes[st.TripID], row)
	return nil
}

// Build sorts each trip's rows by sequence and freezes the index. The builder
// must not be used afterwards.
func (b *Builder) Build() *Index {
	if b.built {
		panic("schedule: Build called twice")
	}
	b.built = true

	for _, rows := range b.idx.stopTimes {
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].Sequence < rows[j].Sequence })
	}
	b.idx.ready = true
	return b.idx
}
