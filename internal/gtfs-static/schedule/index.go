// Package schedule is the read-only lookup service over a static GTFS
// snapshot. An Index is built once by a Builder and never mutated, so it is
// safe for concurrent use without locking.
package schedule

import (
	"errors"
	"sort"
)

// ErrNotInitialized is the panic value for lookups on an index that was never built.
var ErrNotInitialized = errors.New("schedule index not initialized")

type Route struct {
	ID          string
	ShortName   string
	LongName    string
	Description string
	Type        int
	Color       int32 // packed RGB
	TextColor   int32
}

type Stop struct {
	ID            string
	Name          string
	ParentStation string
	IsStation     bool
	Lat           float64
	Lon           float64
}

// StopTime is one scheduled visit; times are seconds since service-day midnight.
type StopTime struct {
	StopID       string
	Sequence     int
	Arrival      int64
	Departure    int64
	HasArrival   bool
	HasDeparture bool
}

type TripSummary struct {
	Origin        string
	Destination   string
	NumberOfStops int
}

type Stats struct {
	Agencies  int
	Routes    int
	Stops     int
	Trips     int
	StopTimes int
}

type Index struct {
	ready     bool
	agencies  map[string]string // agency id -> name
	routes    map[string]Route
	stops     map[string]Stop
	trips     map[string]string // trip id -> route id
	stopTimes map[string][]StopTime
}

func (x *Index) mustBeReady() {
	if x == nil || !x.ready {
		panic(ErrNotInitialized)
	}
}

// Ready reports whether the index finished building.
func (x *Index) Ready() bool {
	return x != nil && x.ready
}

func (x *Index) Route(routeID string) (Route, bool) {
	x.mustBeReady()
	r, ok := x.routes[routeID]
	return r, ok
}

func (x *Index) Stop(stopID string) (Stop, bool) {
	x.mustBeReady()
	s, ok := x.stops[stopID]
	return s, ok
}

// TripRouteID returns the route a scheduled trip runs on, or "".
func (x *Index) TripRouteID(tripID string) string {
	x.mustBeReady()
	return x.trips[tripID]
}

func (x *Index) stopTimeAt(tripID string, sequence int) (StopTime, bool) {
	rows := x.stopTimes[tripID]
	i := sort.Search(len(rows), func(i int) bool { return rows[i].Sequence >= sequence })
	if i < len(rows) && rows[i].Sequence == sequence {
		return rows[i], true
	}
	return StopTime{}, false
}

// StopAtSequence returns the stop visited by tripID at sequence.
func (x *Index) StopAtSequence(tripID string, sequence int) (Stop, bool) {
	x.mustBeReady()
	st, ok := x.stopTimeAt(tripID, sequence)
	if !ok {
		return Stop{}, false
	}
	s, ok := x.stops[st.StopID]
	return s, ok
}

// ScheduledTime returns the arrival time at (tripID, sequence), falling back
// to the departure time, or 0 when neither is scheduled.
func (x *Index) ScheduledTime(tripID string, sequence int) int64 {
	x.mustBeReady()
	st, ok := x.stopTimeAt(tripID, sequence)
	switch {
	case !ok:
		return 0
	case st.HasArrival:
		return st.Arrival
	case st.HasDeparture:
		return st.Departure
	default:
		return 0
	}
}

// StationName resolves a stop to its station: the stop itself when it is a
// station, else its parent station, else the stop. Unknown ids yield "".
func (x *Index) StationName(stopID string) string {
	x.mustBeReady()
	s, ok := x.stops[stopID]
	if !ok {
		return ""
	}
	if !s.IsStation {
		if parent, ok := x.stops[s.ParentStation]; ok {
			return parent.Name
		}
	}
	return s.Name
}

// NextStationName walks the trip forward from sequence and returns the first
// row whose stop is, or belongs to, a station. Platform stops without a parent
// are skipped.
func (x *Index) NextStationName(tripID string, sequence int) string {
	x.mustBeReady()
	for _, st := range x.stopTimes[tripID] {
		if st.Sequence <= sequence {
			continue
		}
		s, ok := x.stops[st.StopID]
		if !ok {
			continue
		}
		if s.IsStation {
			return s.Name
		}
		if parent, ok := x.stops[s.ParentStation]; ok {
			return parent.Name
		}
	}
	return ""
}

// TripSummary returns the origin and destination station names and the
// number of scheduled rows of a trip. Unknown trips yield the zero value.
func (x *Index) TripSummary(tripID string) TripSummary {
	x.mustBeReady()
	rows := x.stopTimes[tripID]
	if len(rows) == 0 {
		return TripSummary{}
	}

	summary := TripSummary{
		Destination:   x.parentStationName(rows[len(rows)-1].StopID),
		NumberOfStops: len(rows),
	}
	if first, ok := x.stopTimeAt(tripID, 1); ok {
		summary.Origin = x.parentStationName(first.StopID)
	}
	return summary
}

func (x *Index) parentStationName(stopID string) string {
	s, ok := x.stops[stopID]
	if !ok {
		return ""
	}
	if parent, ok := x.stops[s.ParentStation]; ok {
		return parent.Name
	}
	if s.IsStation {
		return s.Name
	}
	return ""
}

func (x *Index) Stats() Stats {
	x.mustBeReady()
	stats := Stats{
		Agencies: len(x.agencies),
		Routes:   len(x.routes),
		Stops:    len(x.stops),
		Trips:    len(x.trips),
	}
	for _, rows := range x.stopTimes {
		stats.StopTimes += len(rows)
	}
	return stats
}
