package processor

import "github.com/traintracker-data/internal/observation"

const (
	StatusStopped   = "Stopped"
	StatusIncoming  = "Incoming"
	StatusInTransit = "In Transit"
)

// Vehicle is the live state of one rail vehicle. Values handed out by the
// store are copies.
type Vehicle struct {
	ID            string
	Timestamp     int64 // epoch seconds of the last applied source record
	RouteID       string
	TripID        string
	Origin        string
	Destination   string
	Status        string
	StopID        string
	StopName      string
	StopSequence  int
	NumberOfStops int
	ScheduledTime int64 // seconds since midnight at the current stop
	Delay         int   // minutes
	Position      *observation.Point
	Bearing       float64
	RouteColor    int32
}

// Observation implements observation.Projector.
func (v Vehicle) Observation() observation.Observation {
	obs := observation.Observation{
		TrainID:            v.ID,
		Timestamp:          v.Timestamp,
		RouteID:            v.RouteID,
		TripID:             v.TripID,
		Origin:             v.Origin,
		Destination:        v.Destination,
		Status:             v.Status,
		StopID:             v.StopID,
		StopName:           v.StopName,
		StopSequence:       int32(v.StopSequence),
		NumberOfStops:      int32(v.NumberOfStops),
		ArriveOrDepartTime: v.ScheduledTime,
		Bearing:            v.Bearing,
		RouteColor:         v.RouteColor,
		Delay:              int32(v.Delay),
	}
	if v.Position != nil {
		p := *v.Position
		obs.Geometry = &p
	}
	return obs
}

func (v Vehicle) clone() Vehicle {
	if v.Position != nil {
		p := *v.Position
		v.Position = &p
	}
	return v
}
