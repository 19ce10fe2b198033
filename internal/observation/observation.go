// Package observation defines the flattened per-vehicle record handed to
// downstream feature sinks and the sink contracts themselves.
package observation

// FieldType is the storage type of an attribute.
type FieldType int

const (
	Text FieldType = iota
	Int32
	Int64
	Float64
)

func (t FieldType) String() string {
	switch t {
	case Text:
		return "text"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Float64:
		return "float64"
	default:
		return "unknown"
	}
}

type Field struct {
	Name string
	Type FieldType
}

// Attribute names. The order of Schema is the order of Observation.Values.
const (
	FieldTrainID            = "TrainId"
	FieldTimestamp          = "Timestamp"
	FieldRouteID            = "RouteId"
	FieldTripID             = "TripId"
	FieldOrigin             = "Origin"
	FieldDestination        = "Destination"
	FieldStatus             = "Status"
	FieldStopID             = "StopId"
	FieldStopName           = "StopName"
	FieldStopSequence       = "StopSequence"
	FieldNumberOfStops      = "NumberOfStops"
	FieldArriveOrDepartTime = "ArriveOrDepartTime"
	FieldBearing            = "Bearing"
	FieldRouteColor         = "RouteColor"
	FieldDelay              = "Delay"
)

var Schema = []Field{
	{FieldTrainID, Text},
	{FieldTimestamp, Int64},
	{FieldRouteID, Text},
	{FieldTripID, Text},
	{FieldOrigin, Text},
	{FieldDestination, Text},
	{FieldStatus, Text},
	{FieldStopID, Text},
	{FieldStopName, Text},
	{FieldStopSequence, Int32},
	{FieldNumberOfStops, Int32},
	{FieldArriveOrDepartTime, Int64},
	{FieldBearing, Float64},
	{FieldRouteColor, Int32},
	{FieldDelay, Int32},
}

// Point is a WGS84 longitude/latitude pair.
type Point struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// Feed identifies which poller produced an observation.
type Feed string

const (
	FeedPositions Feed = "positions"
	FeedAdherence Feed = "adherence"
)

// Observation is one emitted vehicle state. Feed and Geometry travel
// alongside the attribute record and are not part of it.
type Observation struct {
	TrainID            string  `json:"TrainId"`
	Timestamp          int64   `json:"Timestamp"`
	RouteID            string  `json:"RouteId"`
	TripID             string  `json:"TripId"`
	Origin             string  `json:"Origin"`
	Destination        string  `json:"Destination"`
	Status             string  `json:"Status"`
	StopID             string  `json:"StopId"`
	StopName           string  `json:"StopName"`
	StopSequence       int32   `json:"StopSequence"`
	NumberOfStops      int32   `json:"NumberOfStops"`
	ArriveOrDepartTime int64   `json:"ArriveOrDepartTime"`
	Bearing            float64 `json:"Bearing"`
	RouteColor         int32   `json:"RouteColor"`
	Delay              int32   `json:"Delay"`

	Geometry *Point `json:"geometry,omitempty"`
	Feed     Feed   `json:"-"`
}

// Values returns the attribute record in Schema order.
func (o Observation) Values() []interface{} {
	return []interface{}{
		o.TrainID,
		o.Timestamp,
		o.RouteID,
		o.TripID,
		o.Origin,
		o.Destination,
		o.Status,
		o.StopID,
		o.StopName,
		o.StopSequence,
		o.NumberOfStops,
		o.ArriveOrDepartTime,
		o.Bearing,
		o.RouteColor,
		o.Delay,
	}
}

// Attributes returns the attribute record keyed by field name.
func (o Observation) Attributes() map[string]interface{} {
	values := o.Values()
	attrs := make(map[string]interface{}, len(Schema))
	for i, f := range Schema {
		attrs[f.Name] = values[i]
	}
	return attrs
}
