package models

// LocationTypeStation marks a stop row as a station grouping platform-level stops.
const LocationTypeStation = 1

type Agency struct {
	AgencyID       string `csv:"agency_id"`
	AgencyName     string `csv:"agency_name"`
	AgencyURL      string `csv:"agency_url"`
	AgencyTimezone string `csv:"agency_timezone"`
	AgencyLang     string `csv:"agency_lang"`
}

type Stop struct {
	StopID        string  `csv:"stop_id"`
	StopCode      string  `csv:"stop_code"`
	StopName      string  `csv:"stop_name"`
	StopDesc      string  `csv:"stop_desc"`
	StopLat       float64 `csv:"stop_lat"`
	StopLon       float64 `csv:"stop_lon"`
	LocationType  int     `csv:"location_type"`
	ParentStation string  `csv:"parent_station"`
	PlatformCode  string  `csv:"platform_code"`
	LevelID       string  `csv:"level_id"`
}

// IsStation reports whether the stop is a station rather than a platform or entrance.
func (s *Stop) IsStation() bool {
	return s.LocationType == LocationTypeStation
}

type Route struct {
	RouteID        string `csv:"route_id"`
	AgencyID       string `csv:"agency_id"`
	RouteShortName string `csv:"route_short_name"`
	RouteLongName  string `csv:"route_long_name"`
	RouteDesc      string `csv:"route_desc"`
	RouteType      int    `csv:"route_type"`
	RouteURL       string `csv:"route_url"`
	RouteColor     string `csv:"route_color"`
	RouteTextColor string `csv:"route_text_color"`
}

type Trip struct {
	TripID       string `csv:"trip_id"`
	RouteID      string `csv:"route_id"`
	ServiceID    string `csv:"service_id"`
	ShapeID      string `csv:"shape_id"`
	TripHeadsign string `csv:"trip_headsign"`
	DirectionID  int    `csv:"direction_id"`
	BlockID      string `csv:"block_id"`
}

type StopTime struct {
	TripID        string `csv:"trip_id"`
	StopID        string `csv:"stop_id"`
	StopSequence  int    `csv:"stop_sequence"`
	ArrivalTime   string `csv:"arrival_time"`   // HH:MM:SS, may exceed 24h
	DepartureTime string `csv:"departure_time"` // HH:MM:SS, may exceed 24h
	StopHeadsign  string `csv:"stop_headsign"`
	PickupType    int    `csv:"pickup_type"`
	DropOffType   int    `csv:"drop_off_type"`
}
