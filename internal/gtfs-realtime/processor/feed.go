package processor

import (
	"context"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/traintracker-data/internal/observation"
)

// PositionFromEntity extracts a position record. It returns false for
// entities without a vehicle payload or vehicle id.
func PositionFromEntity(entity *gtfs.FeedEntity) (PositionUpdate, bool) {
	vp := entity.GetVehicle()
	if vp == nil || vp.GetVehicle().GetId() == "" {
		return PositionUpdate{}, false
	}

	u := PositionUpdate{
		VehicleID:    vp.GetVehicle().GetId(),
		TripID:       vp.GetTrip().GetTripId(),
		RouteID:      vp.GetTrip().GetRouteId(),
		StopSequence: int(vp.GetCurrentStopSequence()),
		Status:       statusFor(vp.GetCurrentStatus()),
		Timestamp:    int64(vp.GetTimestamp()),
	}
	if pos := vp.GetPosition(); pos != nil {
		u.Position = &observation.Point{
			Lon: float64(pos.GetLongitude()),
			Lat: float64(pos.GetLatitude()),
		}
		u.Bearing = float64(pos.GetBearing())
	}
	return u, true
}

func statusFor(s gtfs.VehiclePosition_VehicleStopStatus) string {
	switch s {
	case gtfs.VehiclePosition_STOPPED_AT:
		return StatusStopped
	case gtfs.VehiclePosition_INCOMING_AT:
		return StatusIncoming
	default:
		return StatusInTransit
	}
}

// AdherenceFromEntity extracts a trip update record. It returns false for
// entities without a trip update payload.
func AdherenceFromEntity(entity *gtfs.FeedEntity) (AdherenceUpdate, bool) {
	tu := entity.GetTripUpdate()
	if tu == nil {
		return AdherenceUpdate{}, false
	}

	u := AdherenceUpdate{
		VehicleID: tu.GetVehicle().GetId(),
		TripID:    tu.GetTrip().GetTripId(),
		Scheduled: tu.GetTrip().GetScheduleRelationship() == gtfs.TripDescriptor_SCHEDULED,
		Timestamp: int64(tu.GetTimestamp()),
	}
	for _, stu := range tu.GetStopTimeUpdate() {
		u.StopUpdates = append(u.StopUpdates, StopUpdate{
			StopID:    stu.GetStopId(),
			Arrival:   stu.GetArrival().GetTime(),
			Departure: stu.GetDeparture().GetTime(),
		})
	}
	return u, true
}

// FeedResult summarizes one decoded message.
type FeedResult struct {
	Entities int
	Applied  int
}

// HandlePositions applies every position entity of feed in order. The first
// emission failure aborts the rest of the message.
func (p *Processor) HandlePositions(ctx context.Context, feed *gtfs.FeedMessage) (FeedResult, error) {
	var res FeedResult
	for _, entity := range feed.GetEntity() {
		u, ok := PositionFromEntity(entity)
		if !ok {
			continue
		}
		res.Entities++
		if err := p.ApplyPosition(ctx, u); err != nil {
			return res, err
		}
		res.Applied++
	}
	return res, nil
}

// HandleAdherence applies every trip update entity of feed in order.
func (p *Processor) HandleAdherence(ctx context.Context, feed *gtfs.FeedMessage) (FeedResult, error) {
	var res FeedResult
	for _, entity := range feed.GetEntity() {
		u, ok := AdherenceFromEntity(entity)
		if !ok {
			continue
		}
		res.Entities++
		applied, err := p.ApplyAdherence(ctx, u)
		if err != nil {
			return res, err
		}
		if applied {
			res.Applied++
		}
	}
	return res, nil
}
