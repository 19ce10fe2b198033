package processor

import (
	"math"
	"time"
)

const (
	secondsPerDay = 24 * 60 * 60
	earlyMorning  = 4 * 60 * 60
	lateEvening   = 20 * 60 * 60
)

// feedZone is the fixed offset actual timestamps are read in. It does not
// follow daylight saving.
var feedZone = time.FixedZone("UTC-4", -4*60*60)

// CalculateDelay returns the signed delay in whole minutes (floored) between
// a scheduled time of day, in seconds since midnight, and an actual epoch
// timestamp. Pairs straddling midnight are moved onto the same day first.
func CalculateDelay(scheduled int64, actual int64) int {
	t := time.Unix(actual, 0).In(feedZone)
	actualTOD := int64(t.Hour()*3600 + t.Minute()*60 + t.Second())

	switch {
	case scheduled < earlyMorning && actualTOD > lateEvening:
		scheduled += secondsPerDay
	case actualTOD < earlyMorning && scheduled > lateEvening:
		actualTOD += secondsPerDay
	}

	return int(math.Floor(float64(actualTOD-scheduled) / 60))
}
