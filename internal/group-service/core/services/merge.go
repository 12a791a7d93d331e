package services

import (
	"math"
	"time"

	"group-ride/internal/proximity"
	"group-ride/internal/websocketdto"
)

// Merge applies a rider's own location update to their roster record. Status
// and host flag are never taken from the update. Invalid coordinates keep the
// last good fix.
func Merge(existing websocketdto.MemberRecord, upd websocketdto.LocationUpdate, now time.Time) websocketdto.MemberRecord {
	merged := existing

	if upd.UserName != "" {
		merged.UserName = upd.UserName
	}

	pos := proximity.Position{Latitude: upd.Latitude, Longitude: upd.Longitude}
	if proximity.Valid(pos) {
		lat, lng := upd.Latitude, upd.Longitude
		merged.Latitude = &lat
		merged.Longitude = &lng
	}

	if finiteNonNegative(upd.Speed) {
		merged.Speed = upd.Speed
	}
	if finiteNonNegative(upd.Distance) {
		merged.Distance = upd.Distance
	}
	if upd.Duration >= 0 {
		merged.Duration = upd.Duration
	}
	merged.IsRiding = upd.IsRiding

	merged.LastUpdated = upd.Timestamp
	if merged.LastUpdated <= 0 {
		merged.LastUpdated = now.UnixMilli()
	}
	return merged
}

func finiteNonNegative(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}
