// Package proximity measures how far group riders are from each other and
// decides which separations deserve a notice.
package proximity

import (
	"math"
)

// EarthRadiusMeters is the mean Earth radius used by the haversine formula.
const EarthRadiusMeters = 6371000.0

const (
	// DefaultAlertMeters is the separation above which a rider is considered
	// to have drifted away from the group.
	DefaultAlertMeters = 3000.0
	// DefaultCeilingMeters is the largest separation still trusted. Anything
	// at or above it is treated as a bad GPS fix.
	DefaultCeilingMeters = 50000.0
	// DefaultNearMeters separates near from moderate.
	DefaultNearMeters = 1000.0
)

type Band string

const (
	BandNear     Band = "near"
	BandModerate Band = "moderate"
	BandFar      Band = "far"
	BandInvalid  Band = "invalid"
)

type Position struct {
	Latitude  float64
	Longitude float64
}

type Thresholds struct {
	Near    float64
	Alert   float64
	Ceiling float64
}

var DefaultThresholds = Thresholds{
	Near:    DefaultNearMeters,
	Alert:   DefaultAlertMeters,
	Ceiling: DefaultCeilingMeters,
}

// Distance returns the great-circle distance between a and b in meters.
func Distance(a, b Position) float64 {
	if a == b {
		return 0
	}
	lat1 := toRadians(a.Latitude)
	lat2 := toRadians(b.Latitude)
	dLat := lat2 - lat1
	dLng := toRadians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	// Rounding can push h slightly outside [0, 1] for antipodal points.
	h = math.Min(1, math.Max(0, h))

	return 2 * EarthRadiusMeters * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Classify places a separation into a band using the default thresholds.
func Classify(meters float64) Band {
	return DefaultThresholds.Classify(meters)
}

func (t Thresholds) Classify(meters float64) Band {
	switch {
	case math.IsNaN(meters) || meters < 0 || meters >= t.Ceiling:
		return BandInvalid
	case meters > t.Alert:
		return BandFar
	case meters > t.Near:
		return BandModerate
	default:
		return BandNear
	}
}

// Valid reports whether the coordinates can be used at all.
func Valid(p Position) bool {
	if math.IsNaN(p.Latitude) || math.IsNaN(p.Longitude) ||
		math.IsInf(p.Latitude, 0) || math.IsInf(p.Longitude, 0) {
		return false
	}
	return p.Latitude >= -90 && p.Latitude <= 90 && p.Longitude >= -180 && p.Longitude <= 180
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
