// Package geo implements the ground-distance check for geofenced check-ins.
package geo

import "math"

// Coordinates is a geographic point in degrees. The first field is latitude,
// the second longitude - callers must not pass them the other way around.
type Coordinates struct {
	Lat  float64 `json:"lat"`
	Long float64 `json:"long"`
}

// MaxCheckInDistanceMeters is the accept threshold for a check-in: the
// reported position must be within 400 meters of the check-in point.
const MaxCheckInDistanceMeters = 400.0

// DistanceMeters computes the ground distance between two points using the
// spherical law of cosines. The approximation assumes a spherical Earth on
// purpose; at campus scale the error is far below the 400 m threshold, and
// swapping in a different geodesic model would silently move the fence.
func DistanceMeters(a, b Coordinates) float64 {
	radLat1 := a.Lat * math.Pi / 180
	radLat2 := b.Lat * math.Pi / 180
	radTheta := (a.Long - b.Long) * math.Pi / 180

	dist := math.Sin(radLat1)*math.Sin(radLat2) +
		math.Cos(radLat1)*math.Cos(radLat2)*math.Cos(radTheta)

	// Floating rounding can push the cosine argument just past 1 for
	// near-identical points, which would make Acos return NaN.
	if dist > 1 {
		dist = 1
	}

	dist = math.Acos(dist)
	dist = dist * 180 / math.Pi
	dist = dist * 60 * 1.1515 // degrees to miles
	dist = dist * 1.609344    // miles to kilometers
	return dist * 1000        // kilometers to meters
}

// WithinCheckInRange reports whether the two points are close enough for a
// check-in to be accepted.
func WithinCheckInRange(a, b Coordinates) bool {
	return DistanceMeters(a, b) <= MaxCheckInDistanceMeters
}
