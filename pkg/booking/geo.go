package booking

import "math"

const earthRadiusMeters = 6_371_000

// HaversineMeters returns the great-circle distance between two points.
func HaversineMeters(from, to Coordinates) float64 {
	latFrom := from.LatitudeDegrees * math.Pi / 180
	latTo := to.LatitudeDegrees * math.Pi / 180
	deltaLat := (to.LatitudeDegrees - from.LatitudeDegrees) * math.Pi / 180
	deltaLon := (to.LongitudeDegrees - from.LongitudeDegrees) * math.Pi / 180

	sinLat := math.Sin(deltaLat / 2)
	sinLon := math.Sin(deltaLon / 2)
	a := sinLat*sinLat + math.Cos(latFrom)*math.Cos(latTo)*sinLon*sinLon
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}
