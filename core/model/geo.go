package model

import "math"

// earthRadiusKm is the mean Earth radius used for great-circle distances.
const earthRadiusKm = 6371.0

// DistanceKm computes the great-circle distance in kilometers between two
// coordinates using the spherical law of cosines. A coordinate of 0/0 means
// "unknown" and yields a distance of 0.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	if (lat1 == 0 && lon1 == 0) || (lat2 == 0 && lon2 == 0) {
		return 0
	}
	p1 := lat1 * math.Pi / 180
	p2 := lat2 * math.Pi / 180
	dl := (lon2 - lon1) * math.Pi / 180
	c := math.Sin(p1)*math.Sin(p2) + math.Cos(p1)*math.Cos(p2)*math.Cos(dl)
	// Floating point error can push c marginally outside [-1, 1].
	c = math.Max(-1, math.Min(1, c))
	return math.Acos(c) * earthRadiusKm
}
