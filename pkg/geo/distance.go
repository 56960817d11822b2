package geo

import (
	"math"

	"github.com/hopround/hopround-backend/pkg/types"
)

const earthRadiusM = 6371000.0

// DistanceM returns the great-circle distance between two points in meters,
// using the haversine formula. Accurate to well under a meter at bar-stop
// scale, which is all the proximity checks need.
func DistanceM(a, b types.LatLng) float64 {
	lat1 := radians(a.Lat)
	lat2 := radians(b.Lat)
	dLat := radians(b.Lat - a.Lat)
	dLng := radians(b.Lng - a.Lng)

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLng*sinLng
	return 2 * earthRadiusM * math.Asin(math.Min(1, math.Sqrt(h)))
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
