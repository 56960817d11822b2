package types

// LatLng is a WGS84 coordinate pair.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// GeoFix is one positioning sample reported by a device. AccuracyM is the
// radius of the 68% confidence circle in meters; larger means less precise.
type GeoFix struct {
	LatLng
	AccuracyM float64 `json:"accuracyMeters"`
	UnixMS    int64   `json:"timestamp"`
}
