package devicescore

import "math"

// earthRadiusKm is the mean Earth radius used by the Haversine formula.
const earthRadiusKm = 6371.0

// maxTravelSpeedKmh is the fastest plausible travel speed between two
// consecutive observations; anything above it is flagged as impossible.
const maxTravelSpeedKmh = 900.0

// haversineKm returns the great-circle distance between two points in km.
func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	rlat1 := lat1 * math.Pi / 180
	rlat2 := lat2 * math.Pi / 180
	dlat := (lat2 - lat1) * math.Pi / 180
	dlon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(rlat1)*math.Cos(rlat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Asin(math.Sqrt(a))
	return earthRadiusKm * c
}

// impossibleTravel reports whether any pair of consecutive observations
// would require travelling faster than maxTravelSpeedKmh.
func impossibleTravel(locations []Location) bool {
	if len(locations) < 2 {
		return false
	}

	for i := 0; i < len(locations)-1; i++ {
		curr := locations[i]
		next := locations[i+1]

		distance := haversineKm(curr.Latitude, curr.Longitude, next.Latitude, next.Longitude)

		hours := math.Abs(curr.Timestamp.Sub(next.Timestamp).Hours())
		if hours == 0 {
			continue
		}

		if distance/hours > maxTravelSpeedKmh {
			return true
		}
	}
	return false
}
