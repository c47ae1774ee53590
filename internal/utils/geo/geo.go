package geo

import "math"

// EarthRadiusKm is the mean Earth radius used for great-circle distances.
const EarthRadiusKm = 6371.0

// kmPerDegreeLat approximates one degree of latitude anywhere on Earth.
const kmPerDegreeLat = 111.0

// HaversineKm returns the great-circle distance in kilometers between two
// points given in decimal degrees.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	rlat1 := lat1 * math.Pi / 180
	rlon1 := lon1 * math.Pi / 180
	rlat2 := lat2 * math.Pi / 180
	rlon2 := lon2 * math.Pi / 180

	dlat := rlat2 - rlat1
	dlon := rlon2 - rlon1

	a := math.Pow(math.Sin(dlat/2), 2) +
		math.Cos(rlat1)*math.Cos(rlat2)*math.Pow(math.Sin(dlon/2), 2)
	c := 2 * math.Asin(math.Sqrt(a))

	return c * EarthRadiusKm
}

// BoundingBox returns min/max latitude and longitude bounds around a point
// for the given radius in kilometers. The box is a superset of the true
// circle; callers must re-check exact distances.
func BoundingBox(lat, lon, distanceKm float64) (minLat, maxLat, minLon, maxLon float64) {
	latDelta := distanceKm / kmPerDegreeLat

	// one degree of longitude shrinks with cos(latitude)
	lonDelta := distanceKm / (kmPerDegreeLat * math.Cos(lat*math.Pi/180))
	if lonDelta < 0 {
		lonDelta = -lonDelta
	}

	return lat - latDelta, lat + latDelta, lon - lonDelta, lon + lonDelta
}
