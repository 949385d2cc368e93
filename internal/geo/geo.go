// Package geo holds the great-circle math used by the nearby-card search.
package geo

import "math"

// EarthRadiusMeters is the mean Earth radius used for all distances.
const EarthRadiusMeters = 6371000.0

const metersPerDegreeLat = EarthRadiusMeters * math.Pi / 180

func rad(deg float64) float64 { return deg * math.Pi / 180 }

// Haversine returns the great-circle distance in metres between two points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := rad(lat2 - lat1)
	dLon := rad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusMeters * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// ValidCoordinates reports whether lat/lon are finite and within range.
func ValidCoordinates(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// Box is a lat/lon rectangle. When MinLon > MaxLon the box crosses the
// antimeridian and covers [MinLon,180] plus [-180,MaxLon].
type Box struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

// Wraps reports whether the box crosses the antimeridian.
func (b Box) Wraps() bool { return b.MinLon > b.MaxLon }

// Contains is used to sanity-check candidates pulled by a box query.
func (b Box) Contains(lat, lon float64) bool {
	if lat < b.MinLat || lat > b.MaxLat {
		return false
	}
	if b.Wraps() {
		return lon >= b.MinLon || lon <= b.MaxLon
	}
	return lon >= b.MinLon && lon <= b.MaxLon
}

// BoundingBox returns a rectangle that contains every point within radius
// metres of (lat, lon). It is a superset; callers refine with Haversine.
func BoundingBox(lat, lon, radius float64) Box {
	dLat := radius / metersPerDegreeLat
	b := Box{MinLat: lat - dLat, MaxLat: lat + dLat}
	if b.MinLat <= -90 || b.MaxLat >= 90 {
		// a pole is inside the circle, every longitude qualifies
		b.MinLat = math.Max(b.MinLat, -90)
		b.MaxLat = math.Min(b.MaxLat, 90)
		b.MinLon, b.MaxLon = -180, 180
		return b
	}
	cosLat := math.Cos(rad(lat))
	dLon := radius / (metersPerDegreeLat * cosLat)
	if dLon >= 180 {
		b.MinLon, b.MaxLon = -180, 180
		return b
	}
	b.MinLon = lon - dLon
	b.MaxLon = lon + dLon
	if b.MinLon < -180 {
		b.MinLon += 360
	}
	if b.MaxLon > 180 {
		b.MaxLon -= 360
	}
	return b
}

// RoundMeters rounds a distance to the nearest whole metre.
func RoundMeters(d float64) float64 { return math.Round(d) }
