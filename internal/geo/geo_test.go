package geo

import (
	"math"
	"testing"
)

func TestHaversineKnownDistances(t *testing.T) {
	cases := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		want, tol              float64
	}{
		{"same point", 40.7128, -74.0060, 40.7128, -74.0060, 0, 0.001},
		{"one degree of latitude", 0, 0, 1, 0, 111195, 1},
		{"short hop", 40.7128, -74.0060, 40.7129, -74.0061, 14, 0.5},
		{"across antimeridian", 0, 179.9, 0, -179.9, 22239, 1},
	}
	for _, tc := range cases {
		got := Haversine(tc.lat1, tc.lon1, tc.lat2, tc.lon2)
		if math.Abs(got-tc.want) > tc.tol {
			t.Fatalf("%s: got %.3f want %.3f", tc.name, got, tc.want)
		}
	}
}

func TestBoundingBoxContainsCircle(t *testing.T) {
	lat, lon, r := 40.7128, -74.0060, 5000.0
	b := BoundingBox(lat, lon, r)
	for _, bearing := range []float64{0, 45, 90, 135, 180, 225, 270, 315} {
		// walk slightly less than r along each bearing
		d := (r - 1) / EarthRadiusMeters
		br := rad(bearing)
		la := math.Asin(math.Sin(rad(lat))*math.Cos(d) + math.Cos(rad(lat))*math.Sin(d)*math.Cos(br))
		lo := rad(lon) + math.Atan2(math.Sin(br)*math.Sin(d)*math.Cos(rad(lat)), math.Cos(d)-math.Sin(rad(lat))*math.Sin(la))
		pLat, pLon := la*180/math.Pi, lo*180/math.Pi
		if !b.Contains(pLat, pLon) {
			t.Fatalf("bearing %v: point %.6f,%.6f outside box %+v", bearing, pLat, pLon, b)
		}
	}
}

func TestBoundingBoxWrapsAntimeridian(t *testing.T) {
	b := BoundingBox(0, 179.99, 5000)
	if !b.Wraps() {
		t.Fatalf("expected wrapping box, got %+v", b)
	}
	if !b.Contains(0, -179.99) {
		t.Fatalf("expected box to contain point across the antimeridian")
	}
	if b.Contains(0, 0) {
		t.Fatalf("box should not contain the prime meridian")
	}
}

func TestBoundingBoxNearPole(t *testing.T) {
	b := BoundingBox(89.99, 10, 5000)
	if b.MinLon != -180 || b.MaxLon != 180 || b.MaxLat != 90 {
		t.Fatalf("expected full longitude span near pole, got %+v", b)
	}
}

func TestValidCoordinates(t *testing.T) {
	if !ValidCoordinates(-90, 180) {
		t.Fatalf("boundaries are valid")
	}
	for _, c := range [][2]float64{{91, 0}, {0, -181}, {math.NaN(), 0}, {0, math.Inf(1)}} {
		if ValidCoordinates(c[0], c[1]) {
			t.Fatalf("%v should be invalid", c)
		}
	}
}
