package types

import (
	"math"
	"testing"
)

func TestPointValid(t *testing.T) {
	tests := []struct {
		name string
		p    Point
		want bool
	}{
		{"origin", Point{0, 0}, true},
		{"poles and antimeridian", Point{90, -180}, true},
		{"lat out of range", Point{90.1, 0}, false},
		{"lng out of range", Point{0, 181}, false},
		{"nan", Point{math.NaN(), 0}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.Valid(); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewIDUnique(t *testing.T) {
	a, b := NewID(), NewID()
	if a == "" || a == b {
		t.Fatalf("expected distinct non-empty ids, got %q and %q", a, b)
	}
}

func TestBoundsAround(t *testing.T) {
	center := Point{Lat: 19.076, Lng: 72.8777}
	b := BoundsAround(center, 10)

	kmLng := 111.32 * math.Cos(center.Lat*math.Pi/180)
	tests := []struct {
		name string
		p    Point
		want bool
	}{
		{"center", center, true},
		{"9 km north", Point{center.Lat + 9/111.32, center.Lng}, true},
		{"11 km north", Point{center.Lat + 11/111.32, center.Lng}, false},
		{"9 km west", Point{center.Lat, center.Lng - 9/kmLng}, true},
		{"12 km east", Point{center.Lat, center.Lng + 12/kmLng}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := b.Contains(tt.p); got != tt.want {
				t.Errorf("Contains(%v) = %v, want %v", tt.p, got, tt.want)
			}
		})
	}
}

func TestBoundsAround_WrapsToAllLongitudes(t *testing.T) {
	for _, p := range []Point{{89.95, 10}, {-89.95, 10}, {0, 179.95}, {0, -179.95}} {
		b := BoundsAround(p, 10)
		if b.MinLng != -180 || b.MaxLng != 180 {
			t.Errorf("BoundsAround(%v): lng range [%v, %v], want all longitudes", p, b.MinLng, b.MaxLng)
		}
		if !b.Contains(p) {
			t.Errorf("BoundsAround(%v) excludes its center", p)
		}
	}
}
