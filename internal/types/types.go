// README: Shared identifier and coordinate value objects.
package types

import (
	"math"

	"github.com/google/uuid"
)

type ID string

// NewID returns a random UUID-backed identifier.
func NewID() ID {
	return ID(uuid.NewString())
}

func (id ID) String() string { return string(id) }

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lng float64 `json:"lng" validate:"gte=-180,lte=180"`
}

// Valid reports whether the point lies inside the WGS84 range. NaN is rejected.
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// Bounds is a latitude/longitude box, inclusive on every edge.
type Bounds struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

const kmPerDegree = 111.32

// BoundsAround returns a box enclosing every point within radiusKm of p.
// Boxes that would reach a pole or cross the antimeridian span all
// longitudes.
func BoundsAround(p Point, radiusKm float64) Bounds {
	dLat := radiusKm / kmPerDegree
	b := Bounds{
		MinLat: math.Max(p.Lat-dLat, -90),
		MaxLat: math.Min(p.Lat+dLat, 90),
		MinLng: -180,
		MaxLng: 180,
	}
	if b.MinLat == -90 || b.MaxLat == 90 {
		return b
	}
	dLng := radiusKm / (kmPerDegree * math.Cos(p.Lat*math.Pi/180))
	if p.Lng-dLng < -180 || p.Lng+dLng > 180 {
		return b
	}
	b.MinLng, b.MaxLng = p.Lng-dLng, p.Lng+dLng
	return b
}

func (b Bounds) Contains(p Point) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat && p.Lng >= b.MinLng && p.Lng <= b.MaxLng
}
