package location

import (
	"math"
	"testing"

	"herodispatch/internal/types"
)

func TestDistanceKm_KnownDistances(t *testing.T) {
	tests := []struct {
		name      string
		lat1      float64
		lng1      float64
		lat2      float64
		lng2      float64
		wantKm    float64
		tolerance float64
	}{
		{
			name: "same point",
			lat1: 28.6139, lng1: 77.2090,
			lat2: 28.6139, lng2: 77.2090,
			wantKm:    0,
			tolerance: 0.0001,
		},
		{
			name: "one degree of latitude",
			lat1: 0, lng1: 0,
			lat2: 1, lng2: 0,
			wantKm:    111.19,
			tolerance: 0.01,
		},
		{
			name: "New Delhi to Mumbai (~1150km)",
			lat1: 28.6139, lng1: 77.2090,
			lat2: 19.0760, lng2: 72.8777,
			wantKm:    1153,
			tolerance: 10,
		},
		{
			name: "New York to Los Angeles (~3944km)",
			lat1: 40.7128, lng1: -74.0060,
			lat2: 34.0522, lng2: -118.2437,
			wantKm:    3944,
			tolerance: 50,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DistanceKm(tt.lat1, tt.lng1, tt.lat2, tt.lng2)
			if math.Abs(got-tt.wantKm) > tt.tolerance {
				t.Errorf("DistanceKm() = %f, want %f (±%f)", got, tt.wantKm, tt.tolerance)
			}
		})
	}
}

func TestDistanceKm_Symmetry(t *testing.T) {
	d1 := DistanceKm(25.0, 121.0, 26.0, 122.0)
	d2 := DistanceKm(26.0, 122.0, 25.0, 121.0)
	if math.Abs(d1-d2) > 0.0001 {
		t.Errorf("haversine is not symmetric: %f vs %f", d1, d2)
	}
}

func TestDistanceBetween_MatchesDistanceKm(t *testing.T) {
	a := types.Point{Lat: 12.9716, Lng: 77.5946}
	b := types.Point{Lat: 12.9352, Lng: 77.6245}
	if got, want := DistanceBetween(a, b), DistanceKm(a.Lat, a.Lng, b.Lat, b.Lng); got != want {
		t.Errorf("DistanceBetween() = %f, want %f", got, want)
	}
}

type ranked struct {
	id   string
	dist float64
}

func TestSortByDistance(t *testing.T) {
	items := []ranked{{"c", 5.0}, {"a", 1.0}, {"b", 3.0}}

	SortByDistance(items, func(r ranked) float64 { return r.dist })

	if items[0].id != "a" || items[1].id != "b" || items[2].id != "c" {
		t.Errorf("unexpected sort order: %v", items)
	}
}

func TestSortByDistance_StableOnTies(t *testing.T) {
	items := []ranked{{"x", 2.0}, {"y", 1.0}, {"z", 2.0}}

	SortByDistance(items, func(r ranked) float64 { return r.dist })

	if items[0].id != "y" || items[1].id != "x" || items[2].id != "z" {
		t.Errorf("ties reordered: %v", items)
	}
}

func TestSortByDistance_EmptyAndSingle(t *testing.T) {
	var empty []ranked
	SortByDistance(empty, func(r ranked) float64 { return r.dist })

	single := []ranked{{"a", 2.0}}
	SortByDistance(single, func(r ranked) float64 { return r.dist })
	if single[0].id != "a" {
		t.Errorf("single element sort failed")
	}
}
