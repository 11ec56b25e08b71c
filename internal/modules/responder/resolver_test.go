package responder

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"herodispatch/internal/types"
)

type stubFinder struct {
	candidates []Candidate
	err        error
}

func (s stubFinder) FindAvailableWithinRadius(context.Context, types.Point, float64, types.ID) ([]Candidate, error) {
	return s.candidates, s.err
}

var incidentAt = types.Point{Lat: 28.6139, Lng: 77.2090}

// offsetNorth returns a point roughly km kilometres north of incidentAt.
func offsetNorth(km float64) types.Point {
	return types.Point{Lat: incidentAt.Lat + km/111.195, Lng: incidentAt.Lng}
}

func TestResolveCandidates_FiltersAndSorts(t *testing.T) {
	r := NewResolver(stubFinder{candidates: []Candidate{
		{ID: "far", Position: offsetNorth(1.5), Available: true},
		{ID: "reporter", Position: offsetNorth(0.1), Available: true},
		{ID: "busy", Position: offsetNorth(0.2), Available: false},
		{ID: "outside", Position: offsetNorth(2.5), Available: true},
		{ID: "near", Position: offsetNorth(0.3), Available: true},
		{ID: "near", Position: offsetNorth(0.3), Available: true},
	}})

	got, err := r.ResolveCandidates(context.Background(), incidentAt, 2, "reporter")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, types.ID("near"), got[0].ID)
	assert.Equal(t, types.ID("far"), got[1].ID)
	assert.InDelta(t, 0.3, got[0].DistanceKm, 0.01)
	assert.InDelta(t, 1.5, got[1].DistanceKm, 0.01)
}

func TestResolveCandidates_RecomputesDistance(t *testing.T) {
	r := NewResolver(stubFinder{candidates: []Candidate{
		{ID: "stale", Position: offsetNorth(4), Available: true, DistanceKm: 0.1},
	}})

	got, err := r.ResolveCandidates(context.Background(), incidentAt, 2, "")
	require.NoError(t, err)
	assert.Empty(t, got, "finder distances are not trusted")
}

func TestResolveCandidates_EmptyPool(t *testing.T) {
	got, err := NewResolver(stubFinder{}).ResolveCandidates(context.Background(), incidentAt, 0.5, "x")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestResolveCandidates_WrapsFinderError(t *testing.T) {
	_, err := NewResolver(stubFinder{err: errors.New("redis down")}).
		ResolveCandidates(context.Background(), incidentAt, 0.5, "x")
	assert.ErrorIs(t, err, ErrResolution)
}

func TestCandidatesFromEntries(t *testing.T) {
	p := offsetNorth(0.4)
	q := offsetNorth(1.2)
	data := map[string]rtdbResponderEntry{
		"doc":      {Lat: p.Lat, Lng: p.Lng, Available: true, Role: "doctor", BloodGroup: "O-"},
		"citizen":  {Lat: q.Lat, Lng: q.Lng, Available: true, Role: "citizen"},
		"offline":  {Lat: p.Lat, Lng: p.Lng, Available: false},
		"reporter": {Lat: p.Lat, Lng: p.Lng, Available: true},
	}

	got := candidatesFromEntries(data, incidentAt, 1, "reporter")
	require.Len(t, got, 1)
	assert.Equal(t, types.ID("doc"), got[0].ID)
	assert.Equal(t, "O-", got[0].BloodGroup)
	assert.True(t, got[0].Available)
}
