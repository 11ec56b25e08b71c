// README: Candidate finder reading responder presence from Firebase RTDB.
package responder

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/db"

	"herodispatch/internal/modules/location"
	"herodispatch/internal/types"
)

const defaultRTDBNode = "responder_locations"

// rtdbResponderEntry mirrors one entry under /responder_locations, written
// by the mobile app.
type rtdbResponderEntry struct {
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	Available  bool    `json:"available"`
	Role       string  `json:"role"`
	Profession string  `json:"profession"`
	BloodGroup string  `json:"bloodGroup"`
	Timestamp  int64   `json:"timestamp"`
}

type FirebaseFinder struct {
	client *db.Client
	node   string
}

func NewFirebaseFinder(client *db.Client) *FirebaseFinder {
	return &FirebaseFinder{client: client, node: defaultRTDBNode}
}

// FindAvailableWithinRadius loads available responders with an ordered
// query and filters them by haversine distance in process.
func (f *FirebaseFinder) FindAvailableWithinRadius(ctx context.Context, center types.Point, radiusKm float64, exclude types.ID) ([]Candidate, error) {
	var data map[string]rtdbResponderEntry
	if err := f.client.NewRef(f.node).OrderByChild("available").EqualTo(true).Get(ctx, &data); err != nil {
		return nil, fmt.Errorf("querying available responders: %w", err)
	}
	return candidatesFromEntries(data, center, radiusKm, exclude), nil
}

func candidatesFromEntries(data map[string]rtdbResponderEntry, center types.Point, radiusKm float64, exclude types.ID) []Candidate {
	var out []Candidate
	for id, e := range data {
		if types.ID(id) == exclude || !e.Available {
			continue
		}
		dist := location.DistanceKm(center.Lat, center.Lng, e.Lat, e.Lng)
		if dist > radiusKm {
			continue
		}
		out = append(out, Candidate{
			ID:         types.ID(id),
			Position:   types.Point{Lat: e.Lat, Lng: e.Lng},
			Available:  true,
			Role:       e.Role,
			Profession: e.Profession,
			BloodGroup: e.BloodGroup,
			DistanceKm: dist,
		})
	}
	location.SortByDistance(out, func(c Candidate) float64 { return c.DistanceKm })
	return out
}
