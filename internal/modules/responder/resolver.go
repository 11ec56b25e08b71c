// README: Candidate pool resolver: filters, measures and orders responders around an incident.
package responder

import (
	"context"
	"fmt"

	"herodispatch/internal/modules/location"
	"herodispatch/internal/types"
)

// Finder returns responders that may be inside the radius. Results are
// treated as hints: the resolver re-checks availability and distance.
type Finder interface {
	FindAvailableWithinRadius(ctx context.Context, center types.Point, radiusKm float64, exclude types.ID) ([]Candidate, error)
}

type Resolver struct {
	finder Finder
}

func NewResolver(finder Finder) *Resolver {
	return &Resolver{finder: finder}
}

// ResolveCandidates returns available responders within radiusKm of center,
// closest first, never including exclude. An empty pool is not an error.
func (r *Resolver) ResolveCandidates(ctx context.Context, center types.Point, radiusKm float64, exclude types.ID) ([]Candidate, error) {
	found, err := r.finder.FindAvailableWithinRadius(ctx, center, radiusKm, exclude)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResolution, err)
	}

	seen := make(map[types.ID]struct{}, len(found))
	out := make([]Candidate, 0, len(found))
	for _, c := range found {
		if c.ID == "" || c.ID == exclude || !c.Available {
			continue
		}
		if _, dup := seen[c.ID]; dup {
			continue
		}
		c.DistanceKm = location.DistanceBetween(center, c.Position)
		if c.DistanceKm > radiusKm {
			continue
		}
		seen[c.ID] = struct{}{}
		out = append(out, c)
	}

	location.SortByDistance(out, func(c Candidate) float64 { return c.DistanceKm })
	return out, nil
}
