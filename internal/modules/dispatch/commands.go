// README: Dispatch command structs with validation rules.
package dispatch

import (
	"herodispatch/internal/modules/incident"
	"herodispatch/internal/types"
)

type SubmitCommand struct {
	ReporterID       types.ID          `validate:"required"`
	Location         *types.Point      `validate:"required"`
	Severity         incident.Severity `validate:"required,oneof=minor moderate critical"`
	Type             string            `validate:"omitempty,oneof=road_accident medical fire natural_disaster violence other"`
	Description      string            `validate:"max=2000"`
	RequiredResource string            `validate:"omitempty,oneof=A+ A- B+ B- AB+ AB- O+ O-"`
}

type AcceptCommand struct {
	IncidentID  types.ID `validate:"required"`
	ResponderID types.ID `validate:"required"`
	Location    types.Point
}

type ResolveCommand struct {
	IncidentID types.ID `validate:"required"`
	ActorID    types.ID `validate:"required"`
}

type FalseAlarmCommand struct {
	IncidentID types.ID `validate:"required"`
	ActorID    types.ID `validate:"required"`
}

type AdvanceCommand struct {
	IncidentID  types.ID                  `validate:"required"`
	ResponderID types.ID                  `validate:"required"`
	Status      incident.CommitmentStatus `validate:"required,oneof=en_route arrived helping"`
}

// NearbyQuery lists incidents around an optional center. Zero values take
// the defaults: active only, 10 km, 50 rows.
type NearbyQuery struct {
	Center   *types.Point
	RadiusKm float64           `validate:"gte=0,lte=100"`
	Statuses []incident.Status `validate:"dive,oneof=active assigned in_progress resolved false_alarm"`
	Limit    int               `validate:"gte=0,lte=200"`
}

// NearbyIncident carries the distance from the query center when one was
// given.
type NearbyIncident struct {
	*incident.Incident
	DistanceKm *float64 `json:"distance_km,omitempty"`
}

// View is an incident together with its commitments.
type View struct {
	Incident    *incident.Incident     `json:"incident"`
	Commitments []*incident.Commitment `json:"commitments"`
}
