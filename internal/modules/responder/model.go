// README: Responder candidates, profiles and reward deltas.
package responder

import (
	"errors"

	"herodispatch/internal/types"
)

var (
	ErrNotFound   = errors.New("responder not found")
	ErrResolution = errors.New("candidate resolution failed")
)

// Candidate is an ephemeral snapshot of a responder considered for an incident.
type Candidate struct {
	ID         types.ID    `json:"id"`
	Position   types.Point `json:"position"`
	Available  bool        `json:"available"`
	Role       string      `json:"role"`
	Profession string      `json:"profession,omitempty"`
	BloodGroup string      `json:"blood_group,omitempty"`
	DistanceKm float64     `json:"distance_km"`
}

// Presence is what a responder's device reports about itself.
type Presence struct {
	ID          types.ID
	Role        string
	Profession  string
	BloodGroup  string
	Available   bool
	Position    *types.Point
	DeviceToken string
}

// Reward is an additive change to a responder's counters.
type Reward struct {
	Points     int
	Rescues    int
	TrustDelta int
}

var (
	RescueReward      = Reward{Points: 10, Rescues: 1, TrustDelta: 2}
	FalseAlarmPenalty = Reward{TrustDelta: -5}
)

const (
	minTrust = 0
	maxTrust = 100
)
