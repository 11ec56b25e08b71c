// README: Incident aggregate, commitments, lifecycle transitions and analytics events.
package incident

import (
	"errors"
	"time"

	"herodispatch/internal/types"
)

var (
	ErrNotFound            = errors.New("incident not found")
	ErrConflict            = errors.New("incident state conflict")
	ErrDuplicateCommitment = errors.New("responder already committed")
)

type Severity string

const (
	SeverityMinor    Severity = "minor"
	SeverityModerate Severity = "moderate"
	SeverityCritical Severity = "critical"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityMinor, SeverityModerate, SeverityCritical:
		return true
	}
	return false
}

type Status string

const (
	StatusActive     Status = "active"
	StatusAssigned   Status = "assigned"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
	StatusFalseAlarm Status = "false_alarm"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusFalseAlarm
}

type Incident struct {
	ID                  types.ID       `json:"id"`
	ReporterID          types.ID       `json:"reporter_id"`
	Location            types.Point    `json:"location"`
	Address             string         `json:"address,omitempty"`
	Type                string         `json:"type"`
	Description         string         `json:"description,omitempty"`
	Severity            Severity       `json:"severity"`
	Status              Status         `json:"status"`
	StatusVersion       int            `json:"status_version"`
	RequiredResource    string         `json:"required_resource,omitempty"`
	CurrentRadiusKm     float64        `json:"current_radius_km"`
	RadiusLevel         int            `json:"radius_level"`
	AuthoritiesNotified bool           `json:"authorities_notified"`
	AssignedResponderID *types.ID      `json:"assigned_responder_id,omitempty"`
	ResponseTime        *time.Duration `json:"response_time,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
	ResolvedAt          *time.Time     `json:"resolved_at,omitempty"`
}

// AllowedTransitions represents the incident lifecycle as code. False alarm is
// an operator override that is only possible while still searching.
var AllowedTransitions = map[Status][]Status{
	StatusActive:     {StatusAssigned, StatusInProgress, StatusResolved, StatusFalseAlarm},
	StatusAssigned:   {StatusInProgress, StatusResolved},
	StatusInProgress: {StatusResolved},
}

func CanTransition(from, to Status) bool {
	for _, s := range AllowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// StatusPatch carries the columns written together with a status change.
type StatusPatch struct {
	AssignedResponderID *types.ID
	ResponseTime        *time.Duration
	ResolvedAt          *time.Time
}

// NearQuery selects incidents by status. With a Center only rows inside
// the bounding box of RadiusKm are returned, nearest first; without one
// the newest come first.
type NearQuery struct {
	Statuses []Status
	Center   *types.Point
	RadiusKm float64
	Limit    int
}

// Transition is an optimistic status change. It applies only while the
// incident is still in From at Version; From == To leaves the row alone.
type Transition struct {
	From    Status
	To      Status
	Version int
	Patch   StatusPatch
}

type CommitmentStatus string

const (
	CommitmentEnRoute CommitmentStatus = "en_route"
	CommitmentArrived CommitmentStatus = "arrived"
	CommitmentHelping CommitmentStatus = "helping"
)

var commitmentOrder = map[CommitmentStatus]int{
	CommitmentEnRoute: 0,
	CommitmentArrived: 1,
	CommitmentHelping: 2,
}

// CanAdvance reports whether a commitment may move from one status to
// another. Commitments only move forward.
func CanAdvance(from, to CommitmentStatus) bool {
	f, ok := commitmentOrder[from]
	if !ok {
		return false
	}
	t, ok := commitmentOrder[to]
	return ok && t > f
}

type Commitment struct {
	IncidentID  types.ID         `json:"incident_id"`
	ResponderID types.ID         `json:"responder_id"`
	Status      CommitmentStatus `json:"status"`
	ETAMinutes  int              `json:"eta_minutes"`
	DistanceKm  float64          `json:"distance_km"`
	Position    types.Point      `json:"position"`
	Primary     bool             `json:"primary"`
	JoinedAt    time.Time        `json:"joined_at"`
}

type EventType string

const (
	EventCreated    EventType = "emergency_created"
	EventHelperJoin EventType = "helper_joined"
	EventResolved   EventType = "emergency_resolved"
	EventFalseAlarm EventType = "false_alarm"
)

// Event is one row of the incident analytics log.
type Event struct {
	ID           int64
	IncidentID   types.ID
	Type         EventType
	FromStatus   Status
	ToStatus     Status
	ActorID      *types.ID
	ResponseTime *time.Duration
	CreatedAt    time.Time
}
