// README: Typed notification events and the envelope handed to transports.
package notify

import (
	"encoding/json"
	"time"

	"herodispatch/internal/types"
)

// Event is a notification payload. Kind is the wire event name.
type Event interface {
	Kind() string
}

// Summary is the incident snapshot embedded in alert payloads.
type Summary struct {
	IncidentID          types.ID    `json:"incident_id"`
	Type                string      `json:"type"`
	Severity            string      `json:"severity"`
	Location            types.Point `json:"location"`
	RadiusKm            float64     `json:"radius_km"`
	RequiredResource    string      `json:"required_resource,omitempty"`
	Description         string      `json:"description,omitempty"`
	AuthoritiesNotified bool        `json:"authorities_notified"`
	CreatedAt           time.Time   `json:"created_at"`
}

// TierAlert asks a responder to help because they matched a role tier or a
// distance band.
type TierAlert struct {
	Summary
	Tier       string  `json:"tier"`
	DistanceKm float64 `json:"distance_km"`
	Wave       int     `json:"wave"`
}

// ResourceAlert asks a responder who carries the resource the incident needs
// (a matching blood group).
type ResourceAlert struct {
	Summary
	Resource   string  `json:"resource"`
	DistanceKm float64 `json:"distance_km"`
	Wave       int     `json:"wave"`
}

type RadiusUpdate struct {
	IncidentID types.ID `json:"incident_id"`
	RadiusKm   float64  `json:"radius_km"`
	Level      int      `json:"level"`
}

type CommitmentUpdate struct {
	IncidentID     types.ID `json:"incident_id"`
	ResponderID    types.ID `json:"responder_id"`
	Status         string   `json:"status"`
	IncidentStatus string   `json:"incident_status"`
	Helpers        int      `json:"helpers"`
}

type HelperAccepted struct {
	IncidentID  types.ID `json:"incident_id"`
	ResponderID types.ID `json:"responder_id"`
	ETAMinutes  int      `json:"eta_minutes"`
	DistanceKm  float64  `json:"distance_km"`
}

type Resolution struct {
	IncidentID types.ID  `json:"incident_id"`
	Status     string    `json:"status"`
	At         time.Time `json:"at"`
}

type HelperLocation struct {
	IncidentID  types.ID    `json:"incident_id"`
	ResponderID types.ID    `json:"responder_id"`
	Location    types.Point `json:"location"`
	At          time.Time   `json:"at"`
}

func (TierAlert) Kind() string        { return "emergency:priority" }
func (ResourceAlert) Kind() string    { return "emergency:blood" }
func (RadiusUpdate) Kind() string     { return "emergency:radius" }
func (CommitmentUpdate) Kind() string { return "emergency:updated" }
func (HelperAccepted) Kind() string   { return "helper:accepted" }
func (Resolution) Kind() string       { return "emergency:resolved" }
func (HelperLocation) Kind() string   { return "helper:location" }

type Audience string

const (
	AudienceUser     Audience = "user"
	AudienceIncident Audience = "incident"
)

// Recipient addresses either one user or everyone watching an incident.
type Recipient struct {
	Audience Audience
	ID       types.ID
}

func ToUser(id types.ID) Recipient     { return Recipient{Audience: AudienceUser, ID: id} }
func ToIncident(id types.ID) Recipient { return Recipient{Audience: AudienceIncident, ID: id} }

// Channel names the pub/sub channel for the recipient, e.g. "dispatch:user:42".
func (r Recipient) Channel(prefix string) string {
	return prefix + ":" + string(r.Audience) + ":" + string(r.ID)
}

type Envelope struct {
	Recipient  Recipient
	IncidentID types.ID
	Event      Event
}

type wireEnvelope struct {
	Event       string   `json:"event"`
	Audience    Audience `json:"audience"`
	RecipientID types.ID `json:"recipient_id"`
	IncidentID  types.ID `json:"incident_id"`
	Data        Event    `json:"data"`
}

func (e Envelope) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireEnvelope{
		Event:       e.Event.Kind(),
		Audience:    e.Recipient.Audience,
		RecipientID: e.Recipient.ID,
		IncidentID:  e.IncidentID,
		Data:        e.Event,
	})
}
