// README: Websocket wire messages exchanged with apps.
package realtime

import (
	"encoding/json"

	"herodispatch/internal/types"
)

// Inbound message types.
const (
	TypeJoin           = "emergency:join"
	TypeLeave          = "emergency:leave"
	TypeLocationUpdate = "location:update"
)

// Outbound control events. Domain events are written as notify envelopes.
const (
	EventConnected = "connected"
	EventJoined    = "emergency:joined"
	EventLeft      = "emergency:left"
	EventError     = "error"
)

type inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type roomRequest struct {
	IncidentID types.ID `json:"incident_id"`
}

type locationUpdate struct {
	IncidentID types.ID `json:"incident_id"`
	Lat        float64  `json:"lat"`
	Lng        float64  `json:"lng"`
}

type control struct {
	Event      string   `json:"event"`
	IncidentID types.ID `json:"incident_id,omitempty"`
	UserID     types.ID `json:"user_id,omitempty"`
	Message    string   `json:"message,omitempty"`
}

func encodeControl(c control) []byte {
	b, _ := json.Marshal(c)
	return b
}
