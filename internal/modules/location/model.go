// README: Helper location ping, the unit of live tracking.
package location

import (
	"errors"
	"time"

	"herodispatch/internal/types"
)

var (
	ErrInvalidPing  = errors.New("invalid location ping")
	ErrNotCommitted = errors.New("helper is not committed to this incident")
	ErrClosed       = errors.New("incident is closed")
)

// TrailLimit caps how many pings a trail query returns.
const TrailLimit = 500

type Ping struct {
	ID         int64       `json:"id,omitempty"`
	IncidentID types.ID    `json:"incident_id"`
	HelperID   types.ID    `json:"helper_id"`
	Position   types.Point `json:"position"`
	RecordedAt time.Time   `json:"recorded_at"`
}

func (p Ping) validate() error {
	if p.IncidentID == "" || p.HelperID == "" {
		return errors.Join(ErrInvalidPing, errors.New("incident and helper are required"))
	}
	if !p.Position.Valid() {
		return errors.Join(ErrInvalidPing, errors.New("position out of range"))
	}
	return nil
}
