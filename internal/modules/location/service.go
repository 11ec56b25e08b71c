// README: Location service records helper pings and streams them to the incident room.
package location

import (
	"context"
	"fmt"

	"github.com/facebookgo/clock"
	"github.com/rs/zerolog"

	"herodispatch/internal/modules/incident"
	"herodispatch/internal/modules/notify"
	"herodispatch/internal/types"
)

type PingStore interface {
	AppendPing(ctx context.Context, p *Ping) error
	Latest(ctx context.Context, incidentID types.ID) ([]Ping, error)
	Trail(ctx context.Context, incidentID, helperID types.ID, limit int) ([]Ping, error)
}

// Incidents looks up the incident a ping belongs to.
type Incidents interface {
	Get(ctx context.Context, id types.ID) (*incident.Incident, error)
}

// Commitments moves a helper's position on their commitment. It reports
// false when the helper has no commitment on the incident.
type Commitments interface {
	UpdateCommitmentPosition(ctx context.Context, incidentID, responderID types.ID, pos types.Point) (bool, error)
}

// PositionIndex is the responder GEO index used for candidate search.
type PositionIndex interface {
	SetPosition(ctx context.Context, id types.ID, pos types.Point) error
}

type Service struct {
	store       PingStore
	incidents   Incidents
	commitments Commitments
	index       PositionIndex
	transport   notify.Transport
	clock       clock.Clock
	logger      zerolog.Logger
}

func NewService(store PingStore, incidents Incidents, commitments Commitments, index PositionIndex, transport notify.Transport, clk clock.Clock, logger zerolog.Logger) *Service {
	return &Service{
		store:       store,
		incidents:   incidents,
		commitments: commitments,
		index:       index,
		transport:   transport,
		clock:       clk,
		logger:      logger.With().Str("component", "location").Logger(),
	}
}

// Ping records a committed helper's position. Only helpers with a commitment
// on an open incident may ping.
func (s *Service) Ping(ctx context.Context, p Ping) (Ping, error) {
	if err := p.validate(); err != nil {
		return Ping{}, err
	}
	inc, err := s.incidents.Get(ctx, p.IncidentID)
	if err != nil {
		return Ping{}, fmt.Errorf("location.Ping: %w", err)
	}
	if inc.Status.Terminal() {
		return Ping{}, ErrClosed
	}
	ok, err := s.commitments.UpdateCommitmentPosition(ctx, p.IncidentID, p.HelperID, p.Position)
	if err != nil {
		return Ping{}, fmt.Errorf("location.Ping: %w", err)
	}
	if !ok {
		return Ping{}, ErrNotCommitted
	}

	if p.RecordedAt.IsZero() {
		p.RecordedAt = s.clock.Now()
	}
	if err := s.store.AppendPing(ctx, &p); err != nil {
		return Ping{}, err
	}

	if s.index != nil {
		if err := s.index.SetPosition(ctx, p.HelperID, p.Position); err != nil {
			s.logger.Warn().Err(err).Str("responder_id", p.HelperID.String()).Msg("geo index update failed")
		}
	}

	err = s.transport.Deliver(ctx, notify.Envelope{
		Recipient:  notify.ToIncident(p.IncidentID),
		IncidentID: p.IncidentID,
		Event: notify.HelperLocation{
			IncidentID:  p.IncidentID,
			ResponderID: p.HelperID,
			Location:    p.Position,
			At:          p.RecordedAt,
		},
	})
	if err != nil {
		s.logger.Warn().Err(err).
			Str("incident_id", p.IncidentID.String()).
			Str("responder_id", p.HelperID.String()).
			Msg("helper location publish failed")
	}
	return p, nil
}

func (s *Service) Latest(ctx context.Context, incidentID types.ID) ([]Ping, error) {
	return s.store.Latest(ctx, incidentID)
}

func (s *Service) Trail(ctx context.Context, incidentID, helperID types.ID) ([]Ping, error) {
	return s.store.Trail(ctx, incidentID, helperID, TrailLimit)
}
