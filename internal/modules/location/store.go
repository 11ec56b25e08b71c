// README: Ping history backed by Postgres.
package location

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"herodispatch/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) AppendPing(ctx context.Context, p *Ping) error {
	err := s.db.QueryRow(ctx, `
		INSERT INTO helper_locations (incident_id, helper_id, lat, lng, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		string(p.IncidentID), string(p.HelperID), p.Position.Lat, p.Position.Lng, p.RecordedAt,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("location.AppendPing: %w", err)
	}
	return nil
}

// Latest returns the most recent ping of every helper on the incident.
func (s *Store) Latest(ctx context.Context, incidentID types.ID) ([]Ping, error) {
	rows, err := s.db.Query(ctx, `
		SELECT DISTINCT ON (helper_id) id, incident_id, helper_id, lat, lng, recorded_at
		FROM helper_locations
		WHERE incident_id = $1
		ORDER BY helper_id, recorded_at DESC, id DESC`,
		string(incidentID),
	)
	if err != nil {
		return nil, fmt.Errorf("location.Latest: %w", err)
	}
	return collectPings("location.Latest", rows)
}

// Trail returns a helper's pings oldest first, at most limit of them.
func (s *Store) Trail(ctx context.Context, incidentID, helperID types.ID, limit int) ([]Ping, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, incident_id, helper_id, lat, lng, recorded_at
		FROM helper_locations
		WHERE incident_id = $1 AND helper_id = $2
		ORDER BY recorded_at ASC, id ASC
		LIMIT $3`,
		string(incidentID), string(helperID), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("location.Trail: %w", err)
	}
	return collectPings("location.Trail", rows)
}

func collectPings(op string, rows pgx.Rows) ([]Ping, error) {
	pings, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Ping, error) {
		var (
			p                    Ping
			incidentID, helperID string
		)
		err := row.Scan(&p.ID, &incidentID, &helperID, &p.Position.Lat, &p.Position.Lng, &p.RecordedAt)
		p.IncidentID, p.HelperID = types.ID(incidentID), types.ID(helperID)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return pings, nil
}
