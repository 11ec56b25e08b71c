// README: Incident, commitment and event store backed by PostgreSQL.
package incident

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"herodispatch/internal/types"
)

const uniqueViolation = "23505"

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const incidentColumns = `
	id, reporter_id, lat, lng, address, type, description, severity,
	status, status_version, required_resource, current_radius_km, radius_level,
	authorities_notified, assigned_responder_id, response_time_ms, created_at, resolved_at`

func (s *Store) Create(ctx context.Context, inc *Incident) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO incidents (`+incidentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		string(inc.ID),
		string(inc.ReporterID),
		inc.Location.Lat, inc.Location.Lng,
		inc.Address,
		inc.Type,
		inc.Description,
		string(inc.Severity),
		string(inc.Status),
		inc.StatusVersion,
		inc.RequiredResource,
		inc.CurrentRadiusKm,
		inc.RadiusLevel,
		inc.AuthoritiesNotified,
		idPtr(inc.AssignedResponderID),
		durationMs(inc.ResponseTime),
		inc.CreatedAt,
		inc.ResolvedAt,
	)
	return wrapPgError("incident.Create", err, ErrConflict)
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Incident, error) {
	row := s.db.QueryRow(ctx, `SELECT `+incidentColumns+` FROM incidents WHERE id = $1`, string(id))
	inc, err := scanIncident(row)
	if err != nil {
		return nil, wrapPgError("incident.Get", err, ErrConflict)
	}
	return inc, nil
}

// ListActive returns incidents still searching for responders, oldest first.
func (s *Store) ListActive(ctx context.Context) ([]*Incident, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+incidentColumns+`
		FROM incidents
		WHERE status = 'active'
		ORDER BY created_at`)
	if err != nil {
		return nil, wrapPgError("incident.ListActive", err, ErrConflict)
	}
	defer rows.Close()

	var out []*Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, wrapPgError("incident.ListActive", err, ErrConflict)
		}
		out = append(out, inc)
	}
	return out, wrapPgError("incident.ListActive", rows.Err(), ErrConflict)
}

// ListNear returns incidents matching q. The box is coarse; callers
// that need an exact radius filter by great-circle distance.
func (s *Store) ListNear(ctx context.Context, q NearQuery) ([]*Incident, error) {
	statuses := make([]string, 0, len(q.Statuses))
	for _, st := range q.Statuses {
		statuses = append(statuses, string(st))
	}

	var (
		rows pgx.Rows
		err  error
	)
	if q.Center == nil {
		rows, err = s.db.Query(ctx, `
			SELECT `+incidentColumns+`
			FROM incidents
			WHERE status = ANY($1)
			ORDER BY created_at DESC
			LIMIT $2`,
			statuses, q.Limit,
		)
	} else {
		box := types.BoundsAround(*q.Center, q.RadiusKm)
		// Planar distance with longitude scaled at the center latitude.
		rows, err = s.db.Query(ctx, `
			SELECT `+incidentColumns+`
			FROM incidents
			WHERE status = ANY($1)
			  AND lat BETWEEN $2 AND $3
			  AND lng BETWEEN $4 AND $5
			ORDER BY power(lat - $6, 2) + power((lng - $7) * $8, 2), created_at DESC
			LIMIT $9`,
			statuses, box.MinLat, box.MaxLat, box.MinLng, box.MaxLng,
			q.Center.Lat, q.Center.Lng, math.Cos(q.Center.Lat*math.Pi/180), q.Limit,
		)
	}
	if err != nil {
		return nil, wrapPgError("incident.ListNear", err, ErrConflict)
	}
	defer rows.Close()

	var out []*Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, wrapPgError("incident.ListNear", err, ErrConflict)
		}
		out = append(out, inc)
	}
	return out, wrapPgError("incident.ListNear", rows.Err(), ErrConflict)
}

// UpdateRadius moves the incident to a larger radius level. It only applies
// while the incident is active and the level grows; false means the update
// was stale.
func (s *Store) UpdateRadius(ctx context.Context, id types.ID, level int, radiusKm float64) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE incidents
		SET radius_level = $2,
		    current_radius_km = $3
		WHERE id = $1 AND status = 'active' AND radius_level < $2`,
		string(id), level, radiusKm,
	)
	if err != nil {
		return false, wrapPgError("incident.UpdateRadius", err, ErrConflict)
	}
	return tag.RowsAffected() == 1, nil
}

// execer is satisfied by both the pool and a transaction.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// errStale rolls back a transaction whose optimistic check failed.
var errStale = errors.New("stale transition")

// UpdateStatus is an optimistic transition: it only applies when the row is
// still in `from` at `version`.
func (s *Store) UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int, patch StatusPatch) (bool, error) {
	ok, err := updateStatus(ctx, s.db, id, Transition{From: from, To: to, Version: version, Patch: patch})
	if err != nil {
		return false, wrapPgError("incident.UpdateStatus", err, ErrConflict)
	}
	return ok, nil
}

func updateStatus(ctx context.Context, q execer, id types.ID, t Transition) (bool, error) {
	tag, err := q.Exec(ctx, `
		UPDATE incidents
		SET status = $1,
		    status_version = status_version + 1,
		    assigned_responder_id = COALESCE($2, assigned_responder_id),
		    response_time_ms = COALESCE($3, response_time_ms),
		    resolved_at = COALESCE($4, resolved_at)
		WHERE id = $5 AND status = $6 AND status_version = $7`,
		string(t.To),
		idPtr(t.Patch.AssignedResponderID),
		durationMs(t.Patch.ResponseTime),
		t.Patch.ResolvedAt,
		string(id),
		string(t.From),
		t.Version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) SetAddress(ctx context.Context, id types.ID, address string) error {
	tag, err := s.db.Exec(ctx, `UPDATE incidents SET address = $2 WHERE id = $1`, string(id), address)
	if err != nil {
		return wrapPgError("incident.SetAddress", err, ErrConflict)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ---------------------------------------------------------------------------
// Commitments
// ---------------------------------------------------------------------------

const commitmentColumns = `
	incident_id, responder_id, status, eta_minutes, distance_km, lat, lng, is_primary, joined_at`

// Commit stores a commitment together with the incident transition it
// causes, in one transaction. It reports false and writes nothing when the
// transition is stale.
func (s *Store) Commit(ctx context.Context, c *Commitment, t Transition) (bool, error) {
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if t.From != t.To {
			ok, err := updateStatus(ctx, tx, c.IncidentID, t)
			if err != nil {
				return err
			}
			if !ok {
				return errStale
			}
		}
		return insertCommitment(ctx, tx, c)
	})
	if errors.Is(err, errStale) {
		return false, nil
	}
	if err != nil {
		return false, wrapPgError("incident.Commit", err, ErrDuplicateCommitment)
	}
	return true, nil
}

func insertCommitment(ctx context.Context, q execer, c *Commitment) error {
	_, err := q.Exec(ctx, `
		INSERT INTO incident_commitments (`+commitmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		string(c.IncidentID),
		string(c.ResponderID),
		string(c.Status),
		c.ETAMinutes,
		c.DistanceKm,
		c.Position.Lat, c.Position.Lng,
		c.Primary,
		c.JoinedAt,
	)
	return err
}

func (s *Store) GetCommitment(ctx context.Context, incidentID, responderID types.ID) (*Commitment, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+commitmentColumns+`
		FROM incident_commitments
		WHERE incident_id = $1 AND responder_id = $2`,
		string(incidentID), string(responderID),
	)
	c, err := scanCommitment(row)
	if err != nil {
		return nil, wrapPgError("incident.GetCommitment", err, ErrConflict)
	}
	return c, nil
}

func (s *Store) ListCommitments(ctx context.Context, incidentID types.ID) ([]*Commitment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+commitmentColumns+`
		FROM incident_commitments
		WHERE incident_id = $1
		ORDER BY joined_at`, string(incidentID))
	if err != nil {
		return nil, wrapPgError("incident.ListCommitments", err, ErrConflict)
	}
	defer rows.Close()

	var out []*Commitment
	for rows.Next() {
		c, err := scanCommitment(rows)
		if err != nil {
			return nil, wrapPgError("incident.ListCommitments", err, ErrConflict)
		}
		out = append(out, c)
	}
	return out, wrapPgError("incident.ListCommitments", rows.Err(), ErrConflict)
}

func (s *Store) UpdateCommitmentStatus(ctx context.Context, incidentID, responderID types.ID, from, to CommitmentStatus) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE incident_commitments
		SET status = $3
		WHERE incident_id = $1 AND responder_id = $2 AND status = $4`,
		string(incidentID), string(responderID), string(to), string(from),
	)
	if err != nil {
		return false, wrapPgError("incident.UpdateCommitmentStatus", err, ErrConflict)
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateCommitmentPosition records the responder's latest position. It
// reports false when the responder has no commitment on the incident.
func (s *Store) UpdateCommitmentPosition(ctx context.Context, incidentID, responderID types.ID, pos types.Point) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE incident_commitments
		SET lat = $3, lng = $4
		WHERE incident_id = $1 AND responder_id = $2`,
		string(incidentID), string(responderID), pos.Lat, pos.Lng,
	)
	if err != nil {
		return false, wrapPgError("incident.UpdateCommitmentPosition", err, ErrConflict)
	}
	return tag.RowsAffected() == 1, nil
}

// ---------------------------------------------------------------------------
// Events
// ---------------------------------------------------------------------------

func (s *Store) AppendEvent(ctx context.Context, e *Event) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO incident_events (
			incident_id, type, from_status, to_status, actor_id, response_time_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		string(e.IncidentID),
		string(e.Type),
		string(e.FromStatus),
		string(e.ToStatus),
		idPtr(e.ActorID),
		durationMs(e.ResponseTime),
		e.CreatedAt,
	)
	return wrapPgError("incident.AppendEvent", err, ErrConflict)
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func scanIncident(row pgx.Row) (*Incident, error) {
	var (
		inc          Incident
		id, reporter string
		severity     string
		status       string
		assigned     *string
		responseMs   *int64
	)
	err := row.Scan(
		&id, &reporter, &inc.Location.Lat, &inc.Location.Lng, &inc.Address, &inc.Type, &inc.Description, &severity,
		&status, &inc.StatusVersion, &inc.RequiredResource, &inc.CurrentRadiusKm, &inc.RadiusLevel,
		&inc.AuthoritiesNotified, &assigned, &responseMs, &inc.CreatedAt, &inc.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}
	inc.ID = types.ID(id)
	inc.ReporterID = types.ID(reporter)
	inc.Severity = Severity(severity)
	inc.Status = Status(status)
	if assigned != nil {
		a := types.ID(*assigned)
		inc.AssignedResponderID = &a
	}
	if responseMs != nil {
		d := time.Duration(*responseMs) * time.Millisecond
		inc.ResponseTime = &d
	}
	return &inc, nil
}

func scanCommitment(row pgx.Row) (*Commitment, error) {
	var (
		c                  Commitment
		incidentID, respID string
		status             string
	)
	err := row.Scan(
		&incidentID, &respID, &status, &c.ETAMinutes, &c.DistanceKm,
		&c.Position.Lat, &c.Position.Lng, &c.Primary, &c.JoinedAt,
	)
	if err != nil {
		return nil, err
	}
	c.IncidentID = types.ID(incidentID)
	c.ResponderID = types.ID(respID)
	c.Status = CommitmentStatus(status)
	return &c, nil
}

// wrapPgError maps driver errors onto package sentinels: missing rows become
// ErrNotFound and unique violations become dup.
func wrapPgError(op string, err error, dup error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", op, dup)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func idPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func durationMs(d *time.Duration) *int64 {
	if d == nil {
		return nil
	}
	ms := d.Milliseconds()
	return &ms
}
