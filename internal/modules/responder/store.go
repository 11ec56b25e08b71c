// README: Responder store backed by a Redis GEO index (positions) and PostgreSQL (profiles, rewards).
package responder

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"herodispatch/internal/types"
)

const geoKey = "responders:geo"

type Store struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func NewStore(db *pgxpool.Pool, redis *redis.Client) *Store {
	return &Store{db: db, redis: redis}
}

// SetPosition moves the responder in the GEO index.
func (s *Store) SetPosition(ctx context.Context, id types.ID, pos types.Point) error {
	err := s.redis.GeoAdd(ctx, geoKey, &redis.GeoLocation{
		Name:      string(id),
		Longitude: pos.Lng,
		Latitude:  pos.Lat,
	}).Err()
	if err != nil {
		return fmt.Errorf("responder.SetPosition: %w", err)
	}
	return nil
}

// UpdatePresence upserts the responder profile and keeps the GEO index in
// step with availability: unavailable responders are removed from it.
func (s *Store) UpdatePresence(ctx context.Context, p Presence) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO responders (id, role, profession, blood_group, is_available, device_token)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET role = EXCLUDED.role,
		    profession = EXCLUDED.profession,
		    blood_group = EXCLUDED.blood_group,
		    is_available = EXCLUDED.is_available,
		    device_token = CASE WHEN EXCLUDED.device_token = '' THEN responders.device_token ELSE EXCLUDED.device_token END`,
		string(p.ID), p.Role, p.Profession, p.BloodGroup, p.Available, p.DeviceToken,
	)
	if err != nil {
		return fmt.Errorf("responder.UpdatePresence: %w", err)
	}

	if !p.Available {
		if err := s.redis.ZRem(ctx, geoKey, string(p.ID)).Err(); err != nil {
			return fmt.Errorf("responder.UpdatePresence geo remove: %w", err)
		}
		return nil
	}
	if p.Position != nil {
		return s.SetPosition(ctx, p.ID, *p.Position)
	}
	return nil
}

// FindAvailableWithinRadius runs a GEO radius search and joins the hits
// with available responder profiles.
func (s *Store) FindAvailableWithinRadius(ctx context.Context, center types.Point, radiusKm float64, exclude types.ID) ([]Candidate, error) {
	locs, err := s.redis.GeoSearchLocation(ctx, geoKey, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  center.Lng,
			Latitude:   center.Lat,
			Radius:     radiusKm,
			RadiusUnit: "km",
			Sort:       "ASC",
		},
		WithCoord: true,
		WithDist:  true,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("responder geo search: %w", err)
	}
	if len(locs) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(locs))
	for _, l := range locs {
		if l.Name != string(exclude) {
			ids = append(ids, l.Name)
		}
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, role, profession, blood_group
		FROM responders
		WHERE id = ANY($1) AND is_available`, ids)
	if err != nil {
		return nil, fmt.Errorf("responder profiles: %w", err)
	}
	defer rows.Close()

	profiles := make(map[string]Candidate, len(ids))
	for rows.Next() {
		var id string
		var c Candidate
		if err := rows.Scan(&id, &c.Role, &c.Profession, &c.BloodGroup); err != nil {
			return nil, fmt.Errorf("responder profiles scan: %w", err)
		}
		c.ID = types.ID(id)
		c.Available = true
		profiles[id] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("responder profiles: %w", err)
	}

	out := make([]Candidate, 0, len(profiles))
	for _, l := range locs {
		c, ok := profiles[l.Name]
		if !ok {
			continue
		}
		c.Position = types.Point{Lat: l.Latitude, Lng: l.Longitude}
		c.DistanceKm = l.Dist
		out = append(out, c)
	}
	return out, nil
}

// ApplyReward adds the reward to the responder's counters. Trust stays
// within [0, 100].
func (s *Store) ApplyReward(ctx context.Context, id types.ID, r Reward) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE responders
		SET points = points + $2,
		    rescues = rescues + $3,
		    trust_score = LEAST($5, GREATEST($4, trust_score + $6))
		WHERE id = $1`,
		string(id), r.Points, r.Rescues, minTrust, maxTrust, r.TrustDelta,
	)
	if err != nil {
		return fmt.Errorf("responder.ApplyReward: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("responder.ApplyReward %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeviceToken returns the FCM token of the responder, or "" when none is registered.
func (s *Store) DeviceToken(ctx context.Context, id types.ID) (string, error) {
	var token string
	err := s.db.QueryRow(ctx, `SELECT device_token FROM responders WHERE id = $1`, string(id)).Scan(&token)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("responder.DeviceToken: %w", err)
	}
	return token, nil
}

// Stats is the reward counters of one responder.
type Stats struct {
	Points     int `json:"points"`
	Rescues    int `json:"rescues"`
	TrustScore int `json:"trust_score"`
}

func (s *Store) Stats(ctx context.Context, id types.ID) (Stats, error) {
	var st Stats
	err := s.db.QueryRow(ctx, `SELECT points, rescues, trust_score FROM responders WHERE id = $1`, string(id)).
		Scan(&st.Points, &st.Rescues, &st.TrustScore)
	if errors.Is(err, pgx.ErrNoRows) {
		return st, ErrNotFound
	}
	if err != nil {
		return st, fmt.Errorf("responder.Stats: %w", err)
	}
	return st, nil
}
