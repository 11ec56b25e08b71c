// README: Idempotent schema bootstrap for incidents, commitments, events, responders and helper pings.
package infra

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS incidents (
		id                    TEXT PRIMARY KEY,
		reporter_id           TEXT NOT NULL,
		lat                   DOUBLE PRECISION NOT NULL,
		lng                   DOUBLE PRECISION NOT NULL,
		address               TEXT NOT NULL DEFAULT '',
		type                  TEXT NOT NULL DEFAULT 'other',
		description           TEXT NOT NULL DEFAULT '',
		severity              TEXT NOT NULL,
		status                TEXT NOT NULL,
		status_version        INTEGER NOT NULL DEFAULT 0,
		required_resource     TEXT NOT NULL DEFAULT '',
		current_radius_km     DOUBLE PRECISION NOT NULL,
		radius_level          INTEGER NOT NULL DEFAULT 0,
		authorities_notified  BOOLEAN NOT NULL DEFAULT FALSE,
		assigned_responder_id TEXT,
		response_time_ms      BIGINT,
		created_at            TIMESTAMPTZ NOT NULL,
		resolved_at           TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS incidents_status_idx ON incidents (status, created_at)`,
	`CREATE INDEX IF NOT EXISTS incidents_position_idx ON incidents (lat, lng)`,
	`CREATE TABLE IF NOT EXISTS incident_commitments (
		incident_id  TEXT NOT NULL REFERENCES incidents (id),
		responder_id TEXT NOT NULL,
		status       TEXT NOT NULL,
		eta_minutes  INTEGER NOT NULL,
		distance_km  DOUBLE PRECISION NOT NULL,
		lat          DOUBLE PRECISION NOT NULL,
		lng          DOUBLE PRECISION NOT NULL,
		is_primary   BOOLEAN NOT NULL DEFAULT FALSE,
		joined_at    TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (incident_id, responder_id)
	)`,
	`CREATE TABLE IF NOT EXISTS incident_events (
		id               BIGSERIAL PRIMARY KEY,
		incident_id      TEXT NOT NULL,
		type             TEXT NOT NULL,
		from_status      TEXT NOT NULL DEFAULT '',
		to_status        TEXT NOT NULL DEFAULT '',
		actor_id         TEXT,
		response_time_ms BIGINT,
		created_at       TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS responders (
		id           TEXT PRIMARY KEY,
		role         TEXT NOT NULL DEFAULT 'citizen',
		profession   TEXT NOT NULL DEFAULT '',
		blood_group  TEXT NOT NULL DEFAULT '',
		is_available BOOLEAN NOT NULL DEFAULT TRUE,
		device_token TEXT NOT NULL DEFAULT '',
		points       INTEGER NOT NULL DEFAULT 0,
		rescues      INTEGER NOT NULL DEFAULT 0,
		trust_score  INTEGER NOT NULL DEFAULT 50
	)`,
	`CREATE TABLE IF NOT EXISTS helper_locations (
		id          BIGSERIAL PRIMARY KEY,
		incident_id TEXT NOT NULL,
		helper_id   TEXT NOT NULL,
		lat         DOUBLE PRECISION NOT NULL,
		lng         DOUBLE PRECISION NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS helper_locations_trail_idx ON helper_locations (incident_id, helper_id, recorded_at)`,
}

// Tables lists the tables Migrate creates.
var Tables = []string{"incidents", "incident_commitments", "incident_events", "responders", "helper_locations"}

// Migrate creates missing tables and indexes.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("infra.Migrate: %w", err)
		}
	}
	return nil
}
