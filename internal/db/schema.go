package db

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE EXTENSION IF NOT EXISTS postgis`,
	`CREATE TABLE IF NOT EXISTS devices (
		id          text PRIMARY KEY,
		name        text NOT NULL,
		secret_hash text NOT NULL,
		created_at  timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS session_backups (
		device_id   text PRIMARY KEY,
		payload     jsonb NOT NULL,
		backup_time timestamptz NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS routes (
		id                text PRIMARY KEY,
		device_id         text NOT NULL,
		session_id        text NOT NULL,
		started_at        timestamptz NOT NULL,
		ended_at          timestamptz NOT NULL,
		total_distance_km double precision NOT NULL DEFAULT 0,
		elapsed_ms        bigint NOT NULL DEFAULT 0,
		point_count       integer NOT NULL DEFAULT 0,
		path              geography(LineString, 4326),
		points            jsonb NOT NULL DEFAULT '[]',
		created_at        timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS routes_device_ended_idx ON routes (device_id, ended_at DESC)`,
	`CREATE INDEX IF NOT EXISTS routes_path_idx ON routes USING GIST (path)`,
	`CREATE TABLE IF NOT EXISTS photo_objects (
		id           text PRIMARY KEY,
		device_id    text NOT NULL,
		url          text NOT NULL,
		content_type text NOT NULL,
		created_at   timestamptz NOT NULL DEFAULT now()
	)`,
}

// EnsureSchema creates the tables used by the server. Every statement is
// idempotent.
func EnsureSchema(ctx context.Context, q Querier) error {
	for i, stmt := range schema {
		if _, err := q.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	return nil
}
