package archive

import (
	"context"
	"encoding/json"
	"fmt"

	"backend-traillog/internal/db"
	"backend-traillog/internal/tracking"

	"github.com/google/uuid"
)

// Service stores finished sessions in the routes table. It satisfies
// tracking.Archiver.
type Service struct {
	db db.Querier
}

func NewService(db db.Querier) *Service {
	return &Service{db: db}
}

func (s *Service) Archive(ctx context.Context, finished tracking.FinishedRoute) error {
	_, err := s.Save(ctx, finished)
	return err
}

func (s *Service) Save(ctx context.Context, finished tracking.FinishedRoute) (Route, error) {
	points, err := json.Marshal(finished.Points)
	if err != nil {
		return Route{}, fmt.Errorf("encode points: %w", err)
	}
	route := Route{
		ID:              uuid.NewString(),
		DeviceID:        finished.DeviceID,
		SessionID:       finished.SessionID,
		StartedAt:       finished.StartedAt,
		EndedAt:         finished.EndedAt,
		TotalDistanceKm: finished.TotalDistance,
		ElapsedMs:       finished.ElapsedTime,
		PointCount:      len(finished.Points),
		Points:          finished.Points,
	}
	path := PathWKT(finished.Points)
	if path != nil {
		route.PathWKT = *path
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO routes (id, device_id, session_id, started_at, ended_at, total_distance_km, elapsed_ms, point_count, path, points)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8, ST_GeogFromText($9), $10::jsonb)
		RETURNING created_at
	`, route.ID, route.DeviceID, route.SessionID, route.StartedAt, route.EndedAt, route.TotalDistanceKm, route.ElapsedMs, route.PointCount, path, string(points))
	if err := row.Scan(&route.CreatedAt); err != nil {
		return Route{}, fmt.Errorf("archive route: %w", err)
	}
	return route, nil
}

// Routes lists the archived routes of a device, newest first, without
// their point logs.
func (s *Service) Routes(ctx context.Context, deviceID string) ([]Route, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, device_id, session_id, started_at, ended_at, total_distance_km, elapsed_ms, point_count, COALESCE(ST_AsText(path), ''), created_at
		FROM routes WHERE device_id=$1
		ORDER BY ended_at DESC
	`, deviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	routes := []Route{}
	for rows.Next() {
		var r Route
		if err := rows.Scan(&r.ID, &r.DeviceID, &r.SessionID, &r.StartedAt, &r.EndedAt, &r.TotalDistanceKm, &r.ElapsedMs, &r.PointCount, &r.PathWKT, &r.CreatedAt); err != nil {
			return nil, err
		}
		routes = append(routes, r)
	}
	return routes, rows.Err()
}

// Nearby lists the device's routes whose path passes within radiusKm of the
// given position.
func (s *Service) Nearby(ctx context.Context, deviceID string, lat, lng, radiusKm float64) ([]Route, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, device_id, session_id, started_at, ended_at, total_distance_km, elapsed_ms, point_count, COALESCE(ST_AsText(path), ''), created_at
		FROM routes
		WHERE device_id=$1 AND ST_DWithin(path, ST_SetSRID(ST_MakePoint($2,$3), 4326)::geography, $4)
		ORDER BY ended_at DESC
	`, deviceID, lng, lat, radiusKm*1000)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	routes := []Route{}
	for rows.Next() {
		var r Route
		if err := rows.Scan(&r.ID, &r.DeviceID, &r.SessionID, &r.StartedAt, &r.EndedAt, &r.TotalDistanceKm, &r.ElapsedMs, &r.PointCount, &r.PathWKT, &r.CreatedAt); err != nil {
			return nil, err
		}
		routes = append(routes, r)
	}
	return routes, rows.Err()
}

func (s *Service) Route(ctx context.Context, id string) (Route, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, device_id, session_id, started_at, ended_at, total_distance_km, elapsed_ms, point_count, COALESCE(ST_AsText(path), ''), points::text, created_at
		FROM routes WHERE id=$1
	`, id)
	var r Route
	var points []byte
	if err := row.Scan(&r.ID, &r.DeviceID, &r.SessionID, &r.StartedAt, &r.EndedAt, &r.TotalDistanceKm, &r.ElapsedMs, &r.PointCount, &r.PathWKT, &points, &r.CreatedAt); err != nil {
		return Route{}, err
	}
	if len(points) > 0 {
		if err := json.Unmarshal(points, &r.Points); err != nil {
			return Route{}, fmt.Errorf("decode points: %w", err)
		}
	}
	return r, nil
}
