package archive

import (
	"time"

	"backend-traillog/internal/tracking"
)

type Route struct {
	ID              string                `json:"id"`
	DeviceID        string                `json:"device_id"`
	SessionID       string                `json:"session_id"`
	StartedAt       time.Time             `json:"started_at"`
	EndedAt         time.Time             `json:"ended_at"`
	TotalDistanceKm float64               `json:"total_distance_km"`
	ElapsedMs       int64                 `json:"elapsed_ms"`
	PointCount      int                   `json:"point_count"`
	PathWKT         string                `json:"path,omitempty"`
	Points          []tracking.RoutePoint `json:"points,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
}
