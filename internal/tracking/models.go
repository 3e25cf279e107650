package tracking

import (
	"time"

	"backend-traillog/internal/shared/geo"
)

type State string

const (
	StateIdle     State = "idle"
	StateTracking State = "tracking"
	StatePaused   State = "paused"
)

type Kind string

const (
	KindLocation Kind = "location"
	KindPhoto    Kind = "photo"
	KindText     Kind = "text"
)

// RoutePoint is one recorded event on a route: a GPS fix, a photo capture
// or a text note. Lat/Lng are required for location points and optional
// for the other kinds.
type RoutePoint struct {
	Kind      Kind      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Lat       *float64  `json:"lat,omitempty"`
	Lng       *float64  `json:"lng,omitempty"`
	Altitude  *float64  `json:"altitude,omitempty"`
	Accuracy  *float64  `json:"accuracy,omitempty"`
	PhotoRef  string    `json:"photo,omitempty"`
	Caption   string    `json:"caption,omitempty"`
	Content   string    `json:"content,omitempty"`
}

func Location(lat, lng float64, at time.Time) RoutePoint {
	return RoutePoint{Kind: KindLocation, Timestamp: at, Lat: &lat, Lng: &lng}
}

func Photo(ref, caption string, at time.Time) RoutePoint {
	return RoutePoint{Kind: KindPhoto, Timestamp: at, PhotoRef: ref, Caption: caption}
}

func Text(content string, at time.Time) RoutePoint {
	return RoutePoint{Kind: KindText, Timestamp: at, Content: content}
}

// WithCoords returns a copy of p carrying the capture position.
func (p RoutePoint) WithCoords(lat, lng float64) RoutePoint {
	p.Lat = &lat
	p.Lng = &lng
	return p
}

func (p RoutePoint) hasCoords() bool {
	return p.Lat != nil && p.Lng != nil
}

func (p RoutePoint) validate() error {
	switch p.Kind {
	case KindLocation:
		if !p.hasCoords() {
			return invalidPoint("location point requires lat and lng")
		}
	case KindPhoto:
		if p.PhotoRef == "" {
			return invalidPoint("photo point requires a photo reference")
		}
	case KindText:
		if p.Content == "" {
			return invalidPoint("text point requires content")
		}
	default:
		return invalidPoint("unknown point type %q", p.Kind)
	}
	if (p.Lat == nil) != (p.Lng == nil) {
		return invalidPoint("lat and lng must be given together")
	}
	if p.hasCoords() && !geo.ValidCoordinate(*p.Lat, *p.Lng) {
		return invalidPoint("coordinate out of range")
	}
	return nil
}

// Session is the live tracking context.
type Session struct {
	ID           string    `json:"id"`
	DeviceID     string    `json:"device_id"`
	StartedAt    time.Time `json:"started_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

type Status struct {
	State         State     `json:"state"`
	SessionID     string    `json:"session_id,omitempty"`
	StartedAt     time.Time `json:"started_at,omitzero"`
	LastActiveAt  time.Time `json:"last_active_at,omitzero"`
	TotalDistance float64   `json:"total_distance"`
	ElapsedTime   int64     `json:"elapsed_time"`
	PointCount    int       `json:"point_count"`
	BackupHealthy bool      `json:"backup_healthy"`
	BackupError   string    `json:"backup_error,omitempty"`
}

type AppendResult struct {
	TotalDistance float64 `json:"total_distance"`
	PointCount    int     `json:"point_count"`
}

// FinishedRoute is what a stopped session hands to archival.
type FinishedRoute struct {
	SessionID     string       `json:"session_id"`
	DeviceID      string       `json:"device_id"`
	StartedAt     time.Time    `json:"started_at"`
	EndedAt       time.Time    `json:"ended_at"`
	Points        []RoutePoint `json:"points"`
	TotalDistance float64      `json:"total_distance"`
	ElapsedTime   int64        `json:"elapsed_time"`
}

type EventType string

const (
	EventState    EventType = "state"
	EventPoint    EventType = "point"
	EventRestored EventType = "restored"
	EventCleared  EventType = "cleared"
	EventBackup   EventType = "backup"
	EventArchive  EventType = "archive"
)

type Event struct {
	Type          EventType   `json:"type"`
	State         State       `json:"state,omitempty"`
	Point         *RoutePoint `json:"point,omitempty"`
	TotalDistance float64     `json:"total_distance"`
	ElapsedTime   int64       `json:"elapsed_time"`
	PointCount    int         `json:"point_count"`
	Error         string      `json:"error,omitempty"`
	At            time.Time   `json:"at"`
}
