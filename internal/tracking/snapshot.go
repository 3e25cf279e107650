package tracking

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Snapshot is the persisted copy of an in-progress session. Only routeData
// is required; the numeric fields default to zero when absent.
// DroppedPoints counts stored entries DecodeSnapshot could not keep.
type Snapshot struct {
	RouteData     []RoutePoint `json:"routeData"`
	TotalDistance float64      `json:"totalDistance"`
	ElapsedTime   int64        `json:"elapsedTime"`
	BackupTime    time.Time    `json:"backupTime"`
	SessionID     string       `json:"sessionId,omitempty"`
	StartedAt     time.Time    `json:"startedAt,omitzero"`
	DroppedPoints int          `json:"droppedPoints,omitempty"`
}

// EncodeSnapshot serialises snap in the single-record backup layout.
func EncodeSnapshot(snap Snapshot) ([]byte, error) {
	if snap.RouteData == nil {
		snap.RouteData = []RoutePoint{}
	}
	snap.DroppedPoints = 0
	return json.Marshal(snap)
}

// DecodeSnapshot parses and validates a stored backup. A missing routeData
// array or unusable metrics are reported as ErrRestoreFailed. Individual
// points that do not parse, fail validation, or go back in time are
// dropped and counted so the rest of the session stays recoverable.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, restoreFailed("snapshot is not an object: %v", err)
	}

	routeRaw, ok := raw["routeData"]
	if !ok || isNull(routeRaw) {
		return nil, restoreFailed("routeData missing")
	}
	if trimmed := bytes.TrimSpace(routeRaw); len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, restoreFailed("routeData is not an array")
	}

	var items []json.RawMessage
	if err := json.Unmarshal(routeRaw, &items); err != nil {
		return nil, restoreFailed("routeData: %v", err)
	}
	snap := &Snapshot{RouteData: make([]RoutePoint, 0, len(items))}
	for _, item := range items {
		var p RoutePoint
		if err := json.Unmarshal(item, &p); err != nil || p.validate() != nil {
			snap.DroppedPoints++
			continue
		}
		if n := len(snap.RouteData); n > 0 && p.Timestamp.Before(snap.RouteData[n-1].Timestamp) {
			snap.DroppedPoints++
			continue
		}
		snap.RouteData = append(snap.RouteData, p)
	}

	dist, err := optionalNumber(raw, "totalDistance")
	if err != nil {
		return nil, err
	}
	elapsed, err := optionalNumber(raw, "elapsedTime")
	if err != nil {
		return nil, err
	}
	snap.TotalDistance = dist
	snap.ElapsedTime = int64(math.Round(elapsed))

	if err := optionalField(raw, "backupTime", &snap.BackupTime); err != nil {
		return nil, err
	}
	if err := optionalField(raw, "sessionId", &snap.SessionID); err != nil {
		return nil, err
	}
	if err := optionalField(raw, "startedAt", &snap.StartedAt); err != nil {
		return nil, err
	}

	if err := snap.Validate(); err != nil {
		return nil, err
	}
	return snap, nil
}

// Validate checks that snap can be rehydrated into a live session.
func (snap *Snapshot) Validate() error {
	if snap == nil {
		return restoreFailed("no snapshot")
	}
	if snap.RouteData == nil {
		return restoreFailed("routeData missing")
	}
	if snap.TotalDistance < 0 || math.IsNaN(snap.TotalDistance) || math.IsInf(snap.TotalDistance, 0) {
		return restoreFailed("totalDistance %v is not a distance", snap.TotalDistance)
	}
	if snap.ElapsedTime < 0 {
		return restoreFailed("elapsedTime %d is negative", snap.ElapsedTime)
	}
	for i, p := range snap.RouteData {
		if err := p.validate(); err != nil {
			return restoreFailed("routeData[%d]: %v", i, err)
		}
		if i > 0 && p.Timestamp.Before(snap.RouteData[i-1].Timestamp) {
			return restoreFailed("routeData[%d]: timestamps out of order", i)
		}
	}
	return nil
}

func optionalNumber(raw map[string]json.RawMessage, key string) (float64, error) {
	v, ok := raw[key]
	if !ok || isNull(v) {
		return 0, nil
	}
	var n float64
	if err := json.Unmarshal(v, &n); err != nil {
		return 0, restoreFailed("%s is not numeric", key)
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, restoreFailed("%s is not finite", key)
	}
	return n, nil
}

func optionalField(raw map[string]json.RawMessage, key string, dst any) error {
	v, ok := raw[key]
	if !ok || isNull(v) {
		return nil
	}
	if err := json.Unmarshal(v, dst); err != nil {
		return restoreFailed("%s: %v", key, err)
	}
	return nil
}

func isNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

func (snap *Snapshot) String() string {
	return fmt.Sprintf("snapshot(points=%d distance=%.3fkm elapsed=%dms at=%s)",
		len(snap.RouteData), snap.TotalDistance, snap.ElapsedTime, snap.BackupTime.Format(time.RFC3339))
}
