package tracking

import (
	"errors"
	"testing"
	"time"
)

func TestEncodeDecodeSnapshot(t *testing.T) {
	snap := Snapshot{
		RouteData: []RoutePoint{
			Location(46.1, 7.1, t0),
			Photo("photo-1", "lake", t0.Add(time.Second)).WithCoords(46.1, 7.1),
			Text("bridge out", t0.Add(2*time.Second)),
		},
		TotalDistance: 1.5,
		ElapsedTime:   4200,
		BackupTime:    t0.Add(3 * time.Second),
		SessionID:     "session-1",
		StartedAt:     t0,
	}
	data, err := EncodeSnapshot(snap)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeSnapshot(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.RouteData) != 3 || got.TotalDistance != 1.5 || got.ElapsedTime != 4200 {
		t.Fatalf("unexpected snapshot: %s", got)
	}
	if got.SessionID != "session-1" || !got.StartedAt.Equal(t0) || !got.BackupTime.Equal(snap.BackupTime) {
		t.Fatalf("bookkeeping fields lost")
	}
	if got.RouteData[1].PhotoRef != "photo-1" || *got.RouteData[1].Lat != 46.1 {
		t.Fatalf("photo point lost fields")
	}
}

func TestEncodeEmptySnapshotHasArray(t *testing.T) {
	data, err := EncodeSnapshot(Snapshot{})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeSnapshot(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.RouteData == nil || len(got.RouteData) != 0 {
		t.Fatalf("expected empty route data")
	}
}

func TestDecodeSnapshotDefaults(t *testing.T) {
	got, err := DecodeSnapshot([]byte(`{"routeData":[]}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.TotalDistance != 0 || got.ElapsedTime != 0 {
		t.Fatalf("expected zero defaults")
	}

	got, err = DecodeSnapshot([]byte(`{"routeData":[],"totalDistance":null,"elapsedTime":1500.4}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ElapsedTime != 1500 {
		t.Fatalf("expected fractional elapsed time to round, got %d", got.ElapsedTime)
	}
}

func TestDecodeSnapshotMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":            `{{`,
		"array root":          `[]`,
		"missing routeData":   `{"totalDistance":1}`,
		"null routeData":      `{"routeData":null}`,
		"object routeData":    `{"routeData":{"0":{}}}`,
		"string distance":     `{"routeData":[],"totalDistance":"far"}`,
		"negative elapsed":    `{"routeData":[],"elapsedTime":-5}`,
		"bad backup time":     `{"routeData":[],"backupTime":42}`,
	}
	for name, raw := range cases {
		_, err := DecodeSnapshot([]byte(raw))
		if !errors.Is(err, ErrRestoreFailed) {
			t.Fatalf("%s: expected ErrRestoreFailed, got %v", name, err)
		}
	}
}

func TestDecodeSnapshotDropsBadPoints(t *testing.T) {
	raw := `{"routeData":[
		{"type":"location","lat":46.1,"lng":7.1,"timestamp":"2026-05-01T08:00:00Z"},
		{"type":"location","timestamp":"2026-05-01T08:00:01Z"},
		{"type":"video","timestamp":"2026-05-01T08:00:02Z"},
		42,
		{"type":"text","content":"late","timestamp":"2026-05-01T07:00:00Z"},
		{"type":"text","content":"ford","timestamp":"2026-05-01T08:00:05Z"}
	],"totalDistance":0.8,"elapsedTime":5000}`

	got, err := DecodeSnapshot([]byte(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.RouteData) != 2 || got.DroppedPoints != 4 {
		t.Fatalf("expected 2 kept and 4 dropped, got %d and %d", len(got.RouteData), got.DroppedPoints)
	}
	if got.RouteData[0].Kind != KindLocation || got.RouteData[1].Content != "ford" {
		t.Fatalf("unexpected kept points %+v", got.RouteData)
	}
	if got.TotalDistance != 0.8 || got.ElapsedTime != 5000 {
		t.Fatalf("metrics should be kept as stored")
	}

	data, err := EncodeSnapshot(*got)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	again, err := DecodeSnapshot(data)
	if err != nil || again.DroppedPoints != 0 {
		t.Fatalf("re-encoded snapshot should be clean, got %v %v", again, err)
	}
}

func TestValidateRejectsBadPoints(t *testing.T) {
	snap := &Snapshot{RouteData: []RoutePoint{{Kind: KindLocation, Timestamp: t0}}}
	if err := snap.Validate(); !errors.Is(err, ErrRestoreFailed) {
		t.Fatalf("expected ErrRestoreFailed, got %v", err)
	}
}

func TestValidateNilSnapshot(t *testing.T) {
	var snap *Snapshot
	if err := snap.Validate(); !errors.Is(err, ErrRestoreFailed) {
		t.Fatalf("expected ErrRestoreFailed, got %v", err)
	}
}
