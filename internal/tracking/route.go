package tracking

import (
	"sync"
	"time"

	"backend-traillog/internal/shared/geo"
)

// Observer receives every event published by a RouteStore. Observers run
// synchronously and must not call back into the Machine.
type Observer func(Event)

// RouteStore holds the append-only point log of one session together with
// its cumulative distance and active elapsed time. The log itself is not
// locked; the owning Machine serialises access. The observer list has its
// own lock because the checkpoint writer publishes from its goroutine.
type RouteStore struct {
	points   []RoutePoint
	distance float64
	elapsed  int64
	lastLoc  int

	obsMu     sync.RWMutex
	observers []subscription
	nextObsID int
}

type subscription struct {
	id int
	fn Observer
}

func NewRouteStore() *RouteStore {
	return &RouteStore{lastLoc: -1}
}

// Append validates p and adds it to the log. Only consecutive location
// points contribute distance.
func (s *RouteStore) Append(p RoutePoint) (AppendResult, error) {
	if err := p.validate(); err != nil {
		return AppendResult{}, err
	}
	if n := len(s.points); n > 0 && p.Timestamp.Before(s.points[n-1].Timestamp) {
		return AppendResult{}, invalidPoint("timestamp %s precedes previous point", p.Timestamp.Format(time.RFC3339Nano))
	}

	if p.Kind == KindLocation {
		if s.lastLoc >= 0 {
			prev := s.points[s.lastLoc]
			s.distance += geo.HaversineKm(*prev.Lat, *prev.Lng, *p.Lat, *p.Lng)
		}
		s.lastLoc = len(s.points)
	}
	s.points = append(s.points, p)

	return AppendResult{TotalDistance: s.distance, PointCount: len(s.points)}, nil
}

// Tick adds deltaMs of active time. Gating on the session state is the
// caller's job.
func (s *RouteStore) Tick(deltaMs int64) {
	s.elapsed += deltaMs
}

func (s *RouteStore) RouteData() []RoutePoint {
	out := make([]RoutePoint, len(s.points))
	copy(out, s.points)
	return out
}

func (s *RouteStore) TotalDistance() float64 { return s.distance }

func (s *RouteStore) ElapsedTime() int64 { return s.elapsed }

func (s *RouteStore) PointCount() int { return len(s.points) }

// Clear resets the log and metrics. Safe to call repeatedly.
func (s *RouteStore) Clear() {
	s.points = nil
	s.distance = 0
	s.elapsed = 0
	s.lastLoc = -1
}

// Load replaces the store content with a validated snapshot. The recorded
// distance is taken as-is rather than recomputed.
func (s *RouteStore) Load(snap Snapshot) {
	s.Clear()
	s.points = make([]RoutePoint, len(snap.RouteData))
	copy(s.points, snap.RouteData)
	for i := len(s.points) - 1; i >= 0; i-- {
		if s.points[i].Kind == KindLocation {
			s.lastLoc = i
			break
		}
	}
	s.distance = snap.TotalDistance
	s.elapsed = snap.ElapsedTime
}

// Snapshot copies the current content into a backup snapshot.
func (s *RouteStore) Snapshot(sess *Session, at time.Time) Snapshot {
	snap := Snapshot{
		RouteData:     s.RouteData(),
		TotalDistance: s.distance,
		ElapsedTime:   s.elapsed,
		BackupTime:    at,
	}
	if sess != nil {
		snap.SessionID = sess.ID
		snap.StartedAt = sess.StartedAt
	}
	return snap
}

// Subscribe registers fn and returns a function removing it again.
func (s *RouteStore) Subscribe(fn Observer) func() {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()

	s.nextObsID++
	id := s.nextObsID
	s.observers = append(s.observers, subscription{id: id, fn: fn})

	return func() {
		s.obsMu.Lock()
		defer s.obsMu.Unlock()
		for i, sub := range s.observers {
			if sub.id == id {
				s.observers = append(s.observers[:i], s.observers[i+1:]...)
				return
			}
		}
	}
}

// Notify delivers ev to all observers in registration order.
func (s *RouteStore) Notify(ev Event) {
	s.obsMu.RLock()
	subs := make([]subscription, len(s.observers))
	copy(subs, s.observers)
	s.obsMu.RUnlock()

	for _, sub := range subs {
		sub.fn(ev)
	}
}

func (s *RouteStore) event(t EventType, state State, at time.Time) Event {
	return Event{
		Type:          t,
		State:         state,
		TotalDistance: s.distance,
		ElapsedTime:   s.elapsed,
		PointCount:    len(s.points),
		At:            at,
	}
}
