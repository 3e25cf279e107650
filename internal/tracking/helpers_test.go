package tracking

import (
	"context"
	"errors"
	"sync"
	"time"
)

var errSlot = errors.New("slot error")

type fakeSlot struct {
	mu     sync.Mutex
	data   []byte
	saves  [][]byte
	clears int
	fail   bool
	gate   chan struct{}
}

func (s *fakeSlot) Load(_ context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, errSlot
	}
	return s.data, nil
}

func (s *fakeSlot) Save(_ context.Context, data []byte) error {
	s.mu.Lock()
	gate := s.gate
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errSlot
	}
	s.data = append([]byte(nil), data...)
	s.saves = append(s.saves, s.data)
	return nil
}

func (s *fakeSlot) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errSlot
	}
	s.data = nil
	s.clears++
	return nil
}

func (s *fakeSlot) setFail(v bool) {
	s.mu.Lock()
	s.fail = v
	s.mu.Unlock()
}

func (s *fakeSlot) stored() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data
}

func (s *fakeSlot) set(data []byte) {
	s.mu.Lock()
	s.data = data
	s.mu.Unlock()
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeArchiver struct {
	routes []FinishedRoute
	err    error
}

func (a *fakeArchiver) Archive(_ context.Context, route FinishedRoute) error {
	if a.err != nil {
		return a.err
	}
	a.routes = append(a.routes, route)
	return nil
}

func newTestMachine(slot Slot, opts ...Option) (*Machine, *fakeClock) {
	clock := newFakeClock()
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	m := NewMachine("device-1", NewRouteStore(), NewCheckpointer(slot), opts...)
	return m, clock
}

func flush(m *Machine) {
	_ = m.backups.Flush(context.Background())
}
