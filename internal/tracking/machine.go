package tracking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

const archiveTimeout = 10 * time.Second

// Archiver takes over a finished route on stop.
type Archiver interface {
	Archive(ctx context.Context, route FinishedRoute) error
}

// Machine is the session state machine of one device. Every operation runs
// to completion under a single lock, so location samples, timer ticks and
// user transitions are handled one at a time in arrival order.
type Machine struct {
	mu        sync.Mutex
	deviceID  string
	state     State
	session   *Session
	archiving bool
	wallClock bool

	store    *RouteStore
	backups  *Checkpointer
	archiver Archiver
	now      func() time.Time
}

type Option func(*Machine)

func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

func WithArchiver(a Archiver) Option {
	return func(m *Machine) { m.archiver = a }
}

// WithWallClock makes the clock the only source of active time. Advance
// credits the time since the last credited instant, pausing and stopping
// close the open interval, and Tick is refused with ErrClockDriven.
// Without it, active time is exactly the sum of Tick deltas.
func WithWallClock() Option {
	return func(m *Machine) { m.wallClock = true }
}

func NewMachine(deviceID string, store *RouteStore, backups *Checkpointer, opts ...Option) *Machine {
	m := &Machine{
		deviceID: deviceID,
		state:    StateIdle,
		store:    store,
		backups:  backups,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	backups.OnHealthChange(func(err error) {
		ev := Event{Type: EventBackup, At: m.now()}
		if err != nil {
			ev.Error = err.Error()
		}
		store.Notify(ev)
	})
	return m
}

func (m *Machine) DeviceID() string { return m.deviceID }

// WallClock reports whether active time is measured from the clock.
func (m *Machine) WallClock() bool { return m.wallClock }

// Store exposes the route store for observer registration.
func (m *Machine) Store() *RouteStore { return m.store }

// Start opens a new session. The previous route log is discarded.
func (m *Machine) Start() (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateIdle {
		return Session{}, ErrAlreadyActive
	}
	if m.archiving {
		return Session{}, errArchiving
	}
	now := m.now()
	m.store.Clear()
	m.session = &Session{
		ID:           uuid.NewString(),
		DeviceID:     m.deviceID,
		StartedAt:    now,
		LastActiveAt: now,
	}
	m.state = StateTracking
	m.store.Notify(m.store.event(EventState, m.state, now))
	return *m.session, nil
}

// Toggle pauses a tracking session or resumes a paused one.
func (m *Machine) Toggle() (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	switch m.state {
	case StateTracking:
		m.credit(now)
		m.state = StatePaused
	case StatePaused:
		m.state = StateTracking
		m.session.LastActiveAt = now
	default:
		return m.state, fmt.Errorf("%w: cannot pause or resume while %s", ErrIllegalTransition, m.state)
	}
	m.store.Notify(m.store.event(EventState, m.state, now))
	m.checkpoint(now)
	return m.state, nil
}

// Stop finalises the session and hands the route to the archiver. The
// machine is idle as soon as the route is built; archival runs outside the
// lock and a new session cannot start until it has finished. The backup
// slot is cleared once the route is archived; if archival fails the slot
// is left in place so the route can still be recovered.
func (m *Machine) Stop(ctx context.Context) (FinishedRoute, error) {
	m.mu.Lock()
	if m.state == StateIdle {
		m.mu.Unlock()
		return FinishedRoute{}, ErrNothingToStop
	}
	now := m.now()
	if m.state == StateTracking {
		m.credit(now)
	}
	route := FinishedRoute{
		SessionID:     m.session.ID,
		DeviceID:      m.deviceID,
		StartedAt:     m.session.StartedAt,
		EndedAt:       now,
		Points:        m.store.RouteData(),
		TotalDistance: m.store.TotalDistance(),
		ElapsedTime:   m.store.ElapsedTime(),
	}
	m.state = StateIdle
	m.session = nil
	m.store.Clear()
	m.store.Notify(m.store.event(EventState, m.state, now))

	archiver := m.archiver
	if archiver == nil {
		m.backups.Clear()
		m.mu.Unlock()
		return route, nil
	}
	m.archiving = true
	m.mu.Unlock()

	actx, cancel := context.WithTimeout(ctx, archiveTimeout)
	err := archiver.Archive(actx, route)
	cancel()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.archiving = false
	if err != nil {
		log.Printf("archive route %s failed, keeping backup: %v", route.SessionID, err)
		ev := m.store.event(EventArchive, StateIdle, m.now())
		ev.Error = err.Error()
		m.store.Notify(ev)
		return route, nil
	}
	m.backups.Clear()
	return route, nil
}

// AppendPoint records p while tracking. Samples arriving while paused or
// idle are discarded with ErrNotTracking.
func (m *Machine) AppendPoint(p RoutePoint) (AppendResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateTracking {
		return AppendResult{}, ErrNotTracking
	}
	now := m.now()
	if p.Timestamp.IsZero() {
		p.Timestamp = now
	}
	res, err := m.store.Append(p)
	if err != nil {
		return AppendResult{}, err
	}

	ev := m.store.event(EventPoint, m.state, now)
	ev.Point = &p
	m.store.Notify(ev)
	m.checkpoint(now)
	return res, nil
}

// Tick adds exactly deltaMs of active time while tracking.
func (m *Machine) Tick(deltaMs int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.wallClock {
		return ErrClockDriven
	}
	if deltaMs < 0 {
		return ErrInvalidTick
	}
	if m.state != StateTracking {
		return ErrNotTracking
	}
	m.store.Tick(deltaMs)
	m.session.LastActiveAt = m.now()
	return nil
}

// Advance credits the active time up to now on a wall-clock machine. It is
// what the periodic timer calls; it does nothing on a tick-driven machine.
func (m *Machine) Advance(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateTracking {
		return
	}
	m.credit(now)
}

// Sync credits the active time up to the current instant and returns the
// elapsed total. It fails with ErrNotTracking unless tracking.
func (m *Machine) Sync() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateTracking {
		return m.store.ElapsedTime(), ErrNotTracking
	}
	m.credit(m.now())
	return m.store.ElapsedTime(), nil
}

// credit adds the whole milliseconds between LastActiveAt and now. The
// remainder stays on the cursor for the next call.
func (m *Machine) credit(now time.Time) {
	if !m.wallClock {
		return
	}
	delta := now.Sub(m.session.LastActiveAt).Milliseconds()
	if delta <= 0 {
		return
	}
	m.store.Tick(delta)
	m.session.LastActiveAt = m.session.LastActiveAt.Add(time.Duration(delta) * time.Millisecond)
}

// Checkpoint writes a periodic backup while tracking.
func (m *Machine) Checkpoint() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateTracking {
		return
	}
	m.checkpoint(m.now())
}

func (m *Machine) checkpoint(now time.Time) {
	data, err := EncodeSnapshot(m.store.Snapshot(m.session, now))
	if err != nil {
		log.Printf("encode snapshot: %v", err)
		return
	}
	m.backups.Save(data)
}

// Run drives Advance and Checkpoint until ctx is done.
func (m *Machine) Run(ctx context.Context, tickEvery, checkpointEvery time.Duration) {
	tick := time.NewTicker(tickEvery)
	defer tick.Stop()
	cp := time.NewTicker(checkpointEvery)
	defer cp.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			m.Advance(m.now())
		case <-cp.C:
			m.Checkpoint()
		}
	}
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Machine) RouteData() []RoutePoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.RouteData()
}

func (m *Machine) TotalDistance() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.TotalDistance()
}

func (m *Machine) ElapsedTime() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.ElapsedTime()
}

func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Status{
		State:         m.state,
		TotalDistance: m.store.TotalDistance(),
		ElapsedTime:   m.store.ElapsedTime(),
		PointCount:    m.store.PointCount(),
		BackupHealthy: true,
	}
	if m.session != nil {
		st.SessionID = m.session.ID
		st.StartedAt = m.session.StartedAt
		st.LastActiveAt = m.session.LastActiveAt
	}
	if err := m.backups.Err(); err != nil {
		st.BackupHealthy = false
		st.BackupError = err.Error()
	}
	return st
}

// BackupErr reports whether crash safety is currently guaranteed.
func (m *Machine) BackupErr() error {
	return m.backups.Err()
}

// CheckForBackup returns the stored snapshot of an unfinished session, or
// nil when there is none, it is malformed, or a session is already live.
// The snapshot is inert: nothing changes until RestoreFromBackup.
func (m *Machine) CheckForBackup(ctx context.Context) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checkForBackup(ctx)
}

func (m *Machine) checkForBackup(ctx context.Context) (*Snapshot, error) {
	if m.state != StateIdle || m.archiving {
		return nil, nil
	}
	data, err := m.backups.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrPersistenceUnavailable) {
			log.Printf("check for backup: %v", err)
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	snap, err := DecodeSnapshot(data)
	if err != nil {
		log.Printf("ignoring malformed backup: %v", err)
		return nil, nil
	}
	if snap.DroppedPoints > 0 {
		log.Printf("backup had %d unreadable points, offering the rest", snap.DroppedPoints)
	}
	return snap, nil
}

// RestoreFromBackup rehydrates a live session from snap. The session comes
// back paused; resuming is an explicit Toggle. The backup slot is left
// untouched.
func (m *Machine) RestoreFromBackup(snap *Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.restore(snap)
}

func (m *Machine) restore(snap *Snapshot) error {
	if m.state != StateIdle {
		return ErrAlreadyActive
	}
	if m.archiving {
		return errArchiving
	}
	if err := snap.Validate(); err != nil {
		return err
	}

	now := m.now()
	sess := &Session{
		ID:           snap.SessionID,
		DeviceID:     m.deviceID,
		StartedAt:    snap.StartedAt,
		LastActiveAt: now,
	}
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	if sess.StartedAt.IsZero() {
		sess.StartedAt = now
		if len(snap.RouteData) > 0 && !snap.RouteData[0].Timestamp.IsZero() {
			sess.StartedAt = snap.RouteData[0].Timestamp
		}
	}

	m.store.Load(*snap)
	m.session = sess
	m.state = StatePaused
	m.store.Notify(m.store.event(EventRestored, m.state, now))
	return nil
}

// RestorePending restores whatever the backup slot currently holds.
func (m *Machine) RestorePending(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateIdle {
		return ErrAlreadyActive
	}
	if m.archiving {
		return errArchiving
	}
	snap, err := m.checkForBackup(ctx)
	if err != nil {
		return err
	}
	if snap == nil {
		return restoreFailed("no backup to restore")
	}
	return m.restore(snap)
}

// ClearBackup empties the backup slot and waits for the write to land. It
// does not touch the live session.
func (m *Machine) ClearBackup(ctx context.Context) error {
	m.mu.Lock()
	m.backups.Clear()
	m.mu.Unlock()

	if err := m.backups.Flush(ctx); err != nil {
		return err
	}
	if err := m.backups.Err(); err != nil {
		return err
	}
	m.store.Notify(Event{Type: EventCleared, At: m.now()})
	return nil
}
