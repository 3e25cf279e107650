package tracking

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyActive          = errors.New("session already active")
	ErrNothingToStop          = errors.New("no active session to stop")
	ErrInvalidPoint           = errors.New("invalid route point")
	ErrRestoreFailed          = errors.New("restore failed")
	ErrPersistenceUnavailable = errors.New("persistence unavailable")

	// ErrNotTracking is returned when a sample or tick arrives while the
	// session is paused or idle. The event is discarded.
	ErrNotTracking       = errors.New("not tracking")
	ErrIllegalTransition = errors.New("illegal transition")
	ErrInvalidTick       = errors.New("tick delta must not be negative")

	// ErrClockDriven is returned by Tick on a machine whose active time is
	// measured from the clock.
	ErrClockDriven = errors.New("elapsed time is driven by the clock")
)

var errArchiving = fmt.Errorf("%w: previous route is still being archived", ErrAlreadyActive)

func invalidPoint(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidPoint, fmt.Sprintf(format, args...))
}

func restoreFailed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrRestoreFailed, fmt.Sprintf(format, args...))
}
