// Package errs holds the stable error-kind sentinels exposed across
// statwatch's public surface (spec §6, §7). Callers compare with errors.Is;
// wrapped context is added with fmt.Errorf("...: %w", ...).
package errs

import "errors"

var (
	// ErrInvalidArgument covers null-equivalent handles, zero durations
	// where forbidden, and non-multiple periods. No side effects occur
	// before this is returned.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotInitialized is returned by operations on an engine that has
	// not been initialized, or that was cleaned up.
	ErrNotInitialized = errors.New("not initialized")

	// ErrAlreadyInitialized is returned by init on a singleton engine that
	// has already been initialized.
	ErrAlreadyInitialized = errors.New("already initialized")

	// ErrNotFound is returned for unknown handles and lookup misses.
	ErrNotFound = errors.New("not found")

	// ErrExists is returned when a duplicate registration is attempted.
	ErrExists = errors.New("exists")

	// ErrOutOfMemory is returned when an allocation cannot be satisfied;
	// partially constructed entries are never added to a registry.
	ErrOutOfMemory = errors.New("out of memory")
)

// Outcome enumerates the non-error lifecycle results spec §7 says must be
// reported as dedicated outcomes rather than errors (start-on-Running,
// stop-on-Stopped): callers are expected to treat them as idempotent, not
// as failures.
type Outcome int

const (
	// OutcomeOK means the operation performed its normal transition.
	OutcomeOK Outcome = iota
	// OutcomeAlreadyRunning means start was called while already Running.
	OutcomeAlreadyRunning
	// OutcomeAlreadyStopped means stop was called while already Stopped.
	OutcomeAlreadyStopped
)

// ProgrammerError is the panic value used for conditions spec §7/§9 mark as
// non-recoverable contract violations (e.g. a watchdog timeout below the
// configured minimum). It is a distinct type so test code can recover and
// assert on it without mistaking it for an ordinary runtime panic.
type ProgrammerError struct {
	Msg string
}

func (e ProgrammerError) Error() string { return e.Msg }

// Abort panics with a ProgrammerError. This is statwatch's rendering of
// spec §9's "idiomatic programmer-error mechanism" — Go has no native
// abort(), so a typed panic plays that role.
func Abort(msg string) {
	panic(ProgrammerError{Msg: msg})
}
