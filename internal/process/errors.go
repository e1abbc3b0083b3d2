package process

import (
	"errors"
	"fmt"

	"github.com/gantrydev/gantry/internal/compose"
	"github.com/gantrydev/gantry/internal/ports"
	"github.com/gantrydev/gantry/internal/registry"
)

// Kind classifies process manager failures so callers can switch on the
// expected outcomes instead of matching messages.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindAlreadyRunning
	KindPortConflict
	KindComposeFileNotFound
	KindInvalidPort
	KindTimeout
	KindCommandFailed
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindAlreadyRunning:
		return "already running"
	case KindPortConflict:
		return "port conflict"
	case KindComposeFileNotFound:
		return "compose file not found"
	case KindInvalidPort:
		return "invalid port"
	case KindTimeout:
		return "timeout"
	case KindCommandFailed:
		return "command failed"
	}
	return "unknown"
}

// ErrAlreadyRunning is wrapped by start when the project is already up.
var ErrAlreadyRunning = errors.New("project is already running")

// Error is returned by every Manager operation.
type Error struct {
	Op       string // start, stop, status, health, logs, restart
	Hostname string
	Kind     Kind
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Hostname, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of the first *Error in err's chain, or classifies
// a bare error by its sentinel.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return classify(err)
}

func classify(err error) Kind {
	var conflictErr *ports.ConflictError
	var exitErr *compose.ExitError
	switch {
	case errors.Is(err, registry.ErrProjectNotFound):
		return KindNotFound
	case errors.Is(err, ErrAlreadyRunning):
		return KindAlreadyRunning
	case errors.As(err, &conflictErr):
		return KindPortConflict
	case errors.Is(err, compose.ErrFileNotFound):
		return KindComposeFileNotFound
	case errors.Is(err, ports.ErrPortOutOfRange):
		return KindInvalidPort
	case errors.Is(err, compose.ErrTimeout):
		return KindTimeout
	case errors.As(err, &exitErr):
		return KindCommandFailed
	}
	return KindUnknown
}

func newError(op, hostname string, err error) *Error {
	return &Error{Op: op, Hostname: hostname, Kind: classify(err), Err: err}
}

// Conflicts returns the port conflicts carried by err, if any.
func Conflicts(err error) []ports.Conflict {
	var conflictErr *ports.ConflictError
	if errors.As(err, &conflictErr) {
		return conflictErr.Conflicts
	}
	return nil
}
