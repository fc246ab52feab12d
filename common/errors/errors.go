package errors

import (
	"errors"
	"fmt"
)

// Sentinel error kinds shared across the control plane. Handlers map these to
// HTTP status codes; the scheduler records them on job executions.
var (
	// ErrInvalidGraph means the UI graph cannot be compiled (missing ids,
	// unknown class types, bypass cycles).
	ErrInvalidGraph = errors.New("invalid workflow graph")

	// ErrBindingNotFound means a spec binding references a node or field that
	// does not exist in the graph.
	ErrBindingNotFound = errors.New("binding target not found")

	// ErrInvalidModeForKey means the requested mode is not covered by a
	// binding's mode map.
	ErrInvalidModeForKey = errors.New("mode not supported for key")

	// ErrInvalidInput means a submission failed validation before compile.
	ErrInvalidInput = errors.New("invalid input")

	// ErrQuotaExceeded is a pre-submit rejection; no job row is created.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrBackendUnavailable means a worker node could not be reached.
	ErrBackendUnavailable = errors.New("worker backend unavailable")

	// ErrNotFound is the generic repository miss.
	ErrNotFound = errors.New("not found")
)

// BackendError is a non-200 response from a worker node.
type BackendError struct {
	Status int
	Body   string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("worker error %d: %s", e.Status, e.Body)
}

// InvalidGraph wraps ErrInvalidGraph with a reason.
func InvalidGraph(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidGraph, fmt.Sprintf(format, args...))
}

// BindingNotFound wraps ErrBindingNotFound with the offending target.
func BindingNotFound(nodeID, field string) error {
	return fmt.Errorf("%w: node=%s field=%s", ErrBindingNotFound, nodeID, field)
}

// InvalidModeForKey wraps ErrInvalidModeForKey with the offending pair.
func InvalidModeForKey(mode, key string) error {
	return fmt.Errorf("%w: mode=%q key=%q", ErrInvalidModeForKey, mode, key)
}
