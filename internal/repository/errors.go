// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as the
// registration engine and handlers to distinguish between different
// failure scenarios. For example, ErrRunNotFound indicates that a
// session code or date resolves to no run. Duplicate check-ins are not
// an error kind here: the attendance insert reports them through its
// return value because a duplicate is a normal outcome of a double tap
// on a phone, and an inactive run is classified by the registration
// engine rather than the store.
package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
)

// ErrRunNotFound is returned when no run matches the requested date or
// session code. Handlers should translate this into an HTTP 404.
var ErrRunNotFound = errors.New("run not found")

// ErrAttendanceNotFound is returned when an attendance record addressed
// by id does not exist, e.g. for an admin removal.
var ErrAttendanceNotFound = errors.New("attendance not found")

// ErrRetryable marks a transient store failure: a dropped connection, a
// pool or commit timeout. The registration path is safe to retry under
// this error because the uniqueness constraint absorbs a replay.
var ErrRetryable = errors.New("transient store failure")

// Retryable classifies a store error, wrapping connection-level and
// timeout failures in ErrRetryable. Every other error, including the
// sentinels above, passes through unchanged.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	var ne net.Error
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &ne) && ne.Timeout()) {
		return fmt.Errorf("%w: %v", ErrRetryable, err)
	}
	return err
}
