package model

import "time"

// Run represents a scheduled attendance-taking session on a specific
// calendar day.  A run is materialised when the calendar entry for its
// date is switched on and admits registrations while it is active and
// its date is the current day in the service's zone.
//
// Fields:
//  ID          – primary key identifier.
//  Date        – calendar day of the run in the service's zone.
//  SessionCode – short human-typable code identifying the run; unique
//                across history.
//  IsActive    – whether the run still admits registrations.
//  CreatedAt   – creation timestamp.
type Run struct {
	ID          uint64    // runs.id
	Date        time.Time // runs.date (date component only)
	SessionCode string    // runs.session_code
	IsActive    bool      // runs.is_active
	CreatedAt   time.Time // runs.created_at
}

// DateString renders the run's calendar day as YYYY-MM-DD, the form used
// on the wire and in CSV exports.
func (r *Run) DateString() string {
	return r.Date.Format("2006-01-02")
}
