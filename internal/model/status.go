package model

import "time"

// StatusCode is the snow-removal status enumeration used by the
// Planif-Neige feed.
type StatusCode int

const (
	StatusSnowed      StatusCode = 0
	StatusCleared     StatusCode = 1
	StatusScheduled   StatusCode = 2
	StatusRescheduled StatusCode = 3
	StatusDeferred    StatusCode = 4
	StatusInProgress  StatusCode = 5
	StatusClear       StatusCode = 10
)

var statusStates = map[StatusCode]string{
	StatusSnowed:      "snowed",
	StatusCleared:     "cleared",
	StatusScheduled:   "scheduled",
	StatusRescheduled: "rescheduled",
	StatusDeferred:    "deferred",
	StatusInProgress:  "in_progress",
	StatusClear:       "clear",
}

// Known reports whether the code is part of the published enumeration.
// Unrecognized codes are carried through as-is rather than rejected.
func (c StatusCode) Known() bool {
	_, ok := statusStates[c]
	return ok
}

// State returns the state string for the code, or "unknown" for codes the
// upstream has not documented.
func (c StatusCode) State() string {
	if s, ok := statusStates[c]; ok {
		return s
	}
	return "unknown"
}

// SnowStatus is the snow-removal status of one street segment at one poll.
// It is produced fresh on every poll and only the latest value is retained
// per street.
type SnowStatus struct {
	StreetID       int        `json:"street_id"`
	Code           StatusCode `json:"code"`
	State          string     `json:"state"`
	PlannedStart   *time.Time `json:"planned_start,omitempty"`
	PlannedEnd     *time.Time `json:"planned_end,omitempty"`
	ReplannedStart *time.Time `json:"replanned_start,omitempty"`
	ReplannedEnd   *time.Time `json:"replanned_end,omitempty"`
	LastUpdated    *time.Time `json:"last_updated,omitempty"`
}

// Active reports whether removal work is planned or underway on the segment.
func (s SnowStatus) Active() bool {
	switch s.Code {
	case StatusScheduled, StatusRescheduled, StatusInProgress:
		return true
	}
	return false
}

// ParkingRestricted reports whether parking is restricted on the segment.
// The city restricts parking whenever removal is planned or in progress.
func (s SnowStatus) ParkingRestricted() bool {
	return s.Active()
}
