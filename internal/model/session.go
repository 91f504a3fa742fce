package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// SessionStatus represents the lifecycle state of an enrichment session.
type SessionStatus string

// Session statuses. Transitions only move forward:
// pending -> running -> completed|failed (pending may also fail directly).
const (
	SessionPending   SessionStatus = "pending"
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

// ErrInvalidTransition is returned when a status change would move backward.
var ErrInvalidTransition = eris.New("invalid session status transition")

// Valid reports whether s is a known status.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionPending, SessionRunning, SessionCompleted, SessionFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionFailed
}

// CanTransition reports whether moving from s to next is allowed. Setting the
// current status again is a no-op and allowed.
func (s SessionStatus) CanTransition(next SessionStatus) bool {
	if !next.Valid() {
		return false
	}
	if s == next {
		return true
	}
	switch s {
	case SessionPending:
		return next == SessionRunning || next == SessionFailed
	case SessionRunning:
		return next.Terminal()
	}
	return false
}

// ValidateTransition returns ErrInvalidTransition wrapped with context when
// the move is not allowed.
func ValidateTransition(from, to SessionStatus) error {
	if from.CanTransition(to) {
		return nil
	}
	return eris.Wrapf(ErrInvalidTransition, "%s -> %s", from, to)
}

// Session identifies one enrichment run.
type Session struct {
	ID            string        `json:"id"`
	TotalRows     int           `json:"totalRows"`
	ProcessedRows int           `json:"processedRows"`
	Status        SessionStatus `json:"status"`
	StartedAt     time.Time     `json:"startedAt"`
}

// Metrics is the per-session quality rollup. It can be recomputed at any
// time from the full result set.
type Metrics struct {
	AverageConfidence  float64        `json:"averageConfidence"`
	MissingFields      map[string]int `json:"missingFields"`
	ErrorCount         int            `json:"errorCount"`
	LowConfidenceCount int            `json:"lowConfidenceCount"`
}
