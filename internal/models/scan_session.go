package models

import (
	"errors"
	"fmt"
	"time"
)

// ScanStatus is the lifecycle state of a sweep
type ScanStatus string

const (
	ScanStatusPending   ScanStatus = "pending"
	ScanStatusRunning   ScanStatus = "running"
	ScanStatusCompleted ScanStatus = "completed"
	ScanStatusPartial   ScanStatus = "partial"
	ScanStatusFailed    ScanStatus = "failed"
)

// ErrInvalidTransition is returned when a session would move backwards
var ErrInvalidTransition = errors.New("invalid scan status transition")

// IsTerminal reports whether no further transition is allowed
func (s ScanStatus) IsTerminal() bool {
	switch s {
	case ScanStatusCompleted, ScanStatusPartial, ScanStatusFailed:
		return true
	}
	return false
}

// ScanSession is one sweep over a set of tracked properties
type ScanSession struct {
	ID          string        `gorm:"type:varchar(36);primaryKey" json:"id"`
	OwnerScope  string        `gorm:"type:varchar(64);index" json:"owner_scope"`
	Status      ScanStatus    `gorm:"type:varchar(20);not null;index" json:"status"`
	Total       int           `gorm:"not null" json:"total"`
	Succeeded   int           `gorm:"not null" json:"succeeded"`
	Failed      int           `gorm:"not null" json:"failed"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	CreatedAt   time.Time     `gorm:"not null;autoCreateTime" json:"created_at"`
	Outcomes    []ScanOutcome `gorm:"foreignKey:SessionID" json:"outcomes,omitempty"`
}

// TableName specifies the table name
func (ScanSession) TableName() string {
	return "scan_sessions"
}

// Transition moves the session forward: pending -> running -> terminal.
func (s *ScanSession) Transition(next ScanStatus, at time.Time) error {
	switch {
	case s.Status == ScanStatusPending && next == ScanStatusRunning:
		started := at
		s.StartedAt = &started
	case s.Status == ScanStatusRunning && next.IsTerminal():
		completed := at
		if s.StartedAt != nil && completed.Before(*s.StartedAt) {
			completed = *s.StartedAt
		}
		s.CompletedAt = &completed
	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, next)
	}
	s.Status = next
	return nil
}

// FinalStatus derives the terminal status from outcome tallies.
// An empty sweep counts as completed.
func FinalStatus(succeeded, failed int) ScanStatus {
	switch {
	case failed == 0:
		return ScanStatusCompleted
	case succeeded == 0:
		return ScanStatusFailed
	default:
		return ScanStatusPartial
	}
}

// ScanOutcome is the trace row for one property within a session
type ScanOutcome struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID  string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_session_property,priority:1" json:"session_id"`
	PropertyID string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_session_property,priority:2" json:"property_id"`
	Success    bool      `gorm:"not null" json:"success"`
	Reason     string    `gorm:"type:text" json:"reason,omitempty"`
	SnapshotID *uint     `json:"snapshot_id,omitempty"`
	DurationMs int64     `gorm:"not null" json:"duration_ms"`
	RecordedAt time.Time `gorm:"not null;autoCreateTime" json:"recorded_at"`
}

// TableName specifies the table name
func (ScanOutcome) TableName() string {
	return "scan_outcomes"
}
