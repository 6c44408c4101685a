package audit

import (
	"context"
	"errors"
	"time"
)

// Action is the kind of access attempt recorded for a share
type Action string

const (
	ActionView           Action = "view"
	ActionDownload       Action = "download"
	ActionPasswordFailed Action = "password_failed"
)

// Valid reports whether a is one of the recorded actions.
func (a Action) Valid() bool {
	switch a {
	case ActionView, ActionDownload, ActionPasswordFailed:
		return true
	}
	return false
}

// AccessEvent is one append-only record of an access attempt and its outcome
type AccessEvent struct {
	ID         int64     `json:"id"`
	ShareID    string    `json:"share_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Action     Action    `json:"action"`
	OK         bool      `json:"ok"`
	RemoteIP   string    `json:"remote_ip,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
}

// Statistics is the aggregate view of a share's access events
type Statistics struct {
	ShareID          string     `json:"share_id"`
	Views            int64      `json:"views"`
	Downloads        int64      `json:"downloads"`
	FailedAttempts   int64      `json:"failed_attempts"`
	PasswordFailures int64      `json:"password_failures"`
	LastAccessAt     *time.Time `json:"last_access_at,omitempty"`
	ComputedAt       time.Time  `json:"computed_at"`
}

// EventFilters for listing access events
type EventFilters struct {
	ShareID  string    // Required
	Action   Action    // Optional
	OK       *bool     // Optional outcome filter
	Since    time.Time // Inclusive lower bound, zero = unbounded
	Until    time.Time // Inclusive upper bound, zero = unbounded
	Page     int       // 1-based
	PageSize int
}

var (
	ErrShareIDRequired = errors.New("access event share id is required")
	ErrInvalidAction   = errors.New("access event action is invalid")
)

// Store defines the persistence contract for the access log
type Store interface {
	// InsertEvent appends a single event
	InsertEvent(ctx context.Context, event *AccessEvent) error

	// CountEvents counts events for a share with the given action and outcome
	CountEvents(ctx context.Context, shareID string, action Action, ok bool) (int64, error)

	// Aggregate computes statistics for a share from its events
	Aggregate(ctx context.Context, shareID string) (*Statistics, error)

	// ListEvents returns a page of events, newest first, and the total match count
	ListEvents(ctx context.Context, filters *EventFilters) ([]*AccessEvent, int, error)

	// ShareIDsWithActivitySince lists shares that recorded any event at or after since
	ShareIDsWithActivitySince(ctx context.Context, since time.Time) ([]string, error)
}
