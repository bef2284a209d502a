// Package usage tracks per-identity screening usage against rolling daily
// and monthly windows, backed by an append-only event store.
package usage

import (
	"context"
	"time"
)

// Window selects which rolling window to count over. Windows are fixed
// durations measured backward from now, not calendar-aligned.
type Window string

const (
	WindowDay   Window = "day"
	WindowMonth Window = "month"
)

// Duration returns the window's length. A month is a fixed 30 days.
func (w Window) Duration() time.Duration {
	switch w {
	case WindowDay:
		return 24 * time.Hour
	case WindowMonth:
		return 30 * 24 * time.Hour
	}
	return 0
}

// Event is one completed screening, appended per analysis attempt that
// reached the evaluator. Events are immutable: never updated or deleted.
type Event struct {
	ID        int64     `json:"id"`
	Handle    string    `json:"handle"`
	Address   string    `json:"address"`
	RiskScore *float64  `json:"riskScore,omitempty"`
	Decision  string    `json:"decision"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorKind classifies error events.
type ErrorKind string

const (
	ErrorValidation    ErrorKind = "validation"
	ErrorAPIAuth       ErrorKind = "api_auth"
	ErrorAPIRateLimit  ErrorKind = "api_rate_limit"
	ErrorAPIServer     ErrorKind = "api_server"
	ErrorAPITimeout    ErrorKind = "api_timeout"
	ErrorAPIConnection ErrorKind = "api_connection"
	ErrorAPIMalformed  ErrorKind = "api_malformed"
	ErrorUnexpected    ErrorKind = "unexpected"
)

// ErrorEvent records a failed screening attempt. Failed attempts are logged
// here instead of counting as usage.
type ErrorEvent struct {
	ID        int64     `json:"id"`
	Handle    string    `json:"handle,omitempty"`
	Kind      ErrorKind `json:"kind"`
	Message   string    `json:"message"`
	Address   string    `json:"address,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// EventStore persists and queries usage and error events.
type EventStore interface {
	Append(ctx context.Context, event *Event) error
	AppendError(ctx context.Context, event *ErrorEvent) error
	CountSince(ctx context.Context, handle string, since time.Time) (int, error)
	DecisionCountsSince(ctx context.Context, handle string, since time.Time) (map[string]int, error)
	TotalCount(ctx context.Context, handle string) (int, error)
	RecentErrors(ctx context.Context, limit int) ([]*ErrorEvent, error)
}
