// Package ratelimit enforces per-client request quotas over a minute window
// and an hour window.
//
// The default calendar mode counts requests in the store under keys derived
// from the UTC calendar minute and hour, so every instance sharing a store
// enforces one quota. Rolling mode keeps true sliding windows in process.
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Window names.
const (
	WindowMinute = "minute"
	WindowHour   = "hour"
)

// RetryAfter is advertised on every rejection.
const RetryAfter = 60 * time.Second

// Defaults.
const (
	DefaultPerMinute = 60
	DefaultPerHour   = 1000
)

// Mode selects the window algorithm.
type Mode string

// Modes.
const (
	ModeCalendar Mode = "calendar"
	ModeRolling  Mode = "rolling"
)

// Limits are the request caps per window.
type Limits struct {
	PerMinute int
	PerHour   int
}

// DefaultLimits returns 60 per minute and 1000 per hour.
func DefaultLimits() Limits {
	return Limits{PerMinute: DefaultPerMinute, PerHour: DefaultPerHour}
}

// Validate checks that both caps are positive.
func (l Limits) Validate() error {
	if l.PerMinute <= 0 {
		return fmt.Errorf("per-minute limit must be positive, got %d", l.PerMinute)
	}
	if l.PerHour <= 0 {
		return fmt.Errorf("per-hour limit must be positive, got %d", l.PerHour)
	}
	return nil
}

// Result is the outcome of one check.
type Result struct {
	// Allowed indicates whether the request may proceed.
	Allowed bool

	// Limit is the cap of the exceeded window on rejection and the minute
	// cap otherwise.
	Limit int

	// Window names the exceeded window on rejection.
	Window string

	// Remaining is the number of requests left before the tighter window
	// rejects, or -1 when unknown.
	Remaining int

	// RetryAfter is set on rejection.
	RetryAfter time.Duration
}

// Limiter decides whether a client may make another request.
type Limiter interface {
	// Allow checks and, when allowed, counts one request for clientID.
	Allow(ctx context.Context, clientID string) (*Result, error)

	// SetLimits replaces the caps. Counts already recorded are kept.
	SetLimits(l Limits)

	// Limits returns the current caps.
	Limits() Limits
}

func reject(limit int, window string) *Result {
	return &Result{
		Allowed:    false,
		Limit:      limit,
		Window:     window,
		Remaining:  0,
		RetryAfter: RetryAfter,
	}
}
