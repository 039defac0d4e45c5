package ratelimit

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/vyrodovalexey/avaforum/internal/store"
)

const (
	minuteLayout = "200601021504"
	hourLayout   = "2006010215"
)

// MinuteKey returns the counter key for clientID in the calendar minute of t.
func MinuteKey(clientID string, t time.Time) string {
	return "ratelimit:" + clientID + ":" + WindowMinute + ":" + t.UTC().Format(minuteLayout)
}

// HourKey returns the counter key for clientID in the calendar hour of t.
func HourKey(clientID string, t time.Time) string {
	return "ratelimit:" + clientID + ":" + WindowHour + ":" + t.UTC().Format(hourLayout)
}

// CalendarLimiter counts requests in store counters keyed by UTC calendar
// minute and hour. A request is rejected when either counter has reached
// its cap; otherwise both counters are incremented.
type CalendarLimiter struct {
	store     store.Store
	perMinute atomic.Int64
	perHour   atomic.Int64
	now       func() time.Time
}

// CalendarOption configures a CalendarLimiter.
type CalendarOption func(*CalendarLimiter)

// WithClock overrides the clock used to select windows.
func WithClock(now func() time.Time) CalendarOption {
	return func(l *CalendarLimiter) {
		l.now = now
	}
}

// NewCalendarLimiter creates a CalendarLimiter over s.
func NewCalendarLimiter(s store.Store, limits Limits, opts ...CalendarOption) *CalendarLimiter {
	l := &CalendarLimiter{store: s, now: time.Now}
	l.SetLimits(limits)
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// SetLimits implements Limiter.
func (l *CalendarLimiter) SetLimits(limits Limits) {
	l.perMinute.Store(int64(limits.PerMinute))
	l.perHour.Store(int64(limits.PerHour))
}

// Limits implements Limiter.
func (l *CalendarLimiter) Limits() Limits {
	return Limits{PerMinute: int(l.perMinute.Load()), PerHour: int(l.perHour.Load())}
}

// Allow implements Limiter.
func (l *CalendarLimiter) Allow(ctx context.Context, clientID string) (*Result, error) {
	now := l.now()
	minuteKey := MinuteKey(clientID, now)
	hourKey := HourKey(clientID, now)
	perMinute := l.perMinute.Load()
	perHour := l.perHour.Load()

	minuteCount, err := store.GetCounter(ctx, l.store, minuteKey)
	if err != nil {
		return nil, err
	}
	if minuteCount >= perMinute {
		return reject(int(perMinute), WindowMinute), nil
	}

	hourCount, err := store.GetCounter(ctx, l.store, hourKey)
	if err != nil {
		return nil, err
	}
	if hourCount >= perHour {
		return reject(int(perHour), WindowHour), nil
	}

	minuteCount, err = l.store.Increment(ctx, minuteKey, time.Minute)
	if err != nil {
		return nil, err
	}
	hourCount, err = l.store.Increment(ctx, hourKey, time.Hour)
	if err != nil {
		return nil, err
	}

	return &Result{
		Allowed:   true,
		Limit:     int(perMinute),
		Remaining: int(max(0, min(perMinute-minuteCount, perHour-hourCount))),
	}, nil
}
