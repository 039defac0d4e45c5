package ratelimit

import (
	"fmt"

	"github.com/vyrodovalexey/avaforum/internal/store"
)

// New creates the limiter for mode. Calendar mode requires a store.
func New(mode Mode, s store.Store, limits Limits) (Limiter, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	switch mode {
	case ModeCalendar, "":
		if s == nil {
			return nil, fmt.Errorf("calendar rate limiting requires a store")
		}
		return NewCalendarLimiter(s, limits), nil
	case ModeRolling:
		return NewRollingLimiter(limits), nil
	default:
		return nil, fmt.Errorf("unknown rate limit mode %q", mode)
	}
}
