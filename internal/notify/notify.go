// Package notify delivers critical-error notifications to operators.
//
// Delivery is best effort: callers dispatch notifications asynchronously
// and only log failures.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/vyrodovalexey/avaforum/internal/observability"
)

// Severity levels.
const (
	SeverityCritical = "critical"
	SeverityError    = "error"
)

// Event describes one failure worth an operator's attention.
type Event struct {
	RequestType string    `json:"requestType"`
	UserID      string    `json:"userId,omitempty"`
	ErrorType   string    `json:"errorType"`
	Message     string    `json:"message"`
	Reason      string    `json:"reason"`
	Severity    string    `json:"severity"`
	Machine     string    `json:"machine"`
	RequestID   string    `json:"requestId,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Notifier delivers events.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, ev Event) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// Nop discards every event.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, Event) error { return nil }

// Multi fans an event out to every notifier and joins their errors.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, ev Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogNotifier writes events to the structured log at error level.
type LogNotifier struct {
	logger observability.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger observability.Logger) *LogNotifier {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &LogNotifier{logger: logger}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(ctx context.Context, ev Event) error {
	n.logger.WithContext(ctx).Error("critical error notification",
		observability.String("severity", ev.Severity),
		observability.String("reason", ev.Reason),
		observability.String("request_type", ev.RequestType),
		observability.String("user_id", ev.UserID),
		observability.String("error_type", ev.ErrorType),
		observability.String("error", ev.Message),
		observability.String("machine", ev.Machine),
		observability.Time("timestamp", ev.Timestamp),
	)
	return nil
}
