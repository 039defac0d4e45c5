package pipeline

import (
	"context"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/vyrodovalexey/avaforum/internal/notify"
	"github.com/vyrodovalexey/avaforum/internal/util"
)

// Classifier maps a failure to a client-facing error. It returns nil when
// the failure is not its concern.
type Classifier interface {
	Classify(ec ExceptionContext) error
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(ec ExceptionContext) error

// Classify implements Classifier.
func (f ClassifierFunc) Classify(ec ExceptionContext) error {
	return f(ec)
}

// DefaultClassifiers returns the cancellation, validation and storage
// classifiers, in that order.
func DefaultClassifiers() []Classifier {
	return []Classifier{
		ClassifierFunc(ClassifyCancellation),
		ClassifierFunc(ClassifyValidation),
		ClassifierFunc(ClassifyStorage),
	}
}

// ClassifyCancellation turns context cancellation into a CancelledError.
func ClassifyCancellation(ec ExceptionContext) error {
	var cancelled *util.CancelledError
	if errors.As(ec.Err, &cancelled) {
		return nil
	}
	switch {
	case errors.Is(ec.Err, context.DeadlineExceeded):
		return util.NewCancelledError(ec.RequestType, true, ec.Err)
	case errors.Is(ec.Err, context.Canceled):
		return util.NewCancelledError(ec.RequestType, false, ec.Err)
	default:
		return nil
	}
}

// ClassifyValidation wraps validation failures in a BadRequestError.
func ClassifyValidation(ec ExceptionContext) error {
	var validation *util.ValidationError
	if !errors.As(ec.Err, &validation) {
		return nil
	}
	var bad *util.BadRequestError
	if errors.As(ec.Err, &bad) {
		return nil
	}
	return util.NewBadRequestError("request validation failed", ec.Err)
}

// ClassifyStorage hides backing-service failures behind a generic
// InternalError.
func ClassifyStorage(ec ExceptionContext) error {
	if !isStorageFailure(ec.Err) {
		return nil
	}
	return util.NewInternalError("", ec.Err)
}

var storageKeywords = []string{
	"database",
	"sql",
	"redis",
	"connection refused",
	"connection reset",
	"broken pipe",
}

// clientFacing are failures caused by the request itself. Their messages
// may mention storage words ("no such post in database") without any
// backing service having failed.
var clientFacing = []error{
	util.ErrNotFound,
	util.ErrInvalidInput,
	util.ErrUnauthorized,
	util.ErrCancelled,
	util.ErrRateLimited,
}

func isStorageFailure(err error) bool {
	var se *util.StorageError
	if errors.As(err, &se) {
		return true
	}
	for _, target := range clientFacing {
		if errors.Is(err, target) {
			return false
		}
	}
	var re redis.Error
	if errors.As(err, &re) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, kw := range storageKeywords {
		if strings.Contains(msg, kw) {
			return true
		}
	}
	return false
}

// criticalReason reports whether err warrants an operator notification.
func criticalReason(err error) (reason, severity string, ok bool) {
	var pe *util.PanicError
	if errors.As(err, &pe) && pe.IsRuntime() {
		return "runtime_panic", notify.SeverityCritical, true
	}
	if isStorageFailure(err) {
		return "storage", notify.SeverityCritical, true
	}
	var ce *util.CancelledError
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ce) && ce.TimedOut) {
		return "deadline_exceeded", notify.SeverityError, true
	}
	return "", "", false
}
