// Package validators provides ready-made pipeline validators.
package validators

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/vyrodovalexey/avaforum/internal/pipeline"
	"github.com/vyrodovalexey/avaforum/internal/util"
)

var defaultValidate = newValidate()

func newValidate() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		switch name {
		case "-":
			return ""
		case "":
			return f.Name
		default:
			return name
		}
	})
	return v
}

// Struct validates requests with `validate` struct tags. Field names follow
// the json tag when present.
func Struct[Req any]() pipeline.Validator[Req] {
	return StructWith[Req](defaultValidate)
}

// StructWith is Struct using a caller-configured validator instance.
func StructWith[Req any](v *validator.Validate) pipeline.Validator[Req] {
	return pipeline.ValidatorFunc[Req](func(ctx context.Context, req Req) ([]util.FieldError, error) {
		err := v.StructCtx(ctx, req)
		if err == nil {
			return nil, nil
		}

		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return nil, err
		}
		failures := make([]util.FieldError, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			failures = append(failures, util.FieldError{
				Field:          fieldPath(fe),
				Message:        message(fe),
				AttemptedValue: fe.Value(),
			})
		}
		return failures, nil
	})
}

// fieldPath drops the root struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		if fe.Kind() == reflect.String || fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must be at least %s characters long", fe.Param())
		}
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		if fe.Kind() == reflect.String || fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must be at most %s characters long", fe.Param())
		}
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "email":
		return "must be a valid email address"
	case "url":
		return "must be a valid URL"
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	default:
		return fmt.Sprintf("failed the %q check", fe.Tag())
	}
}

// Func wraps a single-field predicate. check returns the failure message, or
// "" when the value is acceptable.
func Func[Req any](field string, value func(Req) any, check func(Req) string) pipeline.Validator[Req] {
	return pipeline.ValidatorFunc[Req](func(_ context.Context, req Req) ([]util.FieldError, error) {
		msg := check(req)
		if msg == "" {
			return nil, nil
		}
		var attempted any
		if value != nil {
			attempted = value(req)
		}
		return []util.FieldError{{Field: field, Message: msg, AttemptedValue: attempted}}, nil
	})
}
