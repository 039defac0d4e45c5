package auth

import (
	"context"

	"github.com/vyrodovalexey/avaforum/internal/util"
)

// CurrentUser resolves the authenticated user of a request context.
type CurrentUser interface {
	// UserID returns the user id and true when the request is authenticated.
	UserID(ctx context.Context) (string, bool)
}

// ContextUser reads the user id stored by Middleware.
type ContextUser struct{}

// UserID implements CurrentUser.
func (ContextUser) UserID(ctx context.Context) (string, bool) {
	return util.UserIDFromContext(ctx)
}

// Anonymous never reports a user.
type Anonymous struct{}

// UserID implements CurrentUser.
func (Anonymous) UserID(context.Context) (string, bool) {
	return "", false
}

// CurrentUserFunc adapts a function to CurrentUser.
type CurrentUserFunc func(ctx context.Context) (string, bool)

// UserID implements CurrentUser.
func (f CurrentUserFunc) UserID(ctx context.Context) (string, bool) {
	return f(ctx)
}
