// Package util provides utility functions and types shared by avaforum.
//
// # Error Types
//
// The error taxonomy used by the pipeline and the HTTP edge:
//
//   - ValidationError / BadRequestError: client-fixable input problems
//   - NotFoundError, UnauthorizedError
//   - CancelledError: caller cancelled or the deadline passed
//   - RateLimitError
//   - InternalError: generic wrapper that hides backend details
//   - StorageError, PanicError: inputs to exception classification
//
// HTTPStatus maps any error onto a status code and WriteError renders the
// JSON body, always including the request id:
//
//	util.WriteError(w, requestID, err)
//
// # Context Helpers
//
//	ctx = util.ContextWithUserID(ctx, "u-42")
//	userID, ok := util.UserIDFromContext(ctx)
package util
