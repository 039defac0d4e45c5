// Package auth resolves the current user of a request.
//
// Token issuance lives elsewhere; this package only verifies bearer JWTs
// (HMAC secret or JWKS URL) and stores the subject in the request context.
// A missing or invalid token leaves the request anonymous. Enforcing that a
// user is present is the handler's decision.
//
//	verifier, err := auth.NewHMACVerifier(secret, auth.VerifierOptions{Issuer: "avaforum"})
//	handler = auth.Middleware(verifier, logger)(handler)
//
// Pipeline stages read the user through the CurrentUser interface:
//
//	userID, ok := auth.ContextUser{}.UserID(ctx)
package auth
