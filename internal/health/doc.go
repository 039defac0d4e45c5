// Package health provides liveness and readiness endpoints.
//
// /health and /healthz report that the process is up. /ready runs every
// registered dependency check concurrently and answers 503 when any of
// them fails, so a load balancer stops routing to an instance whose store
// is unreachable.
package health
