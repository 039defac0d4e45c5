// Package cache holds the building blocks of the full-response HTTP cache:
// the stored entry format, request key derivation and the storage policy
// deciding which responses may be kept and for how long.
package cache
