package pipeline

import "time"

// Cacheable requests have their successful responses cached under CacheKey.
type Cacheable interface {
	CacheKey() string
	// CacheTTL returns the entry lifetime. A non-positive value selects the
	// executor default.
	CacheTTL() time.Duration
}

// Invalidator requests remove cached entries after their handler succeeds.
type Invalidator interface {
	InvalidatedKeys() []string
	// InvalidatedPattern returns a glob such as "posts:*", or "" for none.
	InvalidatedPattern() string
}

// ValidationSkipper requests bypass the validation stage.
type ValidationSkipper interface {
	SkipValidation()
}

// SensitiveData requests provide a masked copy of themselves for logs.
type SensitiveData interface {
	Redacted() any
}

// Query marks a read-only request.
type Query interface {
	IsQuery()
}

// Command marks a state-changing request.
type Command interface {
	IsCommand()
}
