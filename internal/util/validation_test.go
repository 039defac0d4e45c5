package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidateURL(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ValidateURL("https://hooks.example.com/alerts"))
	assert.Error(t, ValidateURL(""))
	assert.Error(t, ValidateURL("hooks.example.com"))
	assert.Error(t, ValidateURL("ftp://example.com"))
	assert.Error(t, ValidateURL("http://"))
}

func TestValidateRedisURL(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ValidateRedisURL("redis://localhost:6379/0"))
	assert.NoError(t, ValidateRedisURL("rediss://cache.internal:6380"))
	assert.Error(t, ValidateRedisURL("http://localhost:6379"))
	assert.Error(t, ValidateRedisURL("redis://"))
}

func TestValidateScalars(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ValidatePort(8080))
	assert.Error(t, ValidatePort(0))
	assert.Error(t, ValidatePort(70000))
	assert.NoError(t, ValidatePositiveDuration(time.Second))
	assert.Error(t, ValidatePositiveDuration(0))
	assert.NoError(t, ValidateNonEmpty("x", "name"))
	assert.EqualError(t, ValidateNonEmpty("  ", "name"), "name cannot be empty")
	assert.NoError(t, ValidatePathPrefix("/health"))
	assert.Error(t, ValidatePathPrefix("health"))
}
