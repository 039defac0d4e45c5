package middleware

// HTTP header constants.
const (
	HeaderContentType         = "Content-Type"
	HeaderCacheControl        = "Cache-Control"
	HeaderRetryAfter          = "Retry-After"
	HeaderXRequestID          = "X-Request-ID"
	HeaderXForwardedFor       = "X-Forwarded-For"
	HeaderXAPIKey             = "X-API-Key"
	HeaderXRateLimitLimit     = "X-RateLimit-Limit"
	HeaderXRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderXCache              = "X-Cache"
	HeaderAge                 = "Age"
	HeaderXProcessingTime     = "X-Processing-Time"
)

const (
	cacheHit                 = "HIT"
	cacheMiss                = "MISS"
	unknownClient            = "unknown"
	apiKeyPrefix             = "key:"
	maxInboundRequestIDBytes = 128
)
