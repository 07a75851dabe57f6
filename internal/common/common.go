package common

// Shared constants to enforce DRY and avoid magic strings/numbers.

// Redis keys and prefixes
const (
	DefaultQueueKey      = "queue:listings"
	DefaultProcessingKey = "queue:processing"
	JobKeyPrefix         = "job:"
	StateKeySuffix       = ":state"
	MetricsKey           = "metrics:listing_worker"
)

// Job status strings written by this worker (readable by the frontend via
// job:<id>; the enqueuing side writes "queued").
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Per-target error strings for expected, permanent outcomes
const (
	ErrNoCredentials = "no credentials"
	ErrTimeout       = "timeout"
)

// HTTP
const (
	ContentTypeJSON = "application/json"
	HeaderAPIKey    = "X-API-Key" // #nosec G101 - header name constant, not a credential
)
