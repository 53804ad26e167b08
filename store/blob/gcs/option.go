package gcs

import (
	"log/slog"

	"github.com/sipfoundry/voicemail/retry"
)

type options struct {
	bucket   string
	prefix   string
	endpoint string

	// At most one of these; otherwise ADC is used.
	credentialsJSON []byte
	credentialsFile string
	apiKey          string

	retry  retry.Config
	logger *slog.Logger
}

// Option configures the GCS store.
type Option func(*options)

// WithBucket sets the bucket payloads are written to (required).
func WithBucket(bucket string) Option {
	return func(o *options) {
		o.bucket = bucket
	}
}

// WithPrefix sets the key prefix under which payloads are stored
// (default "voicemail").
func WithPrefix(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.prefix = prefix
		}
	}
}

// WithEndpoint points the client at an alternative endpoint, such as the
// storage emulator.
func WithEndpoint(endpoint string) Option {
	return func(o *options) {
		o.endpoint = endpoint
	}
}

// WithCredentialsJSON authenticates with an in-memory service account key.
func WithCredentialsJSON(json []byte) Option {
	return func(o *options) {
		o.credentialsJSON = json
	}
}

// WithCredentialsFile authenticates with a service account key file,
// like setting GOOGLE_APPLICATION_CREDENTIALS.
func WithCredentialsFile(path string) Option {
	return func(o *options) {
		o.credentialsFile = path
	}
}

// WithAPIKey authenticates with an API key. Keys carry limited
// privileges; prefer service accounts or Workload Identity.
func WithAPIKey(key string) Option {
	return func(o *options) {
		o.apiKey = key
	}
}

// WithRetry sets the upload retry policy.
func WithRetry(cfg retry.Config) Option {
	return func(o *options) {
		o.retry = cfg
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}
