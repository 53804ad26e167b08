package s3

import (
	"log/slog"

	"github.com/sipfoundry/voicemail/retry"
)

type options struct {
	bucket string
	prefix string
	region string

	// S3-compatible endpoints (MinIO, LocalStack)
	endpoint     string
	usePathStyle bool

	accessKey    string
	secretKey    string
	sessionToken string

	roleARN         string
	roleSessionName string
	externalID      string

	retry  retry.Config
	logger *slog.Logger
}

// Option configures the S3 store.
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

// WithRegion sets the AWS region (default "us-east-1").
func WithRegion(region string) Option {
	return func(o *options) {
		if region != "" {
			o.region = region
		}
	}
}

// WithEndpoint points the client at an S3-compatible service.
func WithEndpoint(endpoint string) Option {
	return func(o *options) {
		o.endpoint = endpoint
	}
}

// WithPathStyle enables path-style addressing, which some S3-compatible
// services require.
func WithPathStyle(enabled bool) Option {
	return func(o *options) {
		o.usePathStyle = enabled
	}
}

// WithStaticCredentials sets an access key pair. On Kubernetes prefer
// IAM Roles for Service Accounts and leave credentials unset.
func WithStaticCredentials(accessKey, secretKey string) Option {
	return func(o *options) {
		o.accessKey = accessKey
		o.secretKey = secretKey
	}
}

// WithSessionToken adds a session token to static credentials.
func WithSessionToken(token string) Option {
	return func(o *options) {
		o.sessionToken = token
	}
}

// WithAssumeRole obtains credentials by assuming the given role via
// STS. An empty sessionName defaults to "voicemail-blob-store".
func WithAssumeRole(roleARN, sessionName string) Option {
	return func(o *options) {
		o.roleARN = roleARN
		o.roleSessionName = sessionName
		if o.roleSessionName == "" {
			o.roleSessionName = "voicemail-blob-store"
		}
	}
}

// WithExternalID sets the external id for cross-account role assumption.
func WithExternalID(externalID string) Option {
	return func(o *options) {
		o.externalID = externalID
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
