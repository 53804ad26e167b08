package voicemail

import (
	"log/slog"
	"time"

	"github.com/rbaliyan/event/v3/transport"
	"github.com/redis/go-redis/v9"
	"github.com/sipfoundry/voicemail/audio"
	"github.com/sipfoundry/voicemail/store"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Default configuration values.
const (
	// DefaultSystemIdentity scopes message-id allocation when no identity
	// is configured.
	DefaultSystemIdentity = 1

	// DefaultSIPDomain is the domain used when synthesizing owner URIs.
	DefaultSIPDomain = "localhost"

	DefaultShutdownTimeout = 30 * time.Second // graceful shutdown timeout
	MinShutdownTimeout     = 1 * time.Second  // minimum shutdown timeout

	// Concurrency limits
	DefaultMaxConcurrentDeposits = 10 // max concurrent deposit/forward operations
)

// options holds manager configuration.
type options struct {
	store  store.Store
	logger *slog.Logger

	notifier     Notifier
	concatenator audio.Concatenator
	resolver     AddressResolver

	systemIdentity int
	audioFormat    audio.Format
	sipDomain      string

	// Filesystem locations: scratchDir for staged and composed audio,
	// mailstoreDir for the legacy per-user file tree fallback.
	scratchDir   string
	mailstoreDir string

	// Concurrency limits
	maxConcurrentDeposits int

	// Shutdown
	shutdownTimeout time.Duration

	// OpenTelemetry
	tracingEnabled bool
	metricsEnabled bool
	serviceName    string
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	// Event transport
	eventTransport transport.Transport
	redisClient    redis.UniversalClient
}

// newOptions creates options with defaults and applies provided options.
func newOptions(opts ...Option) *options {
	o := &options{
		logger:                slog.Default(),
		systemIdentity:        DefaultSystemIdentity,
		audioFormat:           audio.WAV,
		sipDomain:             DefaultSIPDomain,
		maxConcurrentDeposits: DefaultMaxConcurrentDeposits,
		shutdownTimeout:       DefaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Option configures a manager.
type Option func(*options)

// --- Core Options ---

// WithStore sets the storage backend (required).
func WithStore(s store.Store) Option {
	return func(o *options) {
		if s != nil {
			o.store = s
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithSystemIdentity sets the numeric identity that scopes message-id
// allocation. Every manager instance sharing a backend must use the same
// identity for ids to stay unique within the deployment.
// Default is 1.
func WithSystemIdentity(id int) Option {
	return func(o *options) {
		if id > 0 {
			o.systemIdentity = id
		}
	}
}

// WithAudioFormat sets the audio format recorded for deposited and
// composed messages. Default is WAV.
func WithAudioFormat(f audio.Format) Option {
	return func(o *options) {
		if f.ID != "" {
			o.audioFormat = f
		}
	}
}

// --- Collaborator Options ---

// WithNotifier sets the mailbox-changed notification channel.
// Default publishes MailboxChangedEvent on the manager's event bus.
func WithNotifier(n Notifier) Option {
	return func(o *options) {
		if n != nil {
			o.notifier = n
		}
	}
}

// WithConcatenator sets the audio concatenation collaborator used when a
// forward carries a recorded comment. Without one, forwards with comments
// fail with ErrConcatenatorRequired; forwards without comments are
// unaffected.
func WithConcatenator(c audio.Concatenator) Option {
	return func(o *options) {
		if c != nil {
			o.concatenator = c
		}
	}
}

// WithAddressResolver sets the resolver mapping user names to owner
// addresses. Default synthesizes "sip:<user>@<domain>" from the configured
// SIP domain.
func WithAddressResolver(r AddressResolver) Option {
	return func(o *options) {
		if r != nil {
			o.resolver = r
		}
	}
}

// WithSIPDomain sets the domain for synthesized owner URIs when no
// AddressResolver is configured. Default is "localhost".
func WithSIPDomain(domain string) Option {
	return func(o *options) {
		if domain != "" {
			o.sipDomain = domain
		}
	}
}

// --- Filesystem Options ---

// WithScratchDirectory sets the directory for staged recordings and
// forward composition scratch files. Default is the system temp directory.
func WithScratchDirectory(dir string) Option {
	return func(o *options) {
		if dir != "" {
			o.scratchDir = dir
		}
	}
}

// WithMailstoreDirectory sets the root of the legacy per-user file tree.
// When set, recorded-name retrieval falls back to
// <dir>/<user>/name/recorded_name.<format> if the store has no recording.
func WithMailstoreDirectory(dir string) Option {
	return func(o *options) {
		if dir != "" {
			o.mailstoreDir = dir
		}
	}
}

// --- OTel Options ---

// WithTracing enables or disables OpenTelemetry tracing.
// When enabled, spans are created for all manager operations.
// Default is disabled.
func WithTracing(enabled bool) Option {
	return func(o *options) {
		o.tracingEnabled = enabled
	}
}

// WithMetrics enables or disables OpenTelemetry metrics.
// When enabled, metrics are collected for all manager operations.
// Default is disabled.
func WithMetrics(enabled bool) Option {
	return func(o *options) {
		o.metricsEnabled = enabled
	}
}

// WithOTel enables both OpenTelemetry tracing and metrics.
// This is a convenience function equivalent to calling
// WithTracing(true) and WithMetrics(true).
func WithOTel(enabled bool) Option {
	return func(o *options) {
		o.tracingEnabled = enabled
		o.metricsEnabled = enabled
	}
}

// WithServiceName sets the service name for OpenTelemetry telemetry and
// the event bus name prefix. Default is "voicemail".
func WithServiceName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.serviceName = name
		}
	}
}

// WithTracerProvider sets a custom OpenTelemetry tracer provider.
// Default uses the global tracer provider from otel.GetTracerProvider().
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tracerProvider = tp
		}
	}
}

// WithMeterProvider sets a custom OpenTelemetry meter provider.
// Default uses the global meter provider from otel.GetMeterProvider().
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		if mp != nil {
			o.meterProvider = mp
		}
	}
}

// --- Concurrency Options ---

// WithMaxConcurrentDeposits sets the maximum number of concurrent
// deposit/forward operations. This prevents resource exhaustion when many
// callers leave messages simultaneously.
// Default is 10.
func WithMaxConcurrentDeposits(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxConcurrentDeposits = n
		}
	}
}

// WithShutdownTimeout sets the maximum time to wait for in-flight
// operations during graceful shutdown. When Close() is called, the manager
// waits up to this duration for ongoing deposits to complete.
// Default is 30 seconds. Minimum is 1 second.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *options) {
		if d >= MinShutdownTimeout {
			o.shutdownTimeout = d
		}
	}
}

// --- Event Options ---

// WithEventTransport sets the event transport for publishing and
// subscribing. If not provided, a noop transport is used (events are
// silently dropped).
func WithEventTransport(t transport.Transport) Option {
	return func(o *options) {
		if t != nil {
			o.eventTransport = t
		}
	}
}

// WithRedisClient sets a Redis client for the event transport.
// When provided, events are published to Redis Streams for reliable
// delivery across processes.
//
// Compatible with *redis.Client, *redis.ClusterClient, and redis.UniversalClient.
func WithRedisClient(client redis.UniversalClient) Option {
	return func(o *options) {
		if client != nil {
			o.redisClient = client
		}
	}
}
