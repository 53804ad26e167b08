package postgres

import (
	"log/slog"
	"time"

	"github.com/sipfoundry/voicemail/store"
)

// Default configuration values
const (
	DefaultTablePrefix = "vm"
	DefaultTimeout     = 10 * time.Second
)

type options struct {
	tablePrefix string
	timeout     time.Duration
	logger      *slog.Logger
	files       store.FileStore
}

// Option configures the PostgreSQL store.
type Option func(*options)

func newOptions(opts ...Option) *options {
	o := &options{
		tablePrefix: DefaultTablePrefix,
		timeout:     DefaultTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithTablePrefix sets the prefix for the messages, variants and counters
// tables.
func WithTablePrefix(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.tablePrefix = prefix
		}
	}
}

// WithTimeout sets the per-operation timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(o *options) {
		if timeout > 0 {
			o.timeout = timeout
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithFileStore offloads variant payloads to an external file store
// instead of storing them inline as BYTEA.
func WithFileStore(files store.FileStore) Option {
	return func(o *options) {
		o.files = files
	}
}
