// Package gcs provides a Google Cloud Storage-backed payload file store.
package gcs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/auth/credentials"
	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/sipfoundry/voicemail/retry"
	"github.com/sipfoundry/voicemail/store"
	"google.golang.org/api/option"
)

const (
	uriScheme     = "gs://"
	storageScope  = "https://www.googleapis.com/auth/cloud-platform"
	defaultPrefix = "voicemail"
)

// Store implements store.FileStore using Google Cloud Storage.
type Store struct {
	client *storage.Client
	bucket string
	prefix string
	retry  retry.Config
	logger *slog.Logger
}

var _ store.FileStore = (*Store)(nil)

// New creates a GCS payload store.
func New(ctx context.Context, opts ...Option) (*Store, error) {
	o := &options{
		prefix: defaultPrefix,
		retry:  retry.DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	clientOpts, err := o.clientOptions()
	if err != nil {
		return nil, fmt.Errorf("build client options: %w", err)
	}
	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}

	return &Store{
		client: client,
		bucket: o.bucket,
		prefix: o.prefix,
		retry:  o.retry,
		logger: o.logger,
	}, nil
}

// clientOptions resolves authentication: explicit JSON or file
// credentials, an API key, or Application Default Credentials
// (GOOGLE_APPLICATION_CREDENTIALS, gcloud user credentials, Workload
// Identity on GKE, or the Compute Engine default service account).
func (o *options) clientOptions() ([]option.ClientOption, error) {
	var opts []option.ClientOption

	if o.credentialsJSON != nil || o.credentialsFile != "" {
		creds, err := credentials.DetectDefault(&credentials.DetectOptions{
			Scopes:          []string{storageScope},
			CredentialsJSON: o.credentialsJSON,
			CredentialsFile: o.credentialsFile,
		})
		if err != nil {
			return nil, fmt.Errorf("detect credentials: %w", err)
		}
		opts = append(opts, option.WithAuthCredentials(creds))
	} else if o.apiKey != "" {
		opts = append(opts, option.WithAPIKey(o.apiKey))
	}

	if o.endpoint != "" {
		opts = append(opts, option.WithEndpoint(o.endpoint))
	}
	return opts, nil
}

// Upload stores audio content in GCS and returns a gs:// URI.
//
// The content is buffered in memory so a transient failure can be
// retried from the start; voicemail payloads are small enough for that
// to be safe.
func (s *Store) Upload(ctx context.Context, filename, contentType string, content io.Reader) (string, error) {
	payload, err := io.ReadAll(content)
	if err != nil {
		return "", fmt.Errorf("read payload: %w", err)
	}

	key := s.objectKey(filename)
	err = retry.Do(ctx, s.retry, func(ctx context.Context) error {
		w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
		w.ContentType = contentType
		if _, err := w.Write(payload); err != nil {
			_ = w.Close()
			return fmt.Errorf("write content to gcs: %w", err)
		}
		if err := w.Close(); err != nil {
			return fmt.Errorf("close gcs writer: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("upload to gcs: %w", err)
	}

	s.logger.Debug("uploaded payload to gcs", "bucket", s.bucket, "key", key)
	return uriScheme + s.bucket + "/" + key, nil
}

// Load returns a reader over the payload behind a gs:// URI.
func (s *Store) Load(ctx context.Context, uri string) (io.ReadCloser, error) {
	bucket, key, err := splitURI(uri)
	if err != nil {
		return nil, err
	}

	r, err := s.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs reader: %w", err)
	}
	return r, nil
}

// Delete removes the payload behind a gs:// URI.
func (s *Store) Delete(ctx context.Context, uri string) error {
	bucket, key, err := splitURI(uri)
	if err != nil {
		return err
	}

	if err := s.client.Bucket(bucket).Object(key).Delete(ctx); err != nil {
		return fmt.Errorf("delete object from gcs: %w", err)
	}

	s.logger.Debug("deleted payload from gcs", "bucket", bucket, "key", key)
	return nil
}

// Close closes the GCS client.
func (s *Store) Close() error {
	return s.client.Close()
}

// objectKey builds a unique key under a date partition.
func (s *Store) objectKey(filename string) string {
	return path.Join(s.prefix, time.Now().UTC().Format("2006/01/02"), uuid.NewString(), filename)
}

func splitURI(uri string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(uri, uriScheme)
	if !ok {
		return "", "", fmt.Errorf("invalid gcs uri: %s", uri)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("invalid gcs uri (no key): %s", uri)
	}
	return bucket, key, nil
}
