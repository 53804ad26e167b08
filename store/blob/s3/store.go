// Package s3 provides an S3-backed payload file store for voicemail audio.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/transfermanager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/sipfoundry/voicemail/retry"
	"github.com/sipfoundry/voicemail/store"
)

const uriScheme = "s3://"

// Store implements store.FileStore using AWS S3.
type Store struct {
	client *s3.Client
	tm     *transfermanager.Client
	bucket string
	prefix string
	retry  retry.Config
	logger *slog.Logger
}

var _ store.FileStore = (*Store)(nil)

// New creates an S3 payload store. The context is used while resolving
// AWS credentials and configuration.
func New(ctx context.Context, opts ...Option) (*Store, error) {
	o := &options{
		region: "us-east-1",
		prefix: "voicemail",
		retry:  retry.DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	awsCfg, err := o.loadAWSConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("build aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(so *s3.Options) {
		if o.endpoint != "" {
			so.BaseEndpoint = aws.String(o.endpoint)
			so.UsePathStyle = o.usePathStyle
		}
	})

	return &Store{
		client: client,
		tm:     transfermanager.New(client),
		bucket: o.bucket,
		prefix: o.prefix,
		retry:  o.retry,
		logger: o.logger,
	}, nil
}

// loadAWSConfig resolves credentials in order: static keys, STS
// AssumeRole, then the SDK default chain (env vars, shared config,
// instance roles, IRSA).
func (o *options) loadAWSConfig(ctx context.Context) (aws.Config, error) {
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(o.region)}

	if o.accessKey != "" && o.secretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(o.accessKey, o.secretKey, o.sessionToken)))
		return config.LoadDefaultConfig(ctx, loadOpts...)
	}

	if o.roleARN != "" {
		base, err := config.LoadDefaultConfig(ctx, config.WithRegion(o.region))
		if err != nil {
			return aws.Config{}, fmt.Errorf("load base config for role: %w", err)
		}
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			newAssumeRoleProvider(base, o.roleARN, o.roleSessionName, o.externalID)))
	}

	return config.LoadDefaultConfig(ctx, loadOpts...)
}

// Upload stores audio content in S3 and returns an s3:// URI.
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
		_, err := s.tm.UploadObject(ctx, &transfermanager.UploadObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(payload),
			ContentType: aws.String(contentType),
		})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("upload to s3: %w", err)
	}

	s.logger.Debug("uploaded payload to s3", "bucket", s.bucket, "key", key)
	return uriScheme + s.bucket + "/" + key, nil
}

// Load returns a reader over the payload behind an s3:// URI.
func (s *Store) Load(ctx context.Context, uri string) (io.ReadCloser, error) {
	bucket, key, err := splitURI(uri)
	if err != nil {
		return nil, err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get object from s3: %w", err)
	}
	return out.Body, nil
}

// Delete removes the payload behind an s3:// URI.
func (s *Store) Delete(ctx context.Context, uri string) error {
	bucket, key, err := splitURI(uri)
	if err != nil {
		return err
	}

	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("delete object from s3: %w", err)
	}

	s.logger.Debug("deleted payload from s3", "bucket", bucket, "key", key)
	return nil
}

// objectKey builds a unique key under a date partition, which keeps
// listing and lifecycle rules manageable.
func (s *Store) objectKey(filename string) string {
	return path.Join(s.prefix, time.Now().UTC().Format("2006/01/02"), uuid.NewString(), filename)
}

func splitURI(uri string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(uri, uriScheme)
	if !ok {
		return "", "", fmt.Errorf("invalid s3 uri: %s", uri)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("invalid s3 uri (no key): %s", uri)
	}
	return bucket, key, nil
}
