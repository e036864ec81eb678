package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config holds S3 client settings.
type S3Config struct {
	// Bucket is the S3 bucket name (required).
	Bucket string
	// Region is the AWS region (optional, uses default chain if empty).
	Region string
	// Endpoint is a custom endpoint for S3-compatible providers
	// (e.g. Cloudflare R2, MinIO). Empty uses the default AWS endpoint.
	Endpoint string
	// UsePathStyle forces path-style addressing. Most S3-compatible
	// providers need it.
	UsePathStyle bool
}

// Validate checks that required S3 configuration is present.
func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("S3 bucket is required")
	}
	return nil
}

// PutObjectAPI is the subset of *s3.Client the writer uses.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ParseS3URL splits s3://bucket/key into its parts.
func ParseS3URL(raw string) (bucket, key string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("invalid s3 url %q: %w", raw, err)
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("invalid s3 url %q: scheme must be s3", raw)
	}
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("invalid s3 url %q: missing bucket", raw)
	}
	if key == "" || strings.HasSuffix(key, "/") {
		return "", "", fmt.Errorf("invalid s3 url %q: missing object key", raw)
	}
	return bucket, key, nil
}

// S3Writer uploads reports as single S3 objects.
type S3Writer struct {
	client PutObjectAPI
	bucket string
	key    string
}

// NewS3Writer creates a writer for bucket/key. If client is nil, one is built
// from the AWS default credential chain (env vars, shared config, IAM role).
func NewS3Writer(ctx context.Context, cfg S3Config, key string, client PutObjectAPI) (*S3Writer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if client == nil {
		c, err := newS3Client(ctx, cfg)
		if err != nil {
			return nil, Wrap(err, "init", "s3://"+cfg.Bucket)
		}
		client = c
	}
	return &S3Writer{client: client, bucket: cfg.Bucket, key: key}, nil
}

func newS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = &endpoint
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}
	return s3.NewFromConfig(awsConfig, s3Opts...), nil
}

// Put uploads data as the object body.
func (w *S3Writer) Put(ctx context.Context, data []byte, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(w.bucket),
		Key:           aws.String(w.key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := w.client.PutObject(ctx, input); err != nil {
		return Wrap(err, "put", w.Location())
	}
	return nil
}

// Location returns the s3:// URL of the object.
func (w *S3Writer) Location() string {
	return "s3://" + w.bucket + "/" + w.key
}
