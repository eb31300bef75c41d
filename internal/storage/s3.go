// Package storage keeps offloaded document payloads in S3-compatible storage.
//
// Documents above the inline limit are written once under a key derived from
// their checksum; chunking jobs then carry the key instead of the text.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ErrObjectNotFound is returned when a payload key does not exist.
var ErrObjectNotFound = errors.New("object not found")

const textContentType = "text/plain; charset=utf-8"

// S3ClientConfig holds configuration for S3Client
type S3ClientConfig struct {
	// Endpoint overrides the AWS endpoint, e.g. a RustFS or MinIO URL.
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UsePathStyle    bool
}

// S3Client reads and writes document payloads in one bucket.
type S3Client struct {
	client *s3.Client
	bucket string
}

func NewS3Client(ctx context.Context, cfg S3ClientConfig) (*S3Client, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("bucket is required")
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3Client{client: client, bucket: cfg.Bucket}, nil
}

// PayloadKey is the object key for a document's offloaded text. Keys are
// content addressed, so re-ingesting identical text reuses the object.
func PayloadKey(workspaceID, documentID, checksum string) string {
	ws := workspaceID
	if ws == "" {
		ws = "_"
	}
	return path.Join("documents", ws, documentID, checksum+".txt")
}

// PutText stores text under key.
func (c *S3Client) PutText(ctx context.Context, key, text string) error {
	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          strings.NewReader(text),
		ContentLength: aws.Int64(int64(len(text))),
		ContentType:   aws.String(textContentType),
	})
	if err != nil {
		return fmt.Errorf("failed to put payload %s: %w", key, err)
	}
	return nil
}

// GetText reads the text stored under key.
func (c *S3Client) GetText(ctx context.Context, key string) (string, error) {
	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return "", fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return "", fmt.Errorf("failed to get payload %s: %w", key, err)
	}
	defer out.Body.Close()

	var b strings.Builder
	if out.ContentLength != nil && *out.ContentLength > 0 {
		b.Grow(int(*out.ContentLength))
	}
	if _, err := io.Copy(&b, out.Body); err != nil {
		return "", fmt.Errorf("failed to read payload %s: %w", key, err)
	}
	return b.String(), nil
}

// Exists reports whether an object is stored under key.
func (c *S3Client) Exists(ctx context.Context, key string) (bool, error) {
	_, err := c.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return false, nil
	}
	return false, fmt.Errorf("failed to head payload %s: %w", key, err)
}

// EnsureBucket creates the bucket if it doesn't exist.
func (c *S3Client) EnsureBucket(ctx context.Context) error {
	if _, err := c.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucket)}); err == nil {
		return nil
	}

	_, err := c.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(c.bucket)})
	if err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &owned) {
			return nil
		}
		return fmt.Errorf("failed to create bucket %s: %w", c.bucket, err)
	}
	return nil
}
