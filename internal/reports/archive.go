package reports

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Archiver stores finished reports and returns where they went.
type Archiver interface {
	Archive(ctx context.Context, key string, doc Document) (string, error)
}

// DirArchiver writes reports under a local directory.
type DirArchiver struct {
	Dir string
}

// Archive implements Archiver.
func (a DirArchiver) Archive(_ context.Context, key string, doc Document) (string, error) {
	clean, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	dest := filepath.Join(a.Dir, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}
	if err := os.WriteFile(dest, doc.Data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", dest, err)
	}
	return dest, nil
}

// S3Config configures an S3 or Cloudflare R2 archive. Setting AccountID
// targets R2; Endpoint overrides the endpoint for other S3-compatible stores.
type S3Config struct {
	Bucket    string
	Prefix    string
	Region    string
	AccountID string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// objectPutter is the part of the S3 client the archiver uses.
type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver uploads reports to a bucket.
type S3Archiver struct {
	client objectPutter
	bucket string
	prefix string
}

// NewS3Archiver builds an archiver from cfg. Without static keys the default
// AWS credential chain is used.
func NewS3Archiver(ctx context.Context, cfg S3Config) (*S3Archiver, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("report bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("error creating aws config: %w", err)
	}

	endpoint := cfg.Endpoint
	if endpoint == "" && cfg.AccountID != "" {
		endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)
	}
	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Archiver{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Archive implements Archiver.
func (a *S3Archiver) Archive(ctx context.Context, key string, doc Document) (string, error) {
	clean, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	if a.prefix != "" {
		clean = path.Join(a.prefix, clean)
	}
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(clean),
		Body:        bytes.NewReader(doc.Data),
		ContentType: aws.String(doc.ContentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", clean, err)
	}
	return fmt.Sprintf("s3://%s/%s", a.bucket, clean), nil
}

// cleanKey rejects keys that would escape the archive root.
func cleanKey(key string) (string, error) {
	clean := path.Clean("/" + strings.ReplaceAll(key, "\\", "/"))[1:]
	if clean == "" || clean == "." {
		return "", fmt.Errorf("invalid archive key %q", key)
	}
	return clean, nil
}
