package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3Storage stores objects in any S3-compatible bucket (AWS, R2, MinIO).
type S3Storage struct {
	Client    *s3.Client
	Uploader  *manager.Uploader
	Bucket    string
	PublicURL string
}

type S3Options struct {
	Region          string
	Endpoint        string // optional, for non-AWS providers
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	PublicURL       string
	UsePathStyle    bool // required by most non-AWS endpoints
}

func NewS3Storage(ctx context.Context, opts S3Options) (*S3Storage, error) {
	region := opts.Region
	if region == "" {
		region = "auto"
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")),
		awsconfig.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
		// Some S3-compatible providers do not return the checksums the SDK
		// expects, which floods the log with warnings.
		o.DisableLogOutputChecksumValidationSkipped = true
	})

	return &S3Storage{
		Client:    client,
		Uploader:  manager.NewUploader(client),
		Bucket:    opts.Bucket,
		PublicURL: strings.TrimRight(opts.PublicURL, "/"),
	}, nil
}

// Save uploads to the bucket and returns the public URL.
func (s *S3Storage) Save(ctx context.Context, key string, data io.Reader, size int64, contentType string) (string, error) {
	_, err := s.Uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.Bucket),
		Key:         aws.String(key),
		Body:        data,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}

	return s.GetURL(key), nil
}

func (s *S3Storage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	output, err := s.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", key, err)
	}

	return output.Body, nil
}

func (s *S3Storage) GetURL(key string) string {
	if s.PublicURL == "" {
		return key
	}
	return fmt.Sprintf("%s/%s", s.PublicURL, key)
}

func (s *S3Storage) KeyFromURL(url string) (string, bool) {
	if s.PublicURL != "" && strings.HasPrefix(url, s.PublicURL+"/") {
		return strings.TrimPrefix(url, s.PublicURL+"/"), true
	}
	if strings.Contains(url, "://") {
		return "", false
	}
	return url, true
}

// Delete removes the object behind a key or a previously returned URL.
// S3 treats deleting a missing key as success, which is exactly the
// idempotency we want; remaining errors are real failures.
func (s *S3Storage) Delete(ctx context.Context, keyOrURL string) error {
	key, ok := s.KeyFromURL(keyOrURL)
	if !ok {
		return fmt.Errorf("url %q does not belong to this bucket", keyOrURL)
	}
	_, err := s.Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
	})
	if err != nil && isNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func (s *S3Storage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to head %s: %w", key, err)
	}
	return true, nil
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	var nk *types.NoSuchKey
	if errors.As(err, &nf) || errors.As(err, &nk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NotFound" || code == "NoSuchKey"
	}
	return false
}
