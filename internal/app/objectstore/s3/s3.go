// Package s3 implements the object store on Amazon S3 (or any S3-compatible
// endpoint) using presigned URLs.
package s3

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/hangarhq/hangar/internal/app/objectstore"
	"github.com/hangarhq/hangar/internal/logging"
)

const (
	defaultContentType = "binary/octet-stream"
	apkContentType     = "application/vnd.android.package-archive"
)

// Config holds the provider settings.
type Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UploadTTL       time.Duration
	DownloadTTL     time.Duration
}

// Store issues presigned S3 URLs and manages object lifecycle.
type Store struct {
	client      *s3.Client
	presign     *s3.PresignClient
	bucket      string
	uploadTTL   time.Duration
	downloadTTL time.Duration
	log         *logging.Logger
}

var _ objectstore.Store = (*Store)(nil)

// New constructs the S3-backed store. Static credentials are optional; the
// default AWS credential chain applies when they are absent.
func New(ctx context.Context, cfg Config, log *logging.Logger) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("missing required key 'Bucket' in params")
	}
	if log == nil {
		log = logging.Default()
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	uploadTTL := cfg.UploadTTL
	if uploadTTL == 0 {
		uploadTTL = 15 * time.Minute
	}
	downloadTTL := cfg.DownloadTTL
	if downloadTTL == 0 {
		downloadTTL = 15 * time.Minute
	}

	return &Store{
		client:      client,
		presign:     s3.NewPresignClient(client),
		bucket:      cfg.Bucket,
		uploadTTL:   uploadTTL,
		downloadTTL: downloadTTL,
		log:         log.WithField("component", "objectstore-s3"),
	}, nil
}

// CheckBucket verifies the configured bucket is reachable at startup.
func (s *Store) CheckBucket(ctx context.Context) error {
	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		return fmt.Errorf("unknown 'Bucket' name %q: %w", s.bucket, err)
	}
	return nil
}

// CreateUpload issues a signed PUT URL for the object key.
func (s *Store) CreateUpload(ctx context.Context, req objectstore.UploadRequest) (objectstore.SignedURL, error) {
	contentType := req.ContentType
	if contentType == "" {
		contentType = defaultContentType
	}
	acl := s3types.ObjectCannedACLAuthenticatedRead
	if req.Public {
		acl = s3types.ObjectCannedACLPublicRead
	}

	signed, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(req.File),
		ACL:         acl,
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(s.uploadTTL))
	if err != nil {
		return objectstore.SignedURL{}, fmt.Errorf("presign upload for %s: %w", req.File, err)
	}
	return objectstore.SignedURL{URL: signed.URL}, nil
}

// GetDownloadURL issues a signed GET URL, overriding the response content
// type for .apk files.
func (s *Store) GetDownloadURL(ctx context.Context, file string) (objectstore.SignedURL, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(file),
	}
	if strings.HasSuffix(file, ".apk") {
		input.ResponseContentType = aws.String(apkContentType)
	}

	signed, err := s.presign.PresignGetObject(ctx, input, s3.WithPresignExpires(s.downloadTTL))
	if err != nil {
		return objectstore.SignedURL{}, fmt.Errorf("presign download for %s: %w", file, err)
	}
	return objectstore.SignedURL{URL: signed.URL}, nil
}

// RemoveFile deletes the object; deleting an absent object is a no-op.
func (s *Store) RemoveFile(ctx context.Context, file string) error {
	exists, err := s.FileExists(ctx, file)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}

	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(file),
	}); err != nil {
		return fmt.Errorf("delete file %s: %w", file, err)
	}
	return nil
}

// FileExists reports object presence, mapping not-found to (false, nil).
func (s *Store) FileExists(ctx context.Context, file string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(file),
	})
	if err != nil {
		var notFound *s3types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("head object %s: %w", file, err)
	}
	return true, nil
}
