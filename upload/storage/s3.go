package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/storekit/storekit/upload"
)

// S3Config holds configuration for the S3 backend. Credentials are optional
// and fall back to the AWS environment/IAM defaults.
type S3Config struct {
	Bucket          string // S3 bucket name (required)
	Region          string // AWS region (optional, uses default if empty)
	AccessKeyID     string // explicit access key (optional)
	SecretAccessKey string // explicit secret key (optional)
	Endpoint        string // custom endpoint for S3-compatible services (optional)
	ForcePathStyle  bool   // path-style addressing for S3-compatible services
	BaseURL         string // custom base URL for public access (optional)
}

// S3Store persists blobs in an S3 (or S3-compatible) bucket.
type S3Store struct {
	client *s3.Client
	bucket string
	config S3Config
}

// NewS3 creates an S3 backend.
//
//	// Standard AWS S3, credentials from the environment
//	store, err := storage.NewS3(ctx, storage.S3Config{Bucket: "files", Region: "us-west-2"})
//
//	// S3-compatible service (MinIO etc.)
//	store, err := storage.NewS3(ctx, storage.S3Config{
//	    Bucket:         "files",
//	    Endpoint:       "http://localhost:9000",
//	    ForcePathStyle: true,
//	})
func NewS3(ctx context.Context, config S3Config) (*S3Store, error) {
	if config.Bucket == "" {
		return nil, &upload.ConfigurationError{Subject: "s3 storage", Reason: "bucket name is required"}
	}

	awsConfig, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(config.Region))
	if err != nil {
		return nil, &upload.ConfigurationError{Subject: "s3 storage", Reason: fmt.Sprintf("failed to load AWS config: %v", err)}
	}

	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		awsConfig.Credentials = aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
			return aws.Credentials{
				AccessKeyID:     config.AccessKeyID,
				SecretAccessKey: config.SecretAccessKey,
			}, nil
		})
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if config.Endpoint != "" {
			o.BaseEndpoint = aws.String(config.Endpoint)
		}
		if config.ForcePathStyle {
			o.UsePathStyle = true
		}
	})

	return &S3Store{client: client, bucket: config.Bucket, config: config}, nil
}

// EnsureBucket creates the bucket when it does not exist yet. Run it under
// the descriptor's resolver lock so concurrent uploads against the same
// backend cannot race the creation.
func (s *S3Store) EnsureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return nil
	}
	if _, err := s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &owned) {
			return nil
		}
		return fmt.Errorf("failed to create bucket %q: %w", s.bucket, err)
	}
	return nil
}

// Store uploads a blob to the bucket.
func (s *S3Store) Store(ctx context.Context, location string, reader io.Reader, size int64, contentType string) (string, error) {
	key := strings.TrimPrefix(path.Clean(location), "/")

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   reader,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if size >= 0 {
		input.ContentLength = aws.Int64(size)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}
	return key, nil
}

// GetReader opens a stored object for reading.
func (s *S3Store) GetReader(ctx context.Context, location string) (io.ReadCloser, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(location),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, &upload.NotFoundError{Location: location}
		}
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	return result.Body, nil
}

// Delete removes a stored object.
func (s *S3Store) Delete(ctx context.Context, location string) error {
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(location),
	}); err != nil {
		return fmt.Errorf("failed to delete from S3: %w", err)
	}
	return nil
}

// Exists reports whether an object is stored at the location.
func (s *S3Store) Exists(ctx context.Context, location string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(location),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// GetSize returns the stored size of an object in bytes.
func (s *S3Store) GetSize(ctx context.Context, location string) (int64, error) {
	result, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(location),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return 0, &upload.NotFoundError{Location: location}
		}
		return 0, fmt.Errorf("failed to get object info: %w", err)
	}
	if result.ContentLength == nil {
		return 0, fmt.Errorf("content length not available")
	}
	return *result.ContentLength, nil
}

// List returns the keys of every object under the prefix, following
// continuation tokens.
func (s *S3Store) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	var continuationToken *string
	for {
		input := &s3.ListObjectsV2Input{Bucket: aws.String(s.bucket)}
		if prefix != "" {
			input.Prefix = aws.String(prefix)
		}
		if continuationToken != nil {
			input.ContinuationToken = continuationToken
		}

		result, err := s.client.ListObjectsV2(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to list S3 objects: %w", err)
		}
		for _, object := range result.Contents {
			if object.Key != nil {
				keys = append(keys, *object.Key)
			}
		}
		if result.IsTruncated == nil || !*result.IsTruncated {
			break
		}
		continuationToken = result.NextContinuationToken
	}
	return keys, nil
}

// GetURL returns the public URL for a stored object.
func (s *S3Store) GetURL(location string) string {
	if s.config.BaseURL != "" {
		return strings.TrimSuffix(s.config.BaseURL, "/") + "/" + location
	}
	if s.config.Endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", strings.TrimSuffix(s.config.Endpoint, "/"), s.bucket, location)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.config.Region, location)
}

// SignedURL generates a pre-signed GET URL for temporary access.
func (s *S3Store) SignedURL(ctx context.Context, location string, expiration time.Duration) (string, error) {
	presignClient := s3.NewPresignClient(s.client)
	request, err := presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(location),
	}, s3.WithPresignExpires(expiration))
	if err != nil {
		return "", fmt.Errorf("failed to generate pre-signed URL: %w", err)
	}
	return request.URL, nil
}

// SignedUploadURL generates a pre-signed PUT URL so clients can upload
// directly to the bucket without passing bytes through the process.
func (s *S3Store) SignedUploadURL(ctx context.Context, location, contentType string, expiration time.Duration) (string, error) {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(location),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	presignClient := s3.NewPresignClient(s.client)
	request, err := presignClient.PresignPutObject(ctx, input, s3.WithPresignExpires(expiration))
	if err != nil {
		return "", fmt.Errorf("failed to generate pre-signed upload URL: %w", err)
	}
	return request.URL, nil
}

// Info returns bucket metadata plus object count and total size.
func (s *S3Store) Info(ctx context.Context) (map[string]any, error) {
	info := map[string]any{
		"type":   "s3",
		"bucket": s.bucket,
		"region": s.config.Region,
	}
	var totalSize int64
	var count int
	var continuationToken *string
	for {
		input := &s3.ListObjectsV2Input{Bucket: aws.String(s.bucket)}
		if continuationToken != nil {
			input.ContinuationToken = continuationToken
		}
		result, err := s.client.ListObjectsV2(ctx, input)
		if err != nil {
			break
		}
		for _, object := range result.Contents {
			if object.Size != nil {
				totalSize += *object.Size
			}
			count++
		}
		if result.IsTruncated == nil || !*result.IsTruncated {
			break
		}
		continuationToken = result.NextContinuationToken
	}
	info["totalSize"] = totalSize
	info["fileCount"] = count
	return info, nil
}

// Close is a no-op; the S3 client holds no connection state to release.
func (s *S3Store) Close() error { return nil }
