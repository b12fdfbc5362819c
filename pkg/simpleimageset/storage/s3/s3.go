// Package s3 provides an S3-compatible simpleimageset.BucketStore. It works
// against AWS S3 and S3-compatible services such as MinIO.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/tendant/simple-imageset/pkg/simpleimageset"
)

// Config options for the S3 backend
type Config struct {
	Region          string // AWS region
	AccessKeyID     string // AWS access key ID
	SecretAccessKey string // AWS secret access key
	Endpoint        string // Optional custom endpoint for S3-compatible services
	UsePathStyle    bool   // Use path-style addressing (default: false)

	// MinIO/S3-compatible service options
	CreateBucketIfNotExist bool     // Create buckets if they don't exist
	Buckets                []string // Buckets to ensure when CreateBucketIfNotExist is set
}

// Backend is an S3-compatible implementation of the
// simpleimageset.BucketStore interface.
type Backend struct {
	client *s3.Client
	config Config
}

// New creates a new S3-compatible bucket store
func New(config Config) (*Backend, error) {
	if config.Region == "" {
		config.Region = "us-east-1"
	}

	var awsCfg aws.Config
	var err error

	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		// Use provided credentials
		awsCfg, err = awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(config.Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				config.AccessKeyID,
				config.SecretAccessKey,
				"",
			)),
		)
	} else {
		// Use default credential chain
		awsCfg, err = awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(config.Region),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Options []func(*s3.Options)

	// Custom endpoint for S3-compatible services (MinIO, etc.)
	if config.Endpoint != "" {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(config.Endpoint)
			o.UsePathStyle = config.UsePathStyle
		})
	}

	backend := &Backend{
		client: s3.NewFromConfig(awsCfg, s3Options...),
		config: config,
	}

	if config.CreateBucketIfNotExist {
		for _, bucket := range config.Buckets {
			if err := backend.createBucketIfNotExists(context.Background(), bucket); err != nil {
				return nil, fmt.Errorf("failed to create bucket %q: %w", bucket, err)
			}
		}
	}

	return backend, nil
}

// createBucketIfNotExists creates the bucket if it doesn't exist
func (b *Backend) createBucketIfNotExists(ctx context.Context, bucket string) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(bucket),
	})
	if err == nil {
		return nil
	}

	// Handle multiple error shapes for MinIO compatibility
	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) &&
		!strings.Contains(err.Error(), "BadRequest") &&
		!strings.Contains(err.Error(), "NoSuchBucket") {
		return fmt.Errorf("failed to check bucket: %w", err)
	}

	createInput := &s3.CreateBucketInput{
		Bucket: aws.String(bucket),
	}
	if b.config.Region != "us-east-1" {
		createInput.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(b.config.Region),
		}
	}

	_, err = b.client.CreateBucket(ctx, createInput)
	if err != nil {
		if strings.Contains(err.Error(), "BucketAlreadyExists") ||
			strings.Contains(err.Error(), "BucketAlreadyOwnedByYou") {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// Upload writes an object into a bucket
func (b *Backend) Upload(ctx context.Context, bucket, objectKey string, reader io.Reader) error {
	uploader := manager.NewUploader(b.client)

	_, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(objectKey),
		Body:   reader,
	})
	if err != nil {
		return b.failure("upload", bucket, objectKey, err)
	}
	return nil
}

// Move relocates an object between buckets via server-side copy then delete.
func (b *Backend) Move(ctx context.Context, objectKey, sourceBucket, destBucket string) error {
	_, err := b.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(destBucket),
		CopySource: aws.String(sourceBucket + "/" + objectKey),
		Key:        aws.String(objectKey),
	})
	if err != nil {
		return b.failure("move", sourceBucket, objectKey, err)
	}

	_, err = b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(sourceBucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return b.failure("move", sourceBucket, objectKey, err)
	}
	return nil
}

// PresignDownload mints a time-limited GET URL for an object.
func (b *Backend) PresignDownload(ctx context.Context, bucket, objectKey string, expires time.Duration) (string, error) {
	presigner := s3.NewPresignClient(b.client)

	req, err := presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(objectKey),
	}, s3.WithPresignExpires(expires))
	if err != nil {
		return "", b.failure("presign", bucket, objectKey, err)
	}
	return req.URL, nil
}

// Download reads an object back
func (b *Backend) Download(ctx context.Context, bucket, objectKey string) (io.ReadCloser, error) {
	result, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return nil, b.failure("download", bucket, objectKey, err)
	}
	return result.Body, nil
}

// Delete deletes an object
func (b *Backend) Delete(ctx context.Context, bucket, objectKey string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return b.failure("delete", bucket, objectKey, err)
	}
	return nil
}

// failure translates an SDK error into a StorageFailureError carrying the
// upstream HTTP status code and message, so pipeline failure payloads expose
// the same surface S3 returned.
func (b *Backend) failure(action, bucket, objectKey string, err error) error {
	code := http.StatusInternalServerError

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		code = respErr.HTTPStatusCode()
	} else {
		var notFound *types.NotFound
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
			code = http.StatusNotFound
		}
	}

	return &simpleimageset.StorageFailureError{
		Action:     action,
		Bucket:     bucket,
		Key:        objectKey,
		StatusCode: code,
		Body:       err.Error(),
		Err:        err,
	}
}
