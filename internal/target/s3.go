package target

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

	"multipush/internal/model"
	"multipush/internal/push"
)

// S3Target uploads content to an S3 bucket. Each instance carries one
// account's static key pair, so request throttling applies per credential.
type S3Target struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// NewS3Target creates an S3Target for one account's static credentials.
func NewS3Target(ctx context.Context, region, bucket, prefix, accessKeyID, secretAccessKey string) (*S3Target, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg)
	return &S3Target{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   strings.Trim(prefix, "/"),
	}, nil
}

// PutContent uploads the payload to the bucket under prefix/path using the
// multipart upload manager, which handles large files without buffering them
// whole. S3 PUTs are idempotent overwrites by definition.
func (t *S3Target) PutContent(ctx context.Context, path string, r io.Reader, size int64) (*push.PutResult, error) {
	key := strings.TrimLeft(path, "/")
	if t.prefix != "" {
		key = t.prefix + "/" + key
	}

	_, err := t.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(key),
		Body:   r,
	})
	if err != nil {
		return nil, classifyS3Error(err)
	}

	// S3 exposes no per-request quota telemetry; throttling shows up as
	// SlowDown errors instead, so RateLimit stays nil here.
	return &push.PutResult{StatusCode: 200}, nil
}

// ValidateSetup verifies the bucket exists and the credentials can reach it.
func (t *S3Target) ValidateSetup(ctx context.Context) error {
	_, err := t.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(t.bucket)})
	if err != nil {
		return fmt.Errorf("bucket %s not accessible: %w", t.bucket, err)
	}
	return nil
}

// apiError is the subset of the smithy API error surface we classify on,
// declared locally to keep the error mapping in one place.
type apiError interface {
	error
	ErrorCode() string
	ErrorMessage() string
}

// classifyS3Error maps an S3 API error to an UploadError. Unknown errors
// pass through unwrapped; the worker retries them as transient.
func classifyS3Error(err error) error {
	var ae apiError
	if !errors.As(err, &ae) {
		return err
	}

	var kind model.ErrorKind
	switch ae.ErrorCode() {
	case "SlowDown", "Throttling", "ThrottlingException", "RequestLimitExceeded":
		kind = model.ErrRateLimited
	case "AccessDenied", "InvalidAccessKeyId", "ExpiredToken", "SignatureDoesNotMatch", "TokenRefreshRequired":
		kind = model.ErrAuth
	case "EntityTooLarge", "InvalidArgument", "KeyTooLongError":
		kind = model.ErrPermanentContent
	case "NoSuchBucket":
		kind = model.ErrPermanentContent
	default:
		kind = model.ErrTransientNetwork
	}

	return &push.UploadError{Kind: kind, Message: ae.ErrorCode() + ": " + ae.ErrorMessage()}
}

// Compile-time check that S3Target implements push.Target
var _ push.Target = (*S3Target)(nil)
