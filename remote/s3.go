package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/bitrise-io/go-utils/retry"
	"github.com/bitrise-io/go-utils/v2/log"
)

// S3SessionParams ...
type S3SessionParams struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	// Endpoint overrides the AWS endpoint, for S3 compatible stores. Path style addressing is used with it.
	Endpoint       string
	NumFullRetries int
}

type s3API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type s3Session struct {
	client         s3API
	numFullRetries int
	retryWait      time.Duration
	logger         log.Logger
}

// NewS3Session returns a session reading s3://bucket/key objects.
func NewS3Session(ctx context.Context, params S3SessionParams, logger log.Logger) (Session, error) {
	cfg, err := loadAWSCredentials(
		ctx,
		params.Region,
		params.AccessKeyID,
		params.SecretAccessKey,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("load aws credentials: %w", err)
	}

	client := s3.NewFromConfig(*cfg, func(o *s3.Options) {
		if params.Endpoint != "" {
			o.BaseEndpoint = aws.String(params.Endpoint)
			o.UsePathStyle = true
		}
	})

	return newS3Session(client, params.NumFullRetries, 5*time.Second, logger), nil
}

func newS3Session(client s3API, numFullRetries int, retryWait time.Duration, logger log.Logger) *s3Session {
	return &s3Session{
		client:         client,
		numFullRetries: numFullRetries,
		retryWait:      retryWait,
		logger:         logger,
	}
}

func (s *s3Session) Open(ctx context.Context, path string) (Object, error) {
	bucket, key, err := parseS3Path(path)
	if err != nil {
		return nil, err
	}

	if key == "" || strings.HasSuffix(key, "/") {
		return &s3Object{bucket: bucket, key: key, container: true}, nil
	}

	var size int64
	err = retry.Times(uint(s.numFullRetries)).Wait(s.retryWait).TryWithAbort(func(attempt uint) (error, bool) {
		out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			err = classifyS3Error(err)
			if errors.Is(err, ErrNotFound) || errors.Is(err, ErrAuthentication) || ctx.Err() != nil {
				return err, true
			}

			s.logger.Debugf("head object %s (attempt %d): %s", path, attempt+1, err)
			return err, false
		}

		size = aws.ToInt64(out.ContentLength)
		return nil, true
	})
	if err != nil {
		return nil, fmt.Errorf("head %s: %w", path, err)
	}

	return &s3Object{client: s.client, bucket: bucket, key: key, size: size}, nil
}

func (s *s3Session) Close() error {
	return nil
}

type s3Object struct {
	client    s3API
	bucket    string
	key       string
	size      int64
	container bool
}

func (o *s3Object) Name() string {
	if o.key == "" {
		return o.bucket
	}
	return baseName(o.key)
}

func (o *s3Object) Size() int64       { return o.size }
func (o *s3Object) IsContainer() bool { return o.container }

func (o *s3Object) OpenStream(context.Context) (Stream, error) {
	return &s3Stream{object: o}, nil
}

type s3Stream struct {
	object *s3Object
	offset int64
}

func (s *s3Stream) Seek(offset int64) error {
	if offset < 0 {
		return fmt.Errorf("negative offset %d", offset)
	}
	s.offset = offset
	return nil
}

func (s *s3Stream) ReadInto(ctx context.Context, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	if s.offset >= s.object.size {
		return 0, io.EOF
	}

	end := s.offset + int64(len(buf)) - 1
	if end >= s.object.size {
		end = s.object.size - 1
	}

	out, err := s.object.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.object.bucket),
		Key:    aws.String(s.object.key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", s.offset, end)),
	})
	if err != nil {
		return 0, fmt.Errorf("get object range %d-%d: %w", s.offset, end, classifyS3Error(err))
	}
	defer out.Body.Close() //nolint:errcheck

	want := end - s.offset + 1
	n, err := io.ReadFull(out.Body, buf[:want])
	s.offset += int64(n)
	if err != nil {
		if declared := aws.ToInt64(out.ContentLength); declared > int64(n) {
			return n, fmt.Errorf("response body truncated after %d of %d bytes: %v", n, declared, err)
		}
		return n, io.ErrUnexpectedEOF
	}
	if n < len(buf) {
		return n, io.ErrUnexpectedEOF
	}
	return n, nil
}

func (s *s3Stream) Close() error {
	return nil
}

func parseS3Path(path string) (string, string, error) {
	u, err := url.Parse(path)
	if err != nil {
		return "", "", fmt.Errorf("parse %s: %w", path, err)
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("bucket must not be empty in %s", path)
	}
	return u.Host, strings.TrimPrefix(u.Path, "/"), nil
}

func classifyS3Error(err error) error {
	var apiError smithy.APIError
	if !errors.As(err, &apiError) {
		return fmt.Errorf("generic aws error: %w", err)
	}

	switch apiError.(type) {
	case *types.NotFound, *types.NoSuchKey, *types.NoSuchBucket:
		return fmt.Errorf("%w: %s", ErrNotFound, apiError.ErrorMessage())
	}

	switch apiError.ErrorCode() {
	case "NotFound", "NoSuchKey", "NoSuchBucket":
		return fmt.Errorf("%w: %s", ErrNotFound, apiError.ErrorCode())
	case "AccessDenied", "Forbidden", "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken", "InvalidToken":
		return fmt.Errorf("%w: %s", ErrAuthentication, apiError.ErrorCode())
	default:
		return fmt.Errorf("aws api error: %w", err)
	}
}

func loadAWSCredentials(
	ctx context.Context,
	region string,
	accessKeyID string,
	secretKey string,
	logger log.Logger,
) (*aws.Config, error) {
	if region == "" {
		return nil, fmt.Errorf("region must not be empty")
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}

	if accessKeyID != "" && secretKey != "" {
		logger.Debugf("aws credentials provided, using them...")
		opts = append(opts,
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyID, secretKey, "")))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load config, %v", err)
	}

	return &cfg, nil
}
