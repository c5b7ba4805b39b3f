package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/ruteri/credential-store/interfaces"
)

// s3API is the subset of the S3 client used by S3Backend.
type s3API interface {
	HeadObjectWithContext(ctx aws.Context, input *s3.HeadObjectInput, opts ...request.Option) (*s3.HeadObjectOutput, error)
	GetObjectWithContext(ctx aws.Context, input *s3.GetObjectInput, opts ...request.Option) (*s3.GetObjectOutput, error)
	PutObjectWithContext(ctx aws.Context, input *s3.PutObjectInput, opts ...request.Option) (*s3.PutObjectOutput, error)
	DeleteObjectWithContext(ctx aws.Context, input *s3.DeleteObjectInput, opts ...request.Option) (*s3.DeleteObjectOutput, error)
	ListObjectsV2PagesWithContext(ctx aws.Context, input *s3.ListObjectsV2Input, fn func(*s3.ListObjectsV2Output, bool) bool, opts ...request.Option) error
}

// S3Backend implements interfaces.KeyValueClient on an S3 or S3-compatible bucket.
// Leaves are objects at <prefix>/<path>; directories are empty marker objects
// at <prefix>/<path>/.
type S3Backend struct {
	client      s3API
	bucketName  string
	prefix      string
	log         *slog.Logger
	locationURI string
}

// NewS3Backend creates a new S3 backend. When endpoint is set (MinIO and
// friends) path-style addressing is used.
func NewS3Backend(bucketName, prefix, region, endpoint, accessKey, secretKey string, log *slog.Logger) (*S3Backend, error) {
	uri := fmt.Sprintf("s3://%s/%s?region=%s", bucketName, cleanPath(prefix), region)
	if endpoint != "" {
		uri += fmt.Sprintf("&endpoint=%s", endpoint)
	}

	cfg := aws.Config{
		Region: aws.String(region),
	}
	if endpoint != "" {
		cfg.Endpoint = aws.String(endpoint)
		cfg.S3ForcePathStyle = aws.Bool(true)
	}
	if accessKey != "" && secretKey != "" {
		cfg.Credentials = credentials.NewStaticCredentials(accessKey, secretKey, "")
	} else {
		log.Warn("No S3 credentials in URI - falling back to the default AWS credential chain")
	}

	sess, err := session.NewSession(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return newS3BackendWithClient(s3.New(sess), bucketName, prefix, uri, log), nil
}

func newS3BackendWithClient(client s3API, bucketName, prefix, uri string, log *slog.Logger) *S3Backend {
	return &S3Backend{
		client:      client,
		bucketName:  bucketName,
		prefix:      cleanPath(prefix),
		log:         log,
		locationURI: uri,
	}
}

func (b *S3Backend) leafKey(path string) string {
	return joinPrefix(b.prefix, path)
}

func (b *S3Backend) dirKey(path string) string {
	return joinPrefix(b.prefix, path) + "/"
}

func isS3NotFound(err error) bool {
	var reqErr awserr.RequestFailure
	if errors.As(err, &reqErr) && reqErr.StatusCode() == http.StatusNotFound {
		return true
	}
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return false
}

// s3Failure converts an SDK error into either a status response (the server
// answered) or a transport error.
func (b *S3Backend) s3Failure(op, key string, err error) (*interfaces.Response, error) {
	var reqErr awserr.RequestFailure
	if errors.As(err, &reqErr) && reqErr.StatusCode() != 0 {
		return status(reqErr.StatusCode()), nil
	}
	b.log.Error("S3 request failed",
		slog.String("op", op),
		slog.String("bucket", b.bucketName),
		slog.String("key", key),
		"err", err)
	return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
}

// exists reports whether key is present.
func (b *S3Backend) exists(ctx context.Context, key string) (bool, *interfaces.Response, error) {
	_, err := b.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucketName),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil, nil
	}
	if isS3NotFound(err) {
		return false, nil, nil
	}
	resp, err := b.s3Failure("head", key, err)
	return false, resp, err
}

func (b *S3Backend) Get(ctx context.Context, path string) (*interfaces.Response, error) {
	start := time.Now()
	key := b.leafKey(path)

	result, err := b.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		if !isS3NotFound(err) {
			return b.s3Failure("get", key, err)
		}
		isDir, resp, err := b.exists(ctx, b.dirKey(path))
		if err != nil || resp != nil {
			return resp, err
		}
		if isDir {
			return dirResponse(), nil
		}
		return status(http.StatusNotFound), nil
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read object body: %v", interfaces.ErrBackendUnavailable, err)
	}

	b.log.Debug("Fetched value from S3",
		slog.String("bucket", b.bucketName),
		slog.String("key", key),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))

	return leafResponse(data), nil
}

func (b *S3Backend) Set(ctx context.Context, path string, value string, update bool) (*interfaces.Response, error) {
	key := b.leafKey(path)

	isDir, resp, err := b.exists(ctx, b.dirKey(path))
	if err != nil || resp != nil {
		return resp, err
	}
	if isDir {
		return status(http.StatusForbidden), nil
	}

	existed, resp, err := b.exists(ctx, key)
	if err != nil || resp != nil {
		return resp, err
	}
	if update && !existed {
		return status(http.StatusNotFound), nil
	}

	_, err = b.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucketName),
		Key:    aws.String(key),
		Body:   bytes.NewReader([]byte(value)),
	})
	if err != nil {
		return b.s3Failure("put", key, err)
	}

	b.log.Debug("Stored value in S3",
		slog.String("bucket", b.bucketName),
		slog.String("key", key))

	if existed {
		return status(http.StatusOK), nil
	}
	return status(http.StatusCreated), nil
}

func (b *S3Backend) Mkdir(ctx context.Context, path string) (*interfaces.Response, error) {
	key := b.dirKey(path)

	for _, k := range []string{key, b.leafKey(path)} {
		found, resp, err := b.exists(ctx, k)
		if err != nil || resp != nil {
			return resp, err
		}
		if found {
			return status(http.StatusPreconditionFailed), nil
		}
	}

	_, err := b.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucketName),
		Key:    aws.String(key),
		Body:   bytes.NewReader(nil),
	})
	if err != nil {
		return b.s3Failure("mkdir", key, err)
	}
	return status(http.StatusCreated), nil
}

func (b *S3Backend) Delete(ctx context.Context, path string, recursive bool) (*interfaces.Response, error) {
	leaf := b.leafKey(path)
	found, resp, err := b.exists(ctx, leaf)
	if err != nil || resp != nil {
		return resp, err
	}
	if found {
		if _, err := b.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(b.bucketName),
			Key:    aws.String(leaf),
		}); err != nil {
			return b.s3Failure("delete", leaf, err)
		}
		return status(http.StatusOK), nil
	}

	dir := b.dirKey(path)
	found, resp, err = b.exists(ctx, dir)
	if err != nil || resp != nil {
		return resp, err
	}
	if !found {
		return status(http.StatusNotFound), nil
	}
	if !recursive {
		return status(http.StatusForbidden), nil
	}

	var keys []string
	err = b.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucketName),
		Prefix: aws.String(dir),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			keys = append(keys, aws.StringValue(obj.Key))
		}
		return true
	})
	if err != nil {
		return b.s3Failure("list", dir, err)
	}

	for _, k := range keys {
		if _, err := b.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(b.bucketName),
			Key:    aws.String(k),
		}); err != nil {
			return b.s3Failure("delete", k, err)
		}
	}

	b.log.Debug("Deleted S3 subtree",
		slog.String("bucket", b.bucketName),
		slog.String("prefix", dir),
		slog.Int("objects", len(keys)))

	return status(http.StatusOK), nil
}

// Name returns a unique identifier for this backend.
func (b *S3Backend) Name() string {
	return fmt.Sprintf("s3-%s", b.bucketName)
}

// LocationURI returns the URI that identifies this backend.
func (b *S3Backend) LocationURI() string {
	return b.locationURI
}
