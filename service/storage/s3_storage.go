package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/bbars/chunkgate/utils"
	"github.com/pkg/errors"
)

type S3Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// S3API is the subset of the S3 client used by S3Storage.
type S3API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Storage keeps every chunk as one object named Prefix+address.
type S3Storage struct {
	Client S3API
	Bucket string
	Prefix string
}

var _ Storage = &S3Storage{}

func NewS3Storage(ctx context.Context, conf S3Config) (storage *S3Storage, err error) {
	if conf.Bucket == "" {
		err = errors.New("bucket must not be empty")
		return
	}
	if conf.Region == "" {
		err = errors.New("region must not be empty")
		return
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(conf.Region),
	}
	if conf.AccessKeyID != "" && conf.SecretAccessKey != "" {
		opts = append(opts,
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(conf.AccessKeyID, conf.SecretAccessKey, "")))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		err = errors.Wrap(err, "load aws config")
		return
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if conf.Endpoint != "" {
			o.BaseEndpoint = aws.String(conf.Endpoint)
			o.UsePathStyle = true
		}
	})
	storage = &S3Storage{
		Client: client,
		Bucket: conf.Bucket,
		Prefix: conf.Prefix,
	}
	return
}

func (storage *S3Storage) key(address string) (key string, err error) {
	err = ValidateAddress(address)
	if err != nil {
		err = errors.Wrapf(err, "address %+q", address)
		return
	}
	key = storage.Prefix + address
	return
}

func (storage *S3Storage) Size(ctx context.Context, address string) (size int64, err error) {
	key, err := storage.key(address)
	if err != nil {
		return
	}
	out, err := storage.Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(storage.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		err = mapS3Error(err, address)
		return
	}
	size = aws.ToInt64(out.ContentLength)
	return
}

func (storage *S3Storage) OpenRead(ctx context.Context, address string, span *utils.Span) (rc io.ReadCloser, err error) {
	key, err := storage.key(address)
	if err != nil {
		return
	}
	input := &s3.GetObjectInput{
		Bucket: aws.String(storage.Bucket),
		Key:    aws.String(key),
	}
	if span != nil {
		if span.Length == 0 {
			rc = io.NopCloser(bytes.NewReader(nil))
			return
		}
		input.Range = aws.String(fmt.Sprintf("bytes=%d-%d", span.Offset, span.Offset+span.Length-1))
	}
	out, err := storage.Client.GetObject(ctx, input)
	if err != nil {
		err = mapS3Error(err, address)
		return
	}
	rc = out.Body
	if span != nil {
		// the object already starts at span.Offset, only the length is enforced
		rc = utils.NewRangeReader(rc, utils.Span{Offset: 0, Length: span.Length})
	}
	return
}

func (storage *S3Storage) Write(ctx context.Context, r io.Reader, maxSize int64) (exists bool, address string, size int64, err error) {
	buf := &bytes.Buffer{}
	size, err = copyLimited(ctx, buf, r, maxSize)
	if err != nil {
		err = errors.Wrap(err, "read chunk data stream")
		return
	}
	address = Address(buf.Bytes())

	exists, err = storage.Check(ctx, address)
	if err != nil || exists {
		return
	}

	key, err := storage.key(address)
	if err != nil {
		return
	}
	_, err = storage.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(storage.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(buf.Bytes()),
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		err = errors.Wrapf(err, "put object %+q", key)
		return
	}
	return
}

func (storage *S3Storage) Check(ctx context.Context, address string) (exists bool, err error) {
	_, err = storage.Size(ctx, address)
	if errors.Is(err, ErrChunkNotFound) {
		err = nil
		return
	}
	exists = err == nil
	return
}

func mapS3Error(err error, address string) error {
	var notFound *s3types.NotFound
	var noSuchKey *s3types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
		return errors.Wrapf(ErrChunkNotFound, "address %s", address)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFound" {
		return errors.Wrapf(ErrChunkNotFound, "address %s", address)
	}
	return errors.Wrapf(err, "s3 request for address %s", address)
}
