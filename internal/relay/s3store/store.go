// Package s3store keeps canonical blobs in an S3-compatible bucket. The blob
// digest travels in the object's user metadata so PullHash needs only a HEAD.
package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/dmitrijs2005/clipsync/internal/cryptox"
	"github.com/dmitrijs2005/clipsync/internal/logging"
	"github.com/dmitrijs2005/clipsync/internal/relay"
)

const (
	keyPrefix       = "clipboards/"
	keySuffix       = ".blob"
	hashMetadataKey = "clipboard-hash"
	contentType     = "application/octet-stream"
)

// API is the part of *s3.Client the store uses.
type API interface {
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Config locates the bucket. Endpoint may point at MinIO or any other
// S3-compatible service.
type Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
}

var (
	loadDefaultAWSConfig  = awsconfig.LoadDefaultConfig
	newS3ClientFromConfig = s3.NewFromConfig
)

var _ relay.Coordinator = (*Store)(nil)

type Store struct {
	api    API
	bucket string
	cipher *cryptox.MessageCipher
	logger logging.Logger
}

// New builds an S3 client from cfg. Blobs are encrypted with cipher before
// they leave the process.
func New(ctx context.Context, cfg Config, cipher *cryptox.MessageCipher, l logging.Logger) (*Store, error) {
	awsCfg, err := loadDefaultAWSConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewWithAPI(client, cfg.Bucket, cipher, l), nil
}

func NewWithAPI(api API, bucket string, cipher *cryptox.MessageCipher, l logging.Logger) *Store {
	return &Store{api: api, bucket: bucket, cipher: cipher, logger: l.With("module", "s3store")}
}

// ObjectKey is where owner's blob lives in the bucket.
func ObjectKey(owner string) string {
	return keyPrefix + owner + keySuffix
}

// EnsureBucket creates the bucket when it does not exist yet.
func (s *Store) EnsureBucket(ctx context.Context) error {
	_, err := s.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return nil
	}
	if !isNotFound(err) {
		return fmt.Errorf("head bucket %s: %w", s.bucket, err)
	}

	if _, err := s.api.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	s.logger.Info(ctx, "created bucket", "bucket", s.bucket)
	return nil
}

func (s *Store) Push(ctx context.Context, owner string, data []byte, hash string) error {
	payload, err := s.cipher.Encrypt(data)
	if err != nil {
		return fmt.Errorf("encrypt blob of %s: %w", owner, err)
	}

	_, err = s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(ObjectKey(owner)),
		Body:          bytes.NewReader(payload),
		ContentLength: aws.Int64(int64(len(payload))),
		ContentType:   aws.String(contentType),
		Metadata:      map[string]string{hashMetadataKey: hash},
	})
	if err != nil {
		return fmt.Errorf("put blob of %s: %w", owner, err)
	}

	s.logger.Debug(ctx, "blob stored", "owner", owner, "bytes", len(data))
	return nil
}

func (s *Store) PullHash(ctx context.Context, owner string) (string, bool, error) {
	out, err := s.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ObjectKey(owner)),
	})
	if err != nil {
		if isNotFound(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("head blob of %s: %w", owner, err)
	}

	for k, v := range out.Metadata {
		if strings.EqualFold(k, hashMetadataKey) {
			return v, true, nil
		}
	}
	// an object without a digest still exists; an empty hash never matches
	return "", true, nil
}

func (s *Store) Pull(ctx context.Context, owner string) ([]byte, bool, error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ObjectKey(owner)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get blob of %s: %w", owner, err)
	}
	defer out.Body.Close()

	payload, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, false, fmt.Errorf("read blob of %s: %w", owner, err)
	}

	data, err := s.cipher.Decrypt(payload)
	if err != nil {
		return nil, false, fmt.Errorf("blob of %s: %w", owner, err)
	}
	return data, true, nil
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "NoSuchKey", "NotFound", "NoSuchBucket":
		return true
	}
	return false
}
