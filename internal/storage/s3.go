package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// ObjectAPI is the part of the S3 client the exporter uses.
type ObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type S3 struct {
	Client        ObjectAPI
	Bucket        string
	Prefix        string
	PublicBaseURL string
	now           func() time.Time
}

type S3Config struct {
	Region        string
	Bucket        string
	Prefix        string
	PublicBaseURL string
}

func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, err
	}
	return &S3{
		Client:        s3.NewFromConfig(awsCfg),
		Bucket:        cfg.Bucket,
		Prefix:        cfg.Prefix,
		PublicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
	}, nil
}

// Put stores the file under prefix/YYYY-MM-DD/<short id>-<name>.
func (s *S3) Put(ctx context.Context, r io.Reader, in PutInput) (PutResult, error) {
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	key := fmt.Sprintf("%s/%s-%s", now().UTC().Format("2006-01-02"), uuid.NewString()[:8], safeName(in.Filename))
	if p := strings.Trim(s.Prefix, "/"); p != "" {
		key = p + "/" + key
	}

	put := &s3.PutObjectInput{
		Bucket: &s.Bucket,
		Key:    &key,
		Body:   r,
	}
	if in.ContentType != "" {
		put.ContentType = &in.ContentType
	}
	if in.Size > 0 {
		put.ContentLength = &in.Size
	}
	if _, err := s.Client.PutObject(ctx, put); err != nil {
		return PutResult{}, err
	}

	loc := "s3://" + s.Bucket + "/" + key
	if s.PublicBaseURL != "" {
		loc = s.PublicBaseURL + "/" + key
	}
	return PutResult{Key: key, Location: loc}, nil
}

func (s *S3) Delete(ctx context.Context, key string) error {
	_, err := s.Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &s.Bucket,
		Key:    &key,
	})
	return err
}

func (s *S3) String() string { return fmt.Sprintf("s3(%s/%s)", s.Bucket, s.Prefix) }
