package archive

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/bytedance/sonic"

	"github.com/algoviz-dev/algoviz/pkg/state"
)

// S3API is the slice of the S3 client the store needs. *s3.Client
// satisfies it; tests substitute a fake.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store writes replay logs to an S3 bucket.
//
// Example:
//
//	cfg, _ := config.LoadDefaultConfig(context.Background())
//	store := archive.NewS3Store(s3.NewFromConfig(cfg), "my-bucket", "replays/")
type S3Store struct {
	client S3API
	bucket string
	prefix string
}

// NewS3Store creates an S3Store. prefix may be empty.
func NewS3Store(client S3API, bucket, prefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: prefix}
}

// SaveReplay uploads the replay log as a single JSON object.
func (s *S3Store) SaveReplay(ctx context.Context, code string, replay []state.SessionState) error {
	if len(replay) == 0 {
		return ErrEmptyReplay
	}

	data, err := sonic.Marshal(replay)
	if err != nil {
		return fmt.Errorf("archive: marshal replay: %w", err)
	}

	key := fmt.Sprintf("%s%s-%d.json", s.prefix, code, time.Now().Unix())
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String("application/json"),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("archive: s3 put: %w", err)
	}
	return nil
}
