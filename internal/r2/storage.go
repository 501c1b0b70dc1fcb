package r2

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	conf "github.com/dinver-app/dinver-media/internal/config"
	"github.com/dinver-app/dinver-media/internal/entities"
)

// S3 is a thin retryable gateway over R2. It owns no business logic; key
// naming and atomicity decisions live with the callers.
type S3 struct {
	AccountID          string
	Bucket             string
	Region             string // usually "auto" for R2
	AwsAccessKeyId     string
	AwsSecretAccessKey string

	MaxRetries     int
	RetryBaseDelay time.Duration

	S3Client *s3.Client
	Uploader *manager.Uploader
}

func NewStorage(cfg *conf.R2Config) (*S3, error) {
	r2c := &S3{
		AccountID:          cfg.AccountID,
		Bucket:             cfg.BucketName,
		Region:             "auto",
		AwsAccessKeyId:     cfg.AccessKeyID,
		AwsSecretAccessKey: cfg.SecretKey,
		MaxRetries:         3,
		RetryBaseDelay:     300 * time.Millisecond,
	}
	if err := r2c.Run(); err != nil {
		return nil, err
	}
	return r2c, nil
}

func (s *S3) Run() error {
	cfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.AwsAccessKeyId, s.AwsSecretAccessKey, "",
		)),
		config.WithRegion(s.Region),
	)
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}

	s.S3Client = s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", s.AccountID))
		o.UsePathStyle = true
	})
	s.Uploader = manager.NewUploader(s.S3Client)

	log.Println("[r2] client initialized")
	return nil
}

// Put stores payload under key, retrying transient failures with
// exponential backoff before giving up with ErrStorage.
func (s *S3) Put(ctx context.Context, key, contentType string, payload []byte) error {
	var err error
	for attempt := 1; ; attempt++ {
		_, err = s.Uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.Bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(payload),
			ContentType: aws.String(contentType),
		})
		if err == nil {
			return nil
		}
		if attempt > s.MaxRetries || ctx.Err() != nil {
			break
		}

		timer := time.NewTimer(s.backoffDelay(attempt))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: put %q: %v", entities.ErrStorage, key, ctx.Err())
		}
	}
	return fmt.Errorf("%w: put %q: %v", entities.ErrStorage, key, err)
}

// backoff with jitter
func (s *S3) backoffDelay(attempt int) time.Duration {
	delay := s.RetryBaseDelay << (attempt - 1)
	jitter := delay / 10
	if jitter <= 0 {
		return delay
	}
	return delay - jitter/2 + time.Duration(time.Now().UnixNano())%jitter
}

// Get downloads the object and its content type.
func (s *S3) Get(ctx context.Context, key string) ([]byte, string, error) {
	out, err := s.S3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, "", fmt.Errorf("%w: get %q: %v", entities.ErrStorage, key, err)
	}
	defer out.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(out.Body); err != nil {
		return nil, "", fmt.Errorf("%w: read body for %q: %v", entities.ErrStorage, key, err)
	}

	contentType := ""
	if out.ContentType != nil {
		contentType = *out.ContentType
	}
	return buf.Bytes(), contentType, nil
}

// Delete removes one object.
func (s *S3) Delete(ctx context.Context, key string) error {
	_, err := s.S3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("%w: delete %q: %v", entities.ErrStorage, key, err)
	}
	return nil
}

// List returns one page of keys under prefix plus a continuation token,
// "" when the listing is exhausted.
func (s *S3) List(ctx context.Context, prefix, token string) ([]string, string, error) {
	in := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.Bucket),
		Prefix: aws.String(prefix),
	}
	if token != "" {
		in.ContinuationToken = aws.String(token)
	}

	out, err := s.S3Client.ListObjectsV2(ctx, in)
	if err != nil {
		return nil, "", fmt.Errorf("%w: list %q: %v", entities.ErrStorage, prefix, err)
	}

	keys := make([]string, 0, len(out.Contents))
	for _, obj := range out.Contents {
		if obj.Key != nil {
			keys = append(keys, *obj.Key)
		}
	}

	next := ""
	if out.NextContinuationToken != nil {
		next = *out.NextContinuationToken
	}
	return keys, next, nil
}
