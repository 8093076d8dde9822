package backfill

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// SnapshotRecord is the pre-migration state of one principal
type SnapshotRecord struct {
	PrincipalID string          `json:"principal_id"`
	Role        string          `json:"role"`
	Overrides   map[string]bool `json:"overrides"`
	TakenAt     time.Time       `json:"taken_at"`
}

// Snapshotter stores pre-migration state so a run can be rolled back by hand
type Snapshotter interface {
	// Save stores the record before the principal is rewritten
	Save(ctx context.Context, rec SnapshotRecord) error

	// Close flushes any buffered records
	Close(ctx context.Context) error
}

// FileSnapshotter appends records to a JSON lines file
type FileSnapshotter struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewFileSnapshotter opens (or creates) path for appending
func NewFileSnapshotter(path string) (*FileSnapshotter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot file: %w", err)
	}
	return &FileSnapshotter{file: f, enc: json.NewEncoder(f)}, nil
}

// Save appends one line
func (s *FileSnapshotter) Save(ctx context.Context, rec SnapshotRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(rec); err != nil {
		return fmt.Errorf("failed to write snapshot for %s: %w", rec.PrincipalID, err)
	}
	return nil
}

// Close syncs and closes the file
func (s *FileSnapshotter) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.file.Sync(); err != nil {
		s.file.Close()
		return fmt.Errorf("failed to sync snapshot file: %w", err)
	}
	return s.file.Close()
}

// objectPutter is the part of the S3 client used for snapshots
type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config configures the snapshot bucket
type S3Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// S3Snapshotter buffers records and uploads them as a single JSON lines object on Close
type S3Snapshotter struct {
	client objectPutter
	bucket string
	key    string

	mu  sync.Mutex
	buf bytes.Buffer
}

// NewS3Snapshotter creates an S3 client from cfg. Static credentials are used when both
// keys are set; otherwise the default AWS credential chain applies.
func NewS3Snapshotter(ctx context.Context, cfg S3Config) (*S3Snapshotter, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("snapshot bucket is required")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return newS3Snapshotter(client, cfg.Bucket, snapshotKey(cfg.Prefix, time.Now().UTC())), nil
}

func newS3Snapshotter(client objectPutter, bucket, key string) *S3Snapshotter {
	return &S3Snapshotter{client: client, bucket: bucket, key: key}
}

func snapshotKey(prefix string, at time.Time) string {
	name := fmt.Sprintf("backfill-%s.jsonl", at.Format("20060102T150405Z"))
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

// Key returns the object key written on Close
func (s *S3Snapshotter) Key() string {
	return s.key
}

// Save buffers one record
func (s *S3Snapshotter) Save(ctx context.Context, rec SnapshotRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := json.NewEncoder(&s.buf).Encode(rec); err != nil {
		return fmt.Errorf("failed to encode snapshot for %s: %w", rec.PrincipalID, err)
	}
	return nil
}

// Close uploads the buffered records. Nothing is uploaded when no record was saved.
func (s *S3Snapshotter) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buf.Len() == 0 {
		return nil
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key),
		Body:        bytes.NewReader(s.buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload snapshot to s3: %w", err)
	}
	return nil
}
