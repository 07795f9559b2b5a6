package report

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/kushal45/reviewgraph/internal/types"
)

// Sink stores rendered report artifacts under a run id.
type Sink interface {
	// Put stores content as name within runID and returns its location.
	Put(ctx context.Context, runID, name string, content []byte) (string, error)
}

// Write renders r in every format and stores each artifact as
// "report.<ext>". It returns the artifact locations keyed by format name.
func Write(ctx context.Context, sink Sink, r *types.Report, formatters ...Formatter) (map[string]string, error) {
	locations := make(map[string]string, len(formatters))
	for _, f := range formatters {
		var buf bytes.Buffer
		if err := f.Format(&buf, r); err != nil {
			return locations, fmt.Errorf("render %s: %w", f.Name(), err)
		}
		loc, err := sink.Put(ctx, r.RunID, "report."+f.Extension(), buf.Bytes())
		if err != nil {
			return locations, fmt.Errorf("store %s report: %w", f.Name(), err)
		}
		locations[f.Name()] = loc
	}
	return locations, nil
}

func objectKey(runID, name string) (string, error) {
	runID = strings.TrimSpace(runID)
	name = strings.TrimSpace(name)
	if runID == "" {
		return "", fmt.Errorf("run_id is required")
	}
	if name == "" {
		return "", fmt.Errorf("artifact name is required")
	}
	key := path.Join(runID, name)
	if !filepath.IsLocal(filepath.FromSlash(key)) || strings.Contains(runID, "/") {
		return "", fmt.Errorf("invalid artifact key %q", key)
	}
	return key, nil
}

// LocalSink writes artifacts to <Dir>/<run-id>/<name>.
type LocalSink struct {
	Dir string
}

func (s *LocalSink) Put(_ context.Context, runID, name string, content []byte) (string, error) {
	key, err := objectKey(runID, name)
	if err != nil {
		return "", err
	}
	full := filepath.Join(s.Dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create report directory: %w", err)
	}
	if err := os.WriteFile(full, content, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", full, err)
	}
	return full, nil
}

// S3Config locates an S3-compatible bucket.
type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// S3Sink uploads artifacts to an S3-compatible object store with the key
// "<run-id>/<name>". The bucket is created on first use.
type S3Sink struct {
	client     *minio.Client
	bucketName string
	region     string
	initOnce   sync.Once
	initErr    error
}

func NewS3Sink(cfg S3Config) (*S3Sink, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("s3 access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return &S3Sink{client: client, bucketName: bucket, region: region}, nil
}

func (s *S3Sink) ensureBucket(ctx context.Context) error {
	s.initOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucketName)
		if err != nil {
			s.initErr = err
			return
		}
		if exists {
			return
		}
		s.initErr = s.client.MakeBucket(ctx, s.bucketName, minio.MakeBucketOptions{Region: s.region})
	})
	return s.initErr
}

func (s *S3Sink) Put(ctx context.Context, runID, name string, content []byte) (string, error) {
	key, err := objectKey(runID, name)
	if err != nil {
		return "", err
	}
	if err := s.ensureBucket(ctx); err != nil {
		return "", fmt.Errorf("ensure bucket: %w", err)
	}
	_, err = s.client.PutObject(ctx, s.bucketName, key, bytes.NewReader(content), int64(len(content)), minio.PutObjectOptions{
		ContentType: contentType(name),
	})
	if err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	return "s3://" + s.bucketName + "/" + key, nil
}

func contentType(name string) string {
	switch path.Ext(name) {
	case ".json", ".sarif":
		return "application/json"
	case ".md":
		return "text/markdown; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}
