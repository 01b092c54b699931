package hosts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/mattjoyce/uploader/internal/adapter"
	"github.com/mattjoyce/uploader/internal/config"
	"github.com/mattjoyce/uploader/internal/fault"
	"github.com/mattjoyce/uploader/internal/log"
	"github.com/mattjoyce/uploader/internal/media"
	"github.com/mattjoyce/uploader/internal/protocol"
)

// S3 stores files in an S3-compatible bucket.
type S3 struct {
	client *minio.Client
	cfg    config.S3Config
	logger *slog.Logger
}

// NewS3 connects the s3 target. With CreateBucket set a missing bucket is
// created here.
func NewS3(ctx context.Context, cfg config.S3Config) (*S3, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize minio client: %w", err)
	}

	s := &S3{client: client, cfg: cfg, logger: log.WithTarget("s3")}
	if cfg.CreateBucket {
		exists, err := client.BucketExists(ctx, cfg.Bucket)
		if err != nil {
			return nil, fmt.Errorf("failed to check if bucket exists: %w", err)
		}
		if !exists {
			if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
				return nil, fmt.Errorf("failed to create bucket: %w", err)
			}
			s.logger.Info("bucket created", "bucket", cfg.Bucket)
		}
	}
	return s, nil
}

func (s *S3) Name() string { return "s3" }

// Upload puts the file under <prefix>/<gallery_id>/<uuid>-<name>.
func (s *S3) Upload(ctx context.Context, filePath string, job *protocol.Job) (*adapter.Result, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fault.Wrap(fault.ErrPermanent, "open file", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fault.Wrap(fault.ErrPermanent, "stat file", err)
	}

	key := s.objectKey(job.ConfigValue("gallery_id"), filepath.Base(filePath))
	opts := minio.PutObjectOptions{ContentType: media.ContentType(filePath)}
	if fn := adapter.ProgressFrom(ctx); fn != nil {
		opts.Progress = &progressSink{total: info.Size(), fn: fn}
	}

	up, err := s.client.PutObject(ctx, s.cfg.Bucket, key, f, info.Size(), opts)
	if err != nil {
		return nil, classifyS3(err)
	}

	u := s.objectURL(key)
	return &adapter.Result{
		URL:   u,
		Thumb: u,
		Extra: map[string]any{"bucket": up.Bucket, "key": up.Key, "etag": up.ETag},
	}, nil
}

// Verify checks that the configured bucket is reachable with the
// configured keys. Host-supplied creds are not used.
func (s *S3) Verify(ctx context.Context, _ map[string]string) error {
	exists, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return classifyS3(err)
	}
	if !exists {
		return fault.Permanentf("bucket %q does not exist", s.cfg.Bucket)
	}
	return nil
}

// CreateGallery allocates a key prefix. Nothing is written until the first
// upload carries it as gallery_id.
func (s *S3) CreateGallery(_ context.Context, name string, _ *protocol.Job) (*adapter.Gallery, error) {
	id := uuid.NewString()
	return &adapter.Gallery{
		ID:    id,
		Name:  name,
		Extra: map[string]string{"prefix": s.objectKey(id, "")},
	}, nil
}

func (s *S3) objectKey(gallery, name string) string {
	parts := []string{strings.Trim(s.cfg.Prefix, "/")}
	if gallery != "" {
		parts = append(parts, gallery)
	}
	if name != "" {
		parts = append(parts, uuid.NewString()+"-"+name)
	}
	return strings.TrimPrefix(path.Join(parts...), "/")
}

func (s *S3) objectURL(key string) string {
	escaped := (&url.URL{Path: key}).EscapedPath()
	if base := strings.TrimRight(s.cfg.PublicBaseURL, "/"); base != "" {
		return base + "/" + escaped
	}
	scheme := "http"
	if s.cfg.UseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, s.cfg.Endpoint, s.cfg.Bucket, escaped)
}

// classifyS3 turns minio error responses into StatusErrors so retry can
// tell throttling from bad requests.
func classifyS3(err error) error {
	if err == nil {
		return nil
	}
	var resp minio.ErrorResponse
	if errors.As(err, &resp) && resp.StatusCode != 0 {
		msg := resp.Code
		if resp.Message != "" {
			msg += ": " + resp.Message
		}
		return fmt.Errorf("s3: %w", &fault.StatusError{Code: resp.StatusCode, Body: msg})
	}
	return fmt.Errorf("s3: %w", err)
}

// progressSink receives minio's progress reads; the slice length is the
// number of bytes just sent.
type progressSink struct {
	sent  int64
	total int64
	fn    adapter.ProgressFunc
}

func (p *progressSink) Read(b []byte) (int, error) {
	p.sent += int64(len(b))
	p.fn(p.sent, p.total)
	return len(b), nil
}
