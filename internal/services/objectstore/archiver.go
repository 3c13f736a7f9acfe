package objectstore

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"camtrap/internal/config"
	"camtrap/internal/events"
	"camtrap/internal/logging"
	"camtrap/internal/services"
)

// Uploader is the subset of the MinIO client the archiver needs.
type Uploader interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	FPutObject(ctx context.Context, bucket, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Archiver uploads saved photos under prefix/YYYY/MM/DD/.
type Archiver struct {
	client Uploader
	bucket string
	prefix string
	logger *slog.Logger

	mu          sync.Mutex
	bucketReady bool
}

// New connects to the configured endpoint.
func New(cfg config.Archive, logger *slog.Logger) (*Archiver, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, services.Wrap(services.ErrConfiguration, "archive", "connect", "endpoint is required", nil)
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "archive", "connect", "create minio client", err)
	}
	return NewWithClient(client, cfg.Bucket, cfg.Prefix, logger), nil
}

// NewWithClient builds an archiver around an existing uploader.
func NewWithClient(client Uploader, bucket, prefix string, logger *slog.Logger) *Archiver {
	return &Archiver{
		client: client,
		bucket: strings.TrimSpace(bucket),
		prefix: strings.Trim(strings.TrimSpace(prefix), "/"),
		logger: logging.NewComponentLogger(logger, "archive"),
	}
}

func (a *Archiver) Name() string { return "archive" }

// Handle uploads the photo referenced by a CaptureSaved event.
func (a *Archiver) Handle(ctx context.Context, ev events.Event) error {
	if ev.Kind != events.CaptureSaved || strings.TrimSpace(ev.Path) == "" {
		return nil
	}
	key := a.ObjectKey(ev.Path, ev.At)
	if err := a.ensureBucket(ctx); err != nil {
		return err
	}
	info, err := a.client.FPutObject(ctx, a.bucket, key, ev.Path, minio.PutObjectOptions{
		ContentType: contentType(ev.Path),
		UserMetadata: map[string]string{
			"command-id": ev.CommandID,
		},
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	a.logger.Info("photo archived",
		logging.String(logging.FieldEventType, "photo_archived"),
		logging.String("bucket", a.bucket),
		logging.String("object", key),
		logging.Int64("size", info.Size),
	)
	return nil
}

// ObjectKey returns the storage key for a local photo taken at the given time.
func (a *Archiver) ObjectKey(localPath string, at time.Time) string {
	if at.IsZero() {
		at = time.Now()
	}
	parts := []string{at.Format("2006"), at.Format("01"), at.Format("02"), filepath.Base(localPath)}
	if a.prefix != "" {
		parts = append([]string{a.prefix}, parts...)
	}
	return path.Join(parts...)
}

func (a *Archiver) ensureBucket(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.bucketReady {
		return nil
	}
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", a.bucket, err)
	}
	if !exists {
		if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", a.bucket, err)
		}
		a.logger.Info("archive bucket created", logging.String("bucket", a.bucket))
	}
	a.bucketReady = true
	return nil
}

func contentType(p string) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(p))); t != "" {
		return t
	}
	return "application/octet-stream"
}
