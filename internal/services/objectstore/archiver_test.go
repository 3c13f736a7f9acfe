package objectstore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"

	"camtrap/internal/config"
	"camtrap/internal/events"
	"camtrap/internal/services"
	"camtrap/internal/services/objectstore"
)

type fakeUploader struct {
	exists      bool
	existsCalls int
	made        []string
	puts        []putCall
	putErr      error
}

type putCall struct {
	bucket string
	object string
	file   string
	opts   minio.PutObjectOptions
}

func (f *fakeUploader) BucketExists(_ context.Context, _ string) (bool, error) {
	f.existsCalls++
	return f.exists, nil
}

func (f *fakeUploader) MakeBucket(_ context.Context, bucket string, _ minio.MakeBucketOptions) error {
	f.made = append(f.made, bucket)
	f.exists = true
	return nil
}

func (f *fakeUploader) FPutObject(_ context.Context, bucket, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.putErr != nil {
		return minio.UploadInfo{}, f.putErr
	}
	f.puts = append(f.puts, putCall{bucket: bucket, object: object, file: filePath, opts: opts})
	return minio.UploadInfo{Bucket: bucket, Key: object, Size: 42}, nil
}

func TestArchiverUploadsCaptureUnderDatedKey(t *testing.T) {
	up := &fakeUploader{}
	archiver := objectstore.NewWithClient(up, "camtrap", "/trail-cam/", nil)

	at := time.Date(2024, 6, 3, 14, 5, 0, 0, time.UTC)
	ev := events.Event{Kind: events.CaptureSaved, CommandID: "cmd-1", Path: "/photos/IMG_0042.JPG", At: at}
	if err := archiver.Handle(context.Background(), ev); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if len(up.made) != 1 || up.made[0] != "camtrap" {
		t.Fatalf("expected bucket to be created once, got %v", up.made)
	}
	if len(up.puts) != 1 {
		t.Fatalf("expected one upload, got %d", len(up.puts))
	}
	put := up.puts[0]
	if put.object != "trail-cam/2024/06/03/IMG_0042.JPG" {
		t.Fatalf("unexpected object key %q", put.object)
	}
	if put.file != "/photos/IMG_0042.JPG" {
		t.Fatalf("unexpected source file %q", put.file)
	}
	if put.opts.ContentType != "image/jpeg" {
		t.Fatalf("unexpected content type %q", put.opts.ContentType)
	}
	if put.opts.UserMetadata["command-id"] != "cmd-1" {
		t.Fatalf("expected command id metadata, got %v", put.opts.UserMetadata)
	}
}

func TestArchiverChecksBucketOnce(t *testing.T) {
	up := &fakeUploader{exists: true}
	archiver := objectstore.NewWithClient(up, "camtrap", "", nil)
	for range 3 {
		ev := events.Event{Kind: events.CaptureSaved, Path: "/photos/a.jpg", At: time.Now()}
		if err := archiver.Handle(context.Background(), ev); err != nil {
			t.Fatalf("Handle: %v", err)
		}
	}
	if up.existsCalls != 1 {
		t.Fatalf("expected one bucket check, got %d", up.existsCalls)
	}
	if len(up.made) != 0 {
		t.Fatalf("expected existing bucket to be reused, got %v", up.made)
	}
	if len(up.puts) != 3 {
		t.Fatalf("expected three uploads, got %d", len(up.puts))
	}
}

func TestArchiverIgnoresOtherEvents(t *testing.T) {
	up := &fakeUploader{}
	archiver := objectstore.NewWithClient(up, "camtrap", "", nil)
	for _, ev := range []events.Event{
		{Kind: events.DeviceFault, Error: "boom"},
		{Kind: events.DeviceRecovered},
		{Kind: events.CaptureSaved},
	} {
		if err := archiver.Handle(context.Background(), ev); err != nil {
			t.Fatalf("Handle(%s): %v", ev.Kind, err)
		}
	}
	if up.existsCalls != 0 || len(up.puts) != 0 {
		t.Fatalf("expected no storage calls, got exists=%d puts=%d", up.existsCalls, len(up.puts))
	}
}

func TestArchiverReportsUploadErrors(t *testing.T) {
	up := &fakeUploader{exists: true, putErr: errors.New("access denied")}
	archiver := objectstore.NewWithClient(up, "camtrap", "", nil)
	err := archiver.Handle(context.Background(), events.Event{Kind: events.CaptureSaved, Path: "/p/x.jpg"})
	if err == nil {
		t.Fatal("expected upload error")
	}
}

func TestNewRequiresEndpoint(t *testing.T) {
	_, err := objectstore.New(config.Archive{Bucket: "camtrap"}, nil)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
