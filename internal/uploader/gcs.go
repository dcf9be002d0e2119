package uploader

import (
	"context"
	"io"
	"os"
	"strings"

	cfg "armalloc/internal/config"
	"armalloc/internal/util"

	"cloud.google.com/go/storage"
	"github.com/pkg/errors"
	"google.golang.org/api/option"
)

// GCSUploader uploads run directories to Google Cloud Storage.
type GCSUploader struct {
	cfg    cfg.GCSConfig
	client *storage.Client
}

// NewGCS constructs an uploader from GCS configuration.
func NewGCS(cfg cfg.GCSConfig) (*GCSUploader, error) {
	if !cfg.Enabled {
		return &GCSUploader{cfg: cfg}, nil
	}
	opts := []option.ClientOption{}
	if strings.TrimSpace(cfg.CredentialsFile) != "" {
		opts = append(opts, option.WithCredentialsFile(strings.TrimSpace(cfg.CredentialsFile)))
	}
	client, err := storage.NewClient(context.Background(), opts...)
	if err != nil {
		return nil, errors.Wrap(err, "gcs client")
	}
	return &GCSUploader{cfg: cfg, client: client}, nil
}

// Enabled reports whether GCS uploads are configured.
func (u *GCSUploader) Enabled() bool {
	return u.cfg.Enabled
}

// UploadDir uploads a run directory and returns its GCS URL prefix.
func (u *GCSUploader) UploadDir(ctx context.Context, dir string) (string, error) {
	if !u.cfg.Enabled {
		return "", nil
	}
	if u.client == nil {
		return "", errors.New("gcs uploader is not initialized")
	}
	if err := uploadFiles(ctx, dir, objectPrefix(u.cfg.Prefix, dir), u.putFile); err != nil {
		return "", err
	}
	return u.Location(dir), nil
}

// Location returns the URL prefix UploadDir writes dir to.
func (u *GCSUploader) Location(dir string) string {
	if !u.cfg.Enabled {
		return ""
	}
	return "gs://" + u.cfg.Bucket + "/" + objectPrefix(u.cfg.Prefix, dir)
}

// Close releases the storage client.
func (u *GCSUploader) Close() error {
	if u.client == nil {
		return nil
	}
	return u.client.Close()
}

func (u *GCSUploader) putFile(ctx context.Context, path, key string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer util.CloseWithErr(file, "gcs upload file")

	writer := u.client.Bucket(u.cfg.Bucket).Object(key).NewWriter(ctx)
	if _, err := io.Copy(writer, file); err != nil {
		_ = writer.Close()
		return err
	}
	return writer.Close()
}
