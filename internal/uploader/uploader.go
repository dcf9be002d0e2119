// Package uploader ships run directories to object storage.
package uploader

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	cfg "armalloc/internal/config"

	"github.com/pkg/errors"
)

// Uploader copies a run directory to remote storage.
type Uploader interface {
	Enabled() bool
	// Location is known before the upload runs.
	Location(dir string) string
	UploadDir(ctx context.Context, dir string) (string, error)
}

// NoopUploader is used when no backend is configured.
type NoopUploader struct{}

// Enabled implements Uploader.
func (n NoopUploader) Enabled() bool {
	return false
}

// Location implements Uploader.
func (n NoopUploader) Location(dir string) string {
	return ""
}

// UploadDir implements Uploader.
func (n NoopUploader) UploadDir(ctx context.Context, dir string) (string, error) {
	return "", nil
}

// New returns the first enabled backend, GCS before S3.
func New(storage cfg.StorageConfig) (Uploader, error) {
	switch {
	case storage.GCS.Enabled:
		return NewGCS(storage.GCS)
	case storage.S3.Enabled:
		return NewS3(storage.S3)
	default:
		return NoopUploader{}, nil
	}
}

type putFunc func(ctx context.Context, path, key string) error

// objectPrefix returns "<prefix>/<base>/" with empty parts dropped.
func objectPrefix(prefix, dir string) string {
	base := filepath.Base(dir)
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return base + "/"
	}
	return prefix + "/" + base + "/"
}

// uploadFiles puts every regular file directly under dir. Subdirectories
// are skipped.
func uploadFiles(ctx context.Context, dir, keyPrefix string, put putFunc) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return errors.Wrap(err, "read run dir")
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		path := filepath.Join(dir, entry.Name())
		if err := put(ctx, path, keyPrefix+entry.Name()); err != nil {
			return errors.Wrapf(err, "upload %s", entry.Name())
		}
	}
	return nil
}
