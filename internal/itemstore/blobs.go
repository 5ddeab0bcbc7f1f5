package itemstore

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// BlobBucket stores streamed work-item content on the filesystem, one file
// per correlation id. The id is validated before it ever reaches a path.
type BlobBucket struct {
	dir string
}

func NewBlobBucket(dir string) *BlobBucket {
	return &BlobBucket{dir: dir}
}

func (b *BlobBucket) path(correlationID string) string {
	return filepath.Join(b.dir, correlationID+".blob")
}

// Write streams content into the bucket and returns the byte count. An
// existing blob for the same id is replaced.
func (b *BlobBucket) Write(correlationID string, content io.Reader) (int64, error) {
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return 0, fmt.Errorf("create blob directory: %w", err)
	}
	target := b.path(correlationID)
	tmp := target + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("create blob: %w", err)
	}
	written, err := io.Copy(file, content)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("write blob: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("finalize blob: %w", err)
	}
	return written, nil
}

// Open returns a reader over the stored content. The caller closes it.
func (b *BlobBucket) Open(correlationID string) (io.ReadCloser, error) {
	file, err := os.Open(b.path(correlationID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fs.ErrNotExist
		}
		return nil, fmt.Errorf("open blob: %w", err)
	}
	return file, nil
}

// Remove deletes the stored content. A missing blob is not an error so item
// removal stays idempotent.
func (b *BlobBucket) Remove(correlationID string) error {
	if err := os.Remove(b.path(correlationID)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove blob: %w", err)
	}
	return nil
}

// Size reports the stored content length, or 0 when no blob exists.
func (b *BlobBucket) Size(correlationID string) (int64, error) {
	info, err := os.Stat(b.path(correlationID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("stat blob: %w", err)
	}
	return info.Size(), nil
}
