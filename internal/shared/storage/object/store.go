package object

import (
	"context"
	"io"
)

// Store defines the contract for saving and retrieving uploaded documents.
// Path resolves a storage key to a local filesystem path for pipelines
// that read the stored file directly.
type Store interface {
	Save(ctx context.Context, fileName string, r io.Reader) (storageKey string, sizeBytes int64, mimeType string, err error)
	Open(ctx context.Context, storageKey string) (io.ReadCloser, error)
	Path(storageKey string) (string, error)
}
