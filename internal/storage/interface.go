package storage

import (
	"context"
	"io"
)

// ObjectStorage defines the interface for artifact archive operations
type ObjectStorage interface {
	// Upload uploads an object to storage
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Download downloads an object from storage
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// GetURL returns the URL for accessing an object
	GetURL(key string) string

	// Exists checks if an object exists
	Exists(ctx context.Context, key string) (bool, error)
}

// VideoKey builds the archive key for a reassembled or ingested video.
// Parameters:
//   - kind: corpus population name ("uploaded" or "crawled").
//   - videoID: corpus entry ID.
// Returns:
//   - string: object key under the artifacts prefix.
func VideoKey(kind, videoID string) string {
	return "artifacts/" + kind + "/" + videoID + ".mp4"
}
