package storage

import (
	"context"
	"fmt"
	"io"
	"time"
)

// ObjectStore holds the image blobs attached to questions. Keys follow the
// convention questions/{userId}/{kind}-{timestamp}-{index}.jpg.
type ObjectStore interface {
	Put(ctx context.Context, key string, data io.Reader, size int64, contentType string) error
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
	Usage() (UsageStats, error)
}

type UsageStats struct {
	TotalBytes uint64 `json:"total_bytes"`
	FreeBytes  uint64 `json:"free_bytes"`
}

// ImageKey builds the canonical object key for a question image.
func ImageKey(userId fmt.Stringer, kind string, uploadedAt time.Time, index int) string {
	return fmt.Sprintf("questions/%v/%v-%v-%v.jpg", userId, kind, uploadedAt.UnixMilli(), index)
}
