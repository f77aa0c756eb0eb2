package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

// SharedDiskStore keeps blobs on a local or mounted filesystem. It is used
// for local development and tests; presigned urls degrade to plain file urls
// since there is no signing authority.
type SharedDiskStore struct {
	basepath string
}

func NewSharedDisk(basepath string) *SharedDiskStore {
	slog.Info("creating new shared disk object store", "basepath", basepath)
	return &SharedDiskStore{basepath: basepath}
}

func (s *SharedDiskStore) fullpath(key string) string {
	return filepath.Join(s.basepath, key)
}

func (s *SharedDiskStore) Put(ctx context.Context, key string, data io.Reader, size int64, contentType string) error {
	fullpath := s.fullpath(key)

	err := os.MkdirAll(filepath.Dir(fullpath), 0777)
	if err != nil {
		slog.Error("error creating parent directory", "path", fullpath, "error", err)
		return fmt.Errorf("error creating parent directory %v: %v", key, err)
	}

	file, err := os.OpenFile(fullpath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
	if err != nil {
		slog.Error("error opening file for writing", "path", fullpath, "error", err)
		return fmt.Errorf("error opening file %v: %v", key, err)
	}
	defer file.Close()

	_, err = io.Copy(file, data)
	if err != nil {
		slog.Error("error writing to file", "path", fullpath, "error", err)
		return fmt.Errorf("error writing to file %v: %v", key, err)
	}

	return nil
}

func (s *SharedDiskStore) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	fullpath := s.fullpath(key)
	if _, err := os.Stat(fullpath); err != nil {
		slog.Error("error getting stats for file", "path", fullpath, "error", err)
		return "", fmt.Errorf("error getting stats for file %v: %w", key, err)
	}
	return (&url.URL{Scheme: "file", Path: fullpath}).String(), nil
}

func (s *SharedDiskStore) Delete(ctx context.Context, key string) error {
	fullpath := s.fullpath(key)
	err := os.Remove(fullpath)
	if err != nil && !os.IsNotExist(err) {
		slog.Error("error deleting file", "path", fullpath, "error", err)
		return fmt.Errorf("error deleting file %v: %v", key, err)
	}
	return nil
}

func (s *SharedDiskStore) Usage() (UsageStats, error) {
	var stat unix.Statfs_t

	err := unix.Statfs(s.basepath, &stat)
	if err != nil {
		slog.Error("error getting disk usage for shared storage", "path", s.basepath, "error", err)
		return UsageStats{}, fmt.Errorf("error getting disk usage stats: %w", err)
	}

	return UsageStats{
		TotalBytes: stat.Blocks * uint64(stat.Bsize),
		FreeBytes:  stat.Bfree * uint64(stat.Bsize),
	}, nil
}
