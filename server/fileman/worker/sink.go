package worker

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
)

// Sink persists one rendered thumbnail. Writing the same path twice replaces
// the previous content.
type Sink interface {
	Write(ctx context.Context, path string, data []byte) error
}

type FileSink struct{}

// Write goes through a temp file and rename so readers never observe a
// half-written thumbnail.
func (FileSink) Write(_ context.Context, path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

// ObjectSink uploads thumbnails to a bucket. Keys are the thumbnail path made
// relative to Root, under Prefix.
type ObjectSink struct {
	Client *minio.Client
	Bucket string
	Root   string
	Prefix string
}

func (s *ObjectSink) Write(ctx context.Context, path string, data []byte) error {
	key := objectKey(s.Prefix, s.Root, path)
	reader := bytes.NewReader(data)
	_, err := s.Client.PutObject(ctx, s.Bucket, key, reader, int64(reader.Len()), minio.PutObjectOptions{
		ContentType: http.DetectContentType(data),
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

func objectKey(prefix, root, path string) string {
	cleaned := filepath.ToSlash(filepath.Clean(path))
	if root != "" {
		if rel, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(rel, "..") {
			cleaned = filepath.ToSlash(rel)
		}
	}
	cleaned = strings.TrimPrefix(cleaned, "/")
	normalizedPrefix := strings.Trim(strings.TrimSpace(prefix), "/")
	if normalizedPrefix == "" {
		return cleaned
	}
	return normalizedPrefix + "/" + cleaned
}

// MirrorSink writes to Primary and then copies to Mirror. Either failure
// fails the write.
type MirrorSink struct {
	Primary Sink
	Mirror  Sink
}

func (s MirrorSink) Write(ctx context.Context, path string, data []byte) error {
	if err := s.Primary.Write(ctx, path, data); err != nil {
		return err
	}
	if err := s.Mirror.Write(ctx, path, data); err != nil {
		return fmt.Errorf("mirror thumbnail: %w", err)
	}
	return nil
}
