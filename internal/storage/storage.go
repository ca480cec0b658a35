// Package storage persists uploaded document bytes in an object store.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
)

var (
	ErrNotFound         = errors.New("object not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrTransient        = errors.New("transient storage failure")
)

// Storage writes and reads whole objects. Put returns only after the write is durable.
type Storage interface {
	Put(ctx context.Context, name, contentType string, data []byte) (uri string, err error)
	Get(ctx context.Context, uri string) ([]byte, error)
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ObjectName builds the staging object name for an uploaded document.
func ObjectName(docID, filename string) string {
	base := path.Base(strings.ReplaceAll(filename, `\`, "/"))
	base = unsafeName.ReplaceAllString(base, "_")
	base = strings.Trim(base, "._")
	if base == "" {
		base = "document.pdf"
	}
	return fmt.Sprintf("uploads/%s_%s", docID, base)
}

// New returns the backend for a STAGING_BUCKET value (gs://bucket or file:///dir).
func New(ctx context.Context, bucketURL string, gcsOpts GCSOptions) (Storage, error) {
	switch {
	case strings.HasPrefix(bucketURL, "gs://"):
		return NewGCS(ctx, strings.TrimPrefix(bucketURL, "gs://"), gcsOpts)
	case strings.HasPrefix(bucketURL, "file://"):
		return NewLocal(strings.TrimPrefix(bucketURL, "file://"))
	default:
		return nil, fmt.Errorf("unsupported staging bucket %q", bucketURL)
	}
}
