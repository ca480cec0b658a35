package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Local stores objects under a directory. Used for development and tests.
type Local struct {
	root string
}

func NewLocal(root string) (*Local, error) {
	if root == "" {
		return nil, errors.New("local storage: empty root directory")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("local storage: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("local storage: %w", classifyFS(err))
	}
	return &Local{root: abs}, nil
}

func (l *Local) Put(ctx context.Context, name, contentType string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dst, err := l.resolve(name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("write %s: %w", name, classifyFS(err))
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("write %s: %w", name, classifyFS(err))
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write %s: %w", name, classifyFS(err))
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("sync %s: %w", name, classifyFS(err))
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", name, classifyFS(err))
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("commit %s: %w", name, classifyFS(err))
	}
	return "file://" + filepath.ToSlash(dst), nil
}

func (l *Local) Get(ctx context.Context, uri string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, ok := strings.CutPrefix(uri, "file://")
	if !ok {
		return nil, fmt.Errorf("not a file:// uri: %q: %w", uri, ErrNotFound)
	}
	rel, err := filepath.Rel(l.root, filepath.FromSlash(p))
	if err != nil || strings.HasPrefix(rel, "..") {
		return nil, fmt.Errorf("uri %q is outside storage root: %w", uri, ErrPermissionDenied)
	}
	data, err := os.ReadFile(filepath.FromSlash(p))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", uri, classifyFS(err))
	}
	return data, nil
}

func (l *Local) resolve(name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if clean == "." || filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("invalid object name %q: %w", name, ErrPermissionDenied)
	}
	return filepath.Join(l.root, clean), nil
}

func classifyFS(err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	default:
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
}
