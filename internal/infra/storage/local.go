package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Dir stores artifacts as files below a root directory.
type Dir struct {
	root string
}

func NewDir(root string) (*Dir, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	return &Dir{root: abs}, nil
}

// Put implements report.ArtifactStore and returns a file:// URL.
func (d *Dir) Put(ctx context.Context, key string, data []byte, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path := filepath.Join(d.root, filepath.FromSlash(key))
	if !strings.HasPrefix(path, d.root+string(filepath.Separator)) {
		return "", fmt.Errorf("key %q escapes the artifact directory", key)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}

	// write then rename so readers never see a partial document
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return "", err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return "file://" + filepath.ToSlash(path), nil
}

// Check implements middleware.HealthChecker
func (d *Dir) Check(context.Context) error {
	_, err := os.Stat(d.root)
	return err
}
