// Package local writes run reports to a directory on the local filesystem.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Config captures the parameters for the local filesystem blob store.
type Config struct {
	// BaseDir is the report directory (report.dir).
	BaseDir string `mapstructure:"dir" yaml:"dir"`
}

// BlobStore writes report files under a base directory. A report either
// appears complete under its final name or not at all.
type BlobStore struct {
	baseDir string
}

// New creates the report directory if needed.
func New(cfg Config) (*BlobStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	baseDir := filepath.Clean(cfg.BaseDir)
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("create report directory: %w", err)
	}
	info, err := os.Stat(baseDir)
	if err != nil {
		return nil, fmt.Errorf("stat report directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("report directory %s is not a directory", baseDir)
	}
	return &BlobStore{baseDir: baseDir}, nil
}

// PutObject streams data into a temporary file next to the target and renames
// it into place, returning a file:// URI.
func (s *BlobStore) PutObject(_ context.Context, path string, _ string, data io.Reader) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}
	target := filepath.Join(s.baseDir, path)
	if !strings.HasPrefix(target, s.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create report directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".*")
	if err != nil {
		return "", fmt.Errorf("create temp report: %w", err)
	}
	if err := writeAndClose(tmp, data); err != nil {
		return "", errors.Join(err, os.Remove(tmp.Name()))
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", errors.Join(fmt.Errorf("publish report: %w", err), os.Remove(tmp.Name()))
	}
	return "file://" + target, nil
}

func writeAndClose(f *os.File, data io.Reader) error {
	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		return fmt.Errorf("write report: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync report: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close report: %w", err)
	}
	return nil
}
