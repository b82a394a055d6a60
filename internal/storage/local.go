package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/yourorg/coinscope/internal/config"
)

// LocalStorage writes exports below a base directory
type LocalStorage struct {
	basePath    string
	permissions os.FileMode
}

// NewLocalStorage creates a new LocalStorage
func NewLocalStorage(cfg config.LocalStorageConfig) (*LocalStorage, error) {
	if err := os.MkdirAll(cfg.BasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	perms, err := strconv.ParseUint(cfg.Permissions, 8, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid permissions format: %w", err)
	}

	return &LocalStorage{
		basePath:    cfg.BasePath,
		permissions: os.FileMode(perms),
	}, nil
}

// Store writes body to basePath/key and returns the file path
func (s *LocalStorage) Store(ctx context.Context, key, _ string, body io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	filePath := filepath.Join(s.basePath, filepath.FromSlash(key))
	rel, err := filepath.Rel(s.basePath, filePath)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", errors.New("invalid storage key: " + key)
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	dst, err := os.Create(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to create destination file: %w", err)
	}

	if _, err := io.Copy(dst, body); err != nil {
		dst.Close()
		return "", fmt.Errorf("failed to write file content: %w", err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("failed to close file: %w", err)
	}

	if err := os.Chmod(filePath, s.permissions); err != nil {
		return "", fmt.Errorf("failed to set file permissions: %w", err)
	}

	return filePath, nil
}
