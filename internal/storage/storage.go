package storage

import (
	"context"
	"io"

	"github.com/yourorg/coinscope/internal/config"
)

// Storage defines where history exports are written
type Storage interface {
	// Store saves body under key and returns where it can be found
	Store(ctx context.Context, key, contentType string, body io.Reader) (string, error)
}

// NewStorage creates a storage implementation based on the configuration
func NewStorage(cfg config.StorageConfig) (Storage, error) {
	switch cfg.Type {
	case "s3":
		return NewS3Storage(cfg.S3)
	default:
		return NewLocalStorage(cfg.Local)
	}
}
