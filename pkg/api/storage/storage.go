package storage

import (
	"context"
	"fmt"
	"mime"
	"path"
	"strings"

	"github.com/ethpandaops/perfstor/pkg/config"
	"github.com/sirupsen/logrus"
)

// Backend provides object access to a storage location (local filesystem
// or S3). Keys are slash separated and relative to the backend root.
type Backend interface {
	// Name identifies the backend ("local" or "s3").
	Name() string

	// Preflight verifies that the backend is reachable and writable by
	// writing a small marker object.
	Preflight(ctx context.Context) error

	// List returns all object keys under prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)

	// Get reads an object. Returns (nil, nil) when the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put writes an object, replacing any existing one.
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// preflightKey is the marker object written by Preflight.
const preflightKey = ".perfstor-write-test"

// New returns the single enabled backend from cfg.
func New(log logrus.FieldLogger, cfg *config.StorageConfig) (Backend, error) {
	switch {
	case cfg.S3.Enabled:
		return NewS3Backend(log, &cfg.S3), nil
	case cfg.Local.Enabled:
		return NewLocalBackend(log, &cfg.Local), nil
	default:
		return nil, fmt.Errorf("no storage backend configured")
	}
}

// JoinKey joins key segments with "/" and strips leading, trailing and
// duplicate separators.
func JoinKey(parts ...string) string {
	cleaned := make([]string, 0, len(parts))

	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p != "" {
			cleaned = append(cleaned, p)
		}
	}

	return path.Join(cleaned...)
}

// DetectContentType returns a MIME type based on the key extension.
func DetectContentType(key string) string {
	ext := path.Ext(key)
	if ext == "" {
		return "application/octet-stream"
	}

	ct := mime.TypeByExtension(ext)
	if ct == "" {
		return "application/octet-stream"
	}

	return ct
}
