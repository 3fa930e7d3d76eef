package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ethpandaops/perfstor/pkg/config"
	"github.com/sirupsen/logrus"
)

// Compile-time interface check.
var _ Backend = (*localBackend)(nil)

type localBackend struct {
	log  logrus.FieldLogger
	root string
}

// NewLocalBackend creates a Backend rooted at a local directory.
func NewLocalBackend(
	log logrus.FieldLogger,
	cfg *config.LocalStorageConfig,
) Backend {
	return &localBackend{
		log:  log.WithField("component", "storage-local"),
		root: cfg.Path,
	}
}

func (b *localBackend) Name() string {
	return "local"
}

// Preflight creates the root directory if needed and writes a marker file.
func (b *localBackend) Preflight(ctx context.Context) error {
	content := fmt.Sprintf("perfstor write test: %s", time.Now().UTC().Format(time.RFC3339))

	if err := b.Put(ctx, preflightKey, []byte(content), "text/plain"); err != nil {
		return fmt.Errorf("writing test file to %s: %w", b.root, err)
	}

	return nil
}

// List walks {root}/{prefix} and returns slash separated keys of regular
// files. A missing prefix directory yields no keys.
func (b *localBackend) List(_ context.Context, prefix string) ([]string, error) {
	dir, err := b.resolve(prefix)
	if err != nil {
		return nil, err
	}

	var keys []string

	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipDir
			}

			return err
		}

		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(b.root, p)
		if err != nil {
			return fmt.Errorf("computing relative path: %w", err)
		}

		keys = append(keys, filepath.ToSlash(rel))

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory %s: %w", dir, err)
	}

	sort.Strings(keys)

	return keys, nil
}

// Get reads {root}/{key}. Returns (nil, nil) when the file does not exist.
func (b *localBackend) Get(_ context.Context, key string) ([]byte, error) {
	p, err := b.resolve(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(p) //nolint:gosec // path is confined to root
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("reading file %s: %w", p, err)
	}

	return data, nil
}

// Put writes {root}/{key}, creating parent directories.
func (b *localBackend) Put(
	_ context.Context, key string, data []byte, _ string,
) error {
	p, err := b.resolve(key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", key, err)
	}

	if err := os.WriteFile(p, data, 0o644); err != nil { //nolint:gosec // world readable exports
		return fmt.Errorf("writing file %s: %w", p, err)
	}

	b.log.WithField("key", key).Debug("Wrote file")

	return nil
}

// resolve maps a key to a path under root, rejecting keys that escape it.
func (b *localBackend) resolve(key string) (string, error) {
	if path.IsAbs(key) || strings.Contains(key, "\\") {
		return "", fmt.Errorf("invalid key %q", key)
	}

	for _, seg := range strings.Split(key, "/") {
		if seg == ".." {
			return "", fmt.Errorf("invalid key %q", key)
		}
	}

	return filepath.Join(b.root, filepath.FromSlash(key)), nil
}
