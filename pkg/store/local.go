package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const tempPrefix = ".tmp-"

// Local is a Backend storing one file per key under a root directory.
// Keys are path-escaped so that '/' never creates subdirectories.
type Local struct {
	rootPath string
}

// NewLocal creates the root directory if needed and returns a Local backend.
func NewLocal(rootPath string) (*Local, error) {
	if err := os.MkdirAll(rootPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", rootPath, err)
	}
	return &Local{rootPath: rootPath}, nil
}

func (s *Local) path(key string) string {
	return filepath.Join(s.rootPath, url.PathEscape(key))
}

// Put writes value atomically via temp file + rename.
func (s *Local) Put(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return fmt.Errorf("%w: put: empty key", ErrBackend)
	}

	tempFile, err := os.CreateTemp(s.rootPath, tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("%w: put %s: create temp file: %w", ErrBackend, key, err)
	}
	defer tempFile.Close()

	if _, err := tempFile.Write(value); err != nil {
		os.Remove(tempFile.Name())
		return fmt.Errorf("%w: put %s: write temp file: %w", ErrBackend, key, err)
	}

	if err := tempFile.Sync(); err != nil {
		os.Remove(tempFile.Name())
		return fmt.Errorf("%w: put %s: sync temp file: %w", ErrBackend, key, err)
	}

	if err := tempFile.Close(); err != nil {
		os.Remove(tempFile.Name())
		return fmt.Errorf("%w: put %s: close temp file: %w", ErrBackend, key, err)
	}

	if err := os.Rename(tempFile.Name(), s.path(key)); err != nil {
		os.Remove(tempFile.Name())
		return fmt.Errorf("%w: put %s: rename: %w", ErrBackend, key, err)
	}

	return nil
}

func (s *Local) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("%w: get %s: %w", ErrBackend, key, err)
	}
	return data, nil
}

// ScanPrefix lists the root directory; escaped names do not sort like
// keys, so results are re-sorted after unescaping.
func (s *Local) ScanPrefix(ctx context.Context, prefix string) ([]Entry, error) {
	dirEntries, err := os.ReadDir(s.rootPath)
	if err != nil {
		return nil, fmt.Errorf("%w: scan %s: %w", ErrBackend, prefix, err)
	}

	var keys []string
	for _, de := range dirEntries {
		if de.IsDir() || strings.HasPrefix(de.Name(), tempPrefix) {
			continue
		}
		key, err := url.PathUnescape(de.Name())
		if err != nil {
			continue
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	entries := make([]Entry, 0, len(keys))
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := s.Get(ctx, key)
		if errors.Is(err, ErrNotFound) {
			// removed between listing and reading
			continue
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Key: key, Value: data})
	}
	return entries, nil
}

func (s *Local) Close() error {
	return nil
}
