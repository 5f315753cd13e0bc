package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// File stores entries as JSON files under a directory, fanned out by the
// first two hex characters of the key.
type File struct {
	dir string
}

// NewFile returns a store rooted at dir, creating it if needed.
func NewFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}
	return &File{dir: dir}, nil
}

func (f *File) path(key string) string {
	shard := "xx"
	if len(key) >= 2 {
		shard = key[:2]
	}
	return filepath.Join(f.dir, shard, key+".json")
}

func (f *File) Get(_ context.Context, key string) (Entry, bool, error) {
	data, err := os.ReadFile(f.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("failed to read cache entry: %w", err)
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		// A corrupt entry is a miss; the next Put cannot replace it, so
		// drop it now.
		_ = os.Remove(f.path(key))
		return Entry{}, false, nil
	}
	if !e.Usable() {
		return Entry{}, false, nil
	}
	return e, true, nil
}

// Put writes the entry to a temp file and publishes it with a hard link,
// which fails if the key already exists.
func (f *File) Put(_ context.Context, key string, e Entry) error {
	final := f.path(key)
	if _, err := os.Stat(final); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return fmt.Errorf("failed to create cache shard: %w", err)
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(final), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp cache file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write temp cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp cache file: %w", err)
	}
	if err := os.Link(tmpName, final); err != nil && !errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("failed to publish cache entry: %w", err)
	}
	return nil
}
