// Package cache stores OCR results keyed by the sha256 of the image bytes.
// Entries are deterministic per key, so every store writes a key at most
// once and ignores later puts.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"
)

// Entry is one cached OCR result.
type Entry struct {
	RawText    string    `json:"raw_text"`
	Confidence float64   `json:"confidence"`
	Backend    string    `json:"backend"`
	CreatedAt  time.Time `json:"created_at"`
}

// Usable reports whether the entry can stand in for a backend call. Entries
// without text are treated as misses.
func (e Entry) Usable() bool {
	return strings.TrimSpace(e.RawText) != ""
}

// Store is a content-addressed key-value store.
type Store interface {
	// Get returns the entry for key. A missing or unusable entry is a miss,
	// not an error.
	Get(ctx context.Context, key string) (Entry, bool, error)
	// Put stores e under key unless key already exists. An existing key is
	// not an error.
	Put(ctx context.Context, key string, e Entry) error
}

// Key returns the cache key for image content.
func Key(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Memory is an in-process Store.
type Memory struct {
	mu      sync.Mutex
	entries map[string]Entry
}

// NewMemory returns an empty in-process store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]Entry)}
}

func (m *Memory) Get(_ context.Context, key string) (Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || !e.Usable() {
		return Entry{}, false, nil
	}
	return e, true, nil
}

func (m *Memory) Put(_ context.Context, key string, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.entries[key]; !exists {
		m.entries[key] = e
	}
	return nil
}

// Len returns the number of stored entries.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
