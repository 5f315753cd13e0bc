package services

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/Lllllllleong/lantern/internal/models"
	"github.com/Lllllllleong/lantern/internal/ocr"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func intp(n int) *int { return &n }

func entry(id, seq string, order *int) models.ManifestEntry {
	return models.ManifestEntry{PageID: id, ImagePath: id + ".png", SequenceID: seq, SequenceOrder: order}
}

func withRows(entries ...models.ManifestEntry) []models.ManifestEntry {
	for i := range entries {
		entries[i].Row = i
	}
	return entries
}

func okRecords(entries []models.ManifestEntry) []models.OcrRecord {
	out := make([]models.OcrRecord, len(entries))
	for i, e := range entries {
		out[i] = models.OcrRecord{PageID: e.PageID, RawText: "text " + e.PageID, CleanText: "text " + e.PageID, Confidence: 0.9}
	}
	return out
}

// writeImages writes one file per entry into a temp dir, using the page id
// as content unless content overrides it.
func writeImages(t *testing.T, entries []models.ManifestEntry, content map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for _, e := range entries {
		data, ok := content[e.PageID]
		if !ok {
			data = "image-" + e.PageID
		}
		if err := os.WriteFile(filepath.Join(dir, e.ImagePath), []byte(data), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

type countingBackend struct {
	name string
	fn   func(in ocr.Input) (ocr.Result, error)

	mu    sync.Mutex
	calls int
}

func (b *countingBackend) Name() string { return b.name }

func (b *countingBackend) Extract(_ context.Context, in ocr.Input) (ocr.Result, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	return b.fn(in)
}

func (b *countingBackend) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func echoBackend() *countingBackend {
	return &countingBackend{name: "echo", fn: func(in ocr.Input) (ocr.Result, error) {
		return ocr.Result{RawText: "read  " + string(in.Data), Confidence: 0.8}, nil
	}}
}

func placeholderChain() *ocr.Chain {
	return ocr.NewChain(nil, ocr.Placeholder{Confidence: ocr.DefaultFallbackConfidence}, ocr.WithLogger(quietLogger()))
}

func chainOf(b ocr.Backend) *ocr.Chain {
	links := []ocr.Link{{Backend: b, MaxRetries: 0}}
	return ocr.NewChain(links, ocr.Placeholder{Confidence: ocr.DefaultFallbackConfidence}, ocr.WithBackoff(0), ocr.WithLogger(quietLogger()))
}
