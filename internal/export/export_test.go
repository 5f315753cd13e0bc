package export

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/Lllllllleong/lantern/internal/models"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWriteJSONLOneObjectPerLine(t *testing.T) {
	var buf bytes.Buffer
	pages := []models.PageInsight{
		{PageID: "a", Summary: "x < y & z", Entities: []models.Entity{}},
		{PageID: "b", Entities: []models.Entity{{Type: "ORG", Text: "Acme", Start: 0, End: 4}}},
	}
	if err := WriteJSONL(&buf, pages); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines", len(lines))
	}
	if !strings.Contains(lines[0], `"summary":"x < y & z"`) {
		t.Fatalf("html escaping should be off: %s", lines[0])
	}
}

func TestReadJSONLSkipsMalformedLines(t *testing.T) {
	input := `{"page_id":"a","summary":"one"}` + "\n" +
		"\n" +
		`{"page_id":` + "\n" +
		`{"page_id":"b","summary":"two"}` + "\n"
	pages, skipped, err := ReadJSONL[models.PageInsight](strings.NewReader(input), quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	if skipped != 1 || len(pages) != 2 || pages[1].PageID != "b" {
		t.Fatalf("pages=%+v skipped=%d", pages, skipped)
	}
}

func TestExporterWritesLocalFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")
	e := NewExporter(dir, nil, "", "", quietLogger())
	pages := []models.PageInsight{{PageID: "a"}, {PageID: "b"}}
	seqs := []models.SequenceInsight{{SequenceID: "S", PageIDs: []string{"a", "b"}, NumPages: 2}}

	loc, err := e.Export(context.Background(), "run-1", pages, seqs)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	gotPages, err := LoadPages(loc.PagesURI, quietLogger())
	if err != nil || len(gotPages) != 2 {
		t.Fatalf("LoadPages = %v, %v", gotPages, err)
	}
	gotSeqs, err := LoadSequences(loc.SequencesURI, quietLogger())
	if err != nil || len(gotSeqs) != 1 || gotSeqs[0].NumPages != 2 {
		t.Fatalf("LoadSequences = %v, %v", gotSeqs, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("staging files left behind: %v", entries)
	}
}

func TestExporterNeedsATarget(t *testing.T) {
	if _, err := NewExporter("", nil, "", "", quietLogger()).Export(context.Background(), "r", nil, nil); err == nil {
		t.Fatal("expected error without targets")
	}
}

func TestLoadPagesMissingFile(t *testing.T) {
	if _, err := LoadPages(filepath.Join(t.TempDir(), "nope.jsonl"), nil); err == nil {
		t.Fatal("expected error")
	}
}

// fakeGCS answers the JSON API calls the exporter makes. The first okUploads
// uploads succeed and later ones are refused.
type fakeGCS struct {
	okUploads int

	mu      sync.Mutex
	uploads int
	deleted []string
}

func (f *fakeGCS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/upload/"):
		io.Copy(io.Discard, r.Body)
		f.uploads++
		if f.uploads > f.okUploads {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			io.WriteString(w, `{"error":{"code":403,"message":"denied"}}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"bucket":"exports","name":"obj"}`)
	case r.Method == http.MethodDelete:
		f.deleted = append(f.deleted, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	default:
		http.NotFound(w, r)
	}
}

func fakeBucket(t *testing.T, f *fakeGCS) *storage.BucketHandle {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	client, err := storage.NewClient(context.Background(),
		option.WithEndpoint(srv.URL+"/storage/v1/"),
		option.WithoutAuthentication())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { client.Close() })
	return client.Bucket("exports")
}

func TestExporterFailedUploadLeavesNoOutput(t *testing.T) {
	pages := []models.PageInsight{{PageID: "a"}}
	seqs := []models.SequenceInsight{{SequenceID: "a", PageIDs: []string{"a"}, NumPages: 1}}

	cases := []struct {
		name        string
		okUploads   int
		wantDeleted int
	}{
		{"pages upload refused", 0, 0},
		{"sequences upload refused", 1, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := &fakeGCS{okUploads: tc.okUploads}
			dir := t.TempDir()
			e := NewExporter(dir, fakeBucket(t, f), "exports", "runs", quietLogger())

			if _, err := e.Export(context.Background(), "run-1", pages, seqs); err == nil {
				t.Fatal("expected an export error")
			}
			entries, err := os.ReadDir(dir)
			if err != nil {
				t.Fatal(err)
			}
			if len(entries) != 0 {
				t.Fatalf("export dir not empty after failure: %v", entries)
			}

			f.mu.Lock()
			defer f.mu.Unlock()
			if len(f.deleted) != tc.wantDeleted {
				t.Fatalf("deleted %v, want %d objects", f.deleted, tc.wantDeleted)
			}
			for _, p := range f.deleted {
				if !strings.HasSuffix(p, PagesFile) {
					t.Fatalf("deleted unexpected object %s", p)
				}
			}
		})
	}
}

func TestExporterWritesBothTargets(t *testing.T) {
	f := &fakeGCS{okUploads: 2}
	dir := t.TempDir()
	e := NewExporter(dir, fakeBucket(t, f), "exports", "runs", quietLogger())

	loc, err := e.Export(context.Background(), "run-1", []models.PageInsight{{PageID: "a"}}, nil)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if loc.PagesURI != "gs://exports/runs/run-1/pages.jsonl" {
		t.Fatalf("pages uri = %s", loc.PagesURI)
	}
	if _, err := os.Stat(filepath.Join(dir, PagesFile)); err != nil {
		t.Fatalf("local pages missing: %v", err)
	}
	if len(f.deleted) != 0 {
		t.Fatalf("unexpected deletes: %v", f.deleted)
	}
}
