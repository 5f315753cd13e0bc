package index

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/Lllllllleong/lantern/internal/export"
	"github.com/Lllllllleong/lantern/internal/models"
)

func intp(n int) *int { return &n }

func fixture() ([]models.PageInsight, []models.SequenceInsight) {
	fail := models.OCRErrImageUnreadable
	pages := []models.PageInsight{
		{PageID: "p1", SequenceID: "S1", PagePosition: 1, SequenceOrder: intp(1), DocType: "invoice",
			CleanText: "Invoice from Acme", SearchText: "invoice from acme 100% paid",
			Entities: []models.Entity{{Type: "ORG", Text: "Acme"}}, Confidence: 0.9},
		{PageID: "p2", SequenceID: "S1", PagePosition: 2, SequenceOrder: intp(2), DocType: "letter",
			CleanText: "Dear John", SearchText: "dear john acme",
			Entities: []models.Entity{{Type: "PERSON", Text: "John"}}, Confidence: 0.8},
		{PageID: "p3", SequenceID: "p3", PagePosition: 1, DocType: "other",
			CleanText: "[OCR unavailable] text for p3.png", SearchText: "[ocr unavailable] text for p3.png",
			DegradedReasons: []string{models.DegradedOCRFallback}, Degraded: true, Confidence: 0.1},
		{PageID: "p4", SequenceID: "p4", PagePosition: 1, OCRError: &fail, Degraded: true},
	}
	seqs := []models.SequenceInsight{
		{SequenceID: "S1", Summary: "Invoice and letter", PageIDs: []string{"p1", "p2"}, NumPages: 2, SearchText: "invoice and letter"},
		{SequenceID: "p3", PageIDs: []string{"p3"}, NumPages: 1, Singleton: true, Degraded: true},
		{SequenceID: "p4", PageIDs: []string{"p4"}, NumPages: 1, Singleton: true, Degraded: true},
	}
	return pages, seqs
}

func openLoaded(t *testing.T) *Index {
	t.Helper()
	ctx := context.Background()
	ix, err := Open(ctx, filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { ix.Close() })
	pages, seqs := fixture()
	if err := ix.Load(ctx, pages, seqs); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return ix
}

func pageIDs(hits []Hit) []string {
	var ids []string
	for _, h := range hits {
		ids = append(ids, h.PageID)
	}
	return ids
}

func TestSearch(t *testing.T) {
	ix := openLoaded(t)
	ctx := context.Background()

	cases := []struct {
		name string
		q    Query
		want []string
	}{
		{"term", Query{Terms: []string{"ACME"}}, []string{"p1", "p2"}},
		{"all terms", Query{Terms: []string{"acme", "john"}}, []string{"p2"}},
		{"doc type", Query{Terms: []string{"acme"}, DocType: "invoice"}, []string{"p1"}},
		{"sequence", Query{SequenceID: "S1"}, []string{"p1", "p2"}},
		{"entity type", Query{EntityType: "person"}, []string{"p2"}},
		{"literal percent", Query{Terms: []string{"100%"}}, []string{"p1"}},
		{"underscore is literal", Query{Terms: []string{"acm_"}}, nil},
		{"text only", Query{TextOnly: true}, []string{"p1", "p2"}},
		{"limit", Query{Limit: 1}, []string{"p1"}},
		{"everything", Query{}, []string{"p1", "p2", "p3", "p4"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			hits, err := ix.Search(ctx, c.q)
			if err != nil {
				t.Fatalf("Search: %v", err)
			}
			if got := pageIDs(hits); !reflect.DeepEqual(got, c.want) {
				t.Fatalf("got %v, want %v", got, c.want)
			}
		})
	}
}

func TestCountsAndSequence(t *testing.T) {
	ix := openLoaded(t)
	ctx := context.Background()

	pages, withText, seqs, err := ix.Counts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if pages != 4 || withText != 2 || seqs != 3 {
		t.Fatalf("counts = %d/%d/%d", pages, withText, seqs)
	}

	s, err := ix.Sequence(ctx, "S1")
	if err != nil || s == nil {
		t.Fatalf("Sequence = %v, %v", s, err)
	}
	if !reflect.DeepEqual(s.PageIDs, []string{"p1", "p2"}) || s.NumPages != 2 || s.Singleton {
		t.Fatalf("unexpected sequence: %+v", s)
	}
	if s, err := ix.Sequence(ctx, "missing"); err != nil || s != nil {
		t.Fatalf("missing sequence = %v, %v", s, err)
	}
}

func TestLoadReplacesContents(t *testing.T) {
	ix := openLoaded(t)
	ctx := context.Background()
	pages, seqs := fixture()
	if err := ix.Load(ctx, pages[:1], seqs[:1]); err != nil {
		t.Fatal(err)
	}
	n, _, s, err := ix.Counts(ctx)
	if err != nil || n != 1 || s != 1 {
		t.Fatalf("counts after reload = %d pages, %d sequences, %v", n, s, err)
	}
}

func TestSchemaCreationIdempotent(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	for i := 0; i < 3; i++ {
		if err := initSchema(ctx, db); err != nil {
			t.Fatalf("initSchema iteration %d: %v", i, err)
		}
	}
	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sqlite_master WHERE type='table'").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Fatalf("expected 3 tables, got %d", count)
	}
}

func TestBuildFromFiles(t *testing.T) {
	dir := t.TempDir()
	pages, seqs := fixture()
	pagesPath, seqPath := filepath.Join(dir, export.PagesFile), filepath.Join(dir, export.SequencesFile)
	writeJSONL(t, pagesPath, pages)
	writeJSONL(t, seqPath, seqs)

	dbPath := filepath.Join(dir, "index.db")
	if err := BuildFromFiles(context.Background(), dbPath, pagesPath, seqPath, nil); err != nil {
		t.Fatalf("BuildFromFiles: %v", err)
	}
	ix, err := Open(context.Background(), dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer ix.Close()
	hits, err := ix.Search(context.Background(), Query{Terms: []string{"john"}})
	if err != nil || len(hits) != 1 || hits[0].PageID != "p2" {
		t.Fatalf("Search = %+v, %v", hits, err)
	}
}

func writeJSONL[T any](t *testing.T, path string, records []T) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := export.WriteJSONL(f, records); err != nil {
		t.Fatal(err)
	}
}
