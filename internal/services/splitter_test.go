package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/Lllllllleong/lantern/internal/models"
)

// buildPDF returns a valid PDF with one text page per entry of texts.
func buildPDF(texts ...string) []byte {
	n := len(texts)
	// 1 catalog, 2 pages, then a page and a content object per page, then
	// the font.
	total := 2 + 2*n + 1
	font := total
	offsets := make([]int, total+1)

	var b strings.Builder
	b.WriteString("%PDF-1.4\n")
	offsets[1] = b.Len()
	b.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")

	kids := make([]string, n)
	for i := range texts {
		kids[i] = fmt.Sprintf("%d 0 R", 3+2*i)
	}
	offsets[2] = b.Len()
	fmt.Fprintf(&b, "2 0 obj\n<< /Type /Pages /Kids [%s] /Count %d >>\nendobj\n", strings.Join(kids, " "), n)

	for i, text := range texts {
		page, content := 3+2*i, 4+2*i
		offsets[page] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents %d 0 R /Resources << /Font << /F1 %d 0 R >> >> >>\nendobj\n", page, content, font)
		stream := "BT\n/F1 12 Tf\n72 720 Td\n(" + text + ") Tj\nET"
		offsets[content] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n<< /Length %d >>\nstream\n%s\nendstream\nendobj\n", content, len(stream), stream)
	}
	offsets[font] = b.Len()
	fmt.Fprintf(&b, "%d 0 obj\n<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>\nendobj\n", font)

	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n0000000000 65535 f \n", total+1)
	for i := 1; i <= total; i++ {
		fmt.Fprintf(&b, "%010d 00000 n \n", offsets[i])
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", total+1, xref)
	return []byte(b.String())
}

func TestSplitPDF(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "box7.pdf")
	if err := os.WriteFile(src, buildPDF("one", "two", "three"), 0o644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "pages")

	entries, err := SplitPDF(src, out, "", quietLogger())
	if err != nil {
		t.Fatalf("SplitPDF: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries", len(entries))
	}
	for i, e := range entries {
		if e.SequenceID != "box7" || e.SequenceOrder == nil || *e.SequenceOrder != i+1 || e.Row != i {
			t.Fatalf("entry %d = %+v", i, e)
		}
		input, err := NewImageLoader(out, nil).Load(context.Background(), e)
		if err != nil {
			t.Fatalf("page %s does not load as a single-page input: %v", e.PageID, err)
		}
		if input.MIMEType != "application/pdf" {
			t.Fatalf("mime = %q", input.MIMEType)
		}
	}
	if entries[0].PageID != "box7-0001" || entries[2].ImagePath != "box7_0003.pdf" {
		t.Fatalf("naming: %+v", entries)
	}
	leftovers, _ := filepath.Glob(filepath.Join(out, ".split-*"))
	if len(leftovers) != 0 {
		t.Fatalf("work dir left behind: %v", leftovers)
	}
}

func TestImageLoaderRejectsMultiPagePDF(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "two.pdf"), buildPDF("a", "b"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := NewImageLoader(dir, nil).Load(context.Background(), models.ManifestEntry{PageID: "p", ImagePath: "two.pdf"})
	if !errors.Is(err, errMultiPagePDF) {
		t.Fatalf("err = %v, want errMultiPagePDF", err)
	}
}

func TestWriteManifestRoundTrip(t *testing.T) {
	one, two := 1, 2
	entries := []models.ManifestEntry{
		{PageID: "a", ImagePath: "a.png", SequenceID: "S", SequenceOrder: &one, Metadata: map[string]string{"box": "7"}},
		{PageID: "b", ImagePath: "b.png", SequenceID: "S", SequenceOrder: &two, Row: 1},
		{PageID: "c", ImagePath: "c, final.png", Row: 2, Metadata: map[string]string{"doc_type": "memo"}},
	}
	var buf bytes.Buffer
	if err := WriteManifest(&buf, entries); err != nil {
		t.Fatal(err)
	}
	m, err := ParseManifest("mem", &buf)
	if err != nil {
		t.Fatalf("ParseManifest: %v\n%s", err, buf.String())
	}
	if !reflect.DeepEqual(m.Entries, entries) {
		t.Fatalf("round trip:\n got %+v\nwant %+v", m.Entries, entries)
	}
}
