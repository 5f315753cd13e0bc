package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("lantern %s: %v\n%s", strings.Join(args, " "), err, out.String())
	}
	return out.String()
}

func TestRunThenIndex(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.png"), "first page")
	writeFile(t, filepath.Join(dir, "b.png"), "second page")
	writeFile(t, filepath.Join(dir, "c.png"), "loose page")
	writeFile(t, filepath.Join(dir, "manifest.csv"),
		"page_id,image_path,sequence_id,sequence_order,doc_type\n"+
			"A,a.png,S1,2,letter\n"+
			"B,b.png,S1,1,letter\n"+
			"C,c.png,,,memo\n")
	writeFile(t, filepath.Join(dir, "lantern.yaml"), `
ocr:
  backends: []
cache:
  dir: `+filepath.Join(dir, "cache")+`
`)
	exports := filepath.Join(dir, "out")

	out := execute(t, "run",
		"--manifest", filepath.Join(dir, "manifest.csv"),
		"--config", filepath.Join(dir, "lantern.yaml"),
		"--export-dir", exports,
		"--image-root", dir,
		"--run-id", "run-test")
	if !strings.Contains(out, "run-test") {
		t.Fatalf("summary does not name the run:\n%s", out)
	}
	for _, name := range []string{"pages.jsonl", "sequences.jsonl"} {
		if _, err := os.Stat(filepath.Join(exports, name)); err != nil {
			t.Fatalf("missing export %s: %v", name, err)
		}
	}

	db := filepath.Join(dir, "lantern.db")
	execute(t, "index", "build", "--db", db,
		"--pages", filepath.Join(exports, "pages.jsonl"),
		"--sequences", filepath.Join(exports, "sequences.jsonl"))

	out = execute(t, "index", "search", "--db", db, "--doc-type", "memo")
	if !strings.Contains(out, "C") || !strings.Contains(out, "1 hits") {
		t.Fatalf("memo search:\n%s", out)
	}
	out = execute(t, "index", "show", "--db", db, "S1")
	if !strings.Contains(out, "B, A") {
		t.Fatalf("sequence S1:\n%s", out)
	}
}
