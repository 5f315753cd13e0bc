// Package export writes and reads the pipeline's JSON Lines record sets.
package export

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Lllllllleong/lantern/internal/models"
)

// File names of the two record sets.
const (
	PagesFile     = "pages.jsonl"
	SequencesFile = "sequences.jsonl"
)

// maxLine bounds one JSONL record; page text can be long.
const maxLine = 16 << 20

// WriteJSONL writes one JSON object per line.
func WriteJSONL[T any](w io.Writer, records []T) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	for i, r := range records {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("failed to encode record %d: %w", i, err)
		}
	}
	return bw.Flush()
}

// ReadJSONL decodes one record per line. Blank lines are ignored and
// malformed lines are skipped with a warning; skipped counts them.
func ReadJSONL[T any](r io.Reader, logger *slog.Logger) (records []T, skipped int, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var rec T
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			skipped++
			logger.Warn("Skipping malformed JSONL line.", "line", line, "error", err)
			continue
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, skipped, fmt.Errorf("failed to scan JSONL: %w", err)
	}
	return records, skipped, nil
}

func readFile[T any](path string, logger *slog.Logger) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	records, _, err := ReadJSONL[T](f, logger)
	return records, err
}

// LoadPages reads a pages.jsonl file.
func LoadPages(path string, logger *slog.Logger) ([]models.PageInsight, error) {
	return readFile[models.PageInsight](path, logger)
}

// LoadSequences reads a sequences.jsonl file.
func LoadSequences(path string, logger *slog.Logger) ([]models.SequenceInsight, error) {
	return readFile[models.SequenceInsight](path, logger)
}
