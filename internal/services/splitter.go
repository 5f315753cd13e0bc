package services

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/Lllllllleong/lantern/internal/models"
)

// SplitPDF splits a multi-page scan into single-page PDFs in outDir and
// returns one manifest entry per page, threaded as sequenceID in page
// order. An empty sequenceID uses the file name.
func SplitPDF(src, outDir, sequenceID string, logger *slog.Logger) ([]models.ManifestEntry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	if sequenceID == "" {
		sequenceID = base
	}
	logCtx := logger.With("source", src, "sequenceId", sequenceID)

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	work, err := os.MkdirTemp(outDir, ".split-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}
	defer os.RemoveAll(work)

	optimized := filepath.Join(work, base+".pdf")
	if err := optimizePDF(src, optimized); err != nil {
		return nil, fmt.Errorf("failed to validate/optimize PDF: %w", err)
	}
	pageCount, err := api.PageCountFile(optimized)
	if err != nil {
		return nil, fmt.Errorf("failed to get page count: %w", err)
	}
	if err := api.SplitFile(optimized, work, 1, relaxedConfig()); err != nil {
		return nil, fmt.Errorf("failed to split PDF: %w", err)
	}

	entries := make([]models.ManifestEntry, 0, pageCount)
	for n := 1; n <= pageCount; n++ {
		name := fmt.Sprintf("%s_%04d.pdf", base, n)
		if err := os.Rename(filepath.Join(work, fmt.Sprintf("%s_%d.pdf", base, n)), filepath.Join(outDir, name)); err != nil {
			return nil, fmt.Errorf("failed to publish page %d: %w", n, err)
		}
		order := n
		entries = append(entries, models.ManifestEntry{
			PageID:        fmt.Sprintf("%s-%04d", sequenceID, n),
			ImagePath:     name,
			SequenceID:    sequenceID,
			SequenceOrder: &order,
			Row:           n - 1,
		})
	}
	logCtx.Info("PDF split into pages.", "pageCount", pageCount, "outDir", outDir)
	return entries, nil
}

func relaxedConfig() *model.Configuration {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return cfg
}

func optimizePDF(inPath, outPath string) error {
	return api.OptimizeFile(inPath, outPath, relaxedConfig())
}

// WriteManifest writes entries as a manifest CSV that ParseManifest reads
// back. Metadata keys become extra columns in sorted order.
func WriteManifest(w io.Writer, entries []models.ManifestEntry) error {
	keys := map[string]bool{}
	for _, e := range entries {
		for k := range e.Metadata {
			keys[k] = true
		}
	}
	extra := make([]string, 0, len(keys))
	for k := range keys {
		extra = append(extra, k)
	}
	sort.Strings(extra)

	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{ColPageID, ColImagePath, ColSequenceID, ColSequenceOrder}, extra...)); err != nil {
		return err
	}
	for _, e := range entries {
		order := ""
		if e.SequenceOrder != nil {
			order = strconv.Itoa(*e.SequenceOrder)
		}
		rec := []string{e.PageID, e.ImagePath, e.SequenceID, order}
		for _, k := range extra {
			rec = append(rec, e.Metadata[k])
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
