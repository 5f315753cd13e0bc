package index

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Lllllllleong/lantern/internal/export"
)

// BuildFromFiles (re)builds the index at dbPath from exported JSONL files.
func BuildFromFiles(ctx context.Context, dbPath, pagesPath, sequencesPath string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	pages, err := export.LoadPages(pagesPath, logger)
	if err != nil {
		return err
	}
	seqs, err := export.LoadSequences(sequencesPath, logger)
	if err != nil {
		return err
	}

	ix, err := Open(ctx, dbPath)
	if err != nil {
		return fmt.Errorf("failed to open index: %w", err)
	}
	defer ix.Close()
	if err := ix.Load(ctx, pages, seqs); err != nil {
		return err
	}
	logger.Info("Search index built.", "db", dbPath, "pages", len(pages), "sequences", len(seqs))
	return nil
}
