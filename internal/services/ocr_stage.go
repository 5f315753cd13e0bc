package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/Lllllllleong/lantern/internal/cache"
	"github.com/Lllllllleong/lantern/internal/models"
	"github.com/Lllllllleong/lantern/internal/ocr"
	"github.com/Lllllllleong/lantern/internal/textclean"
)

// OCRStageConfig holds the OCR stage settings.
type OCRStageConfig struct {
	Concurrency int
	Normalize   textclean.Options
}

// OCRStage turns manifest entries into OCR records, one per entry and in
// manifest order. A bad image only fails its own record.
type OCRStage struct {
	chain  *ocr.Chain
	images ImageSource
	store  cache.Store
	config OCRStageConfig
	logger *slog.Logger
	group  singleflight.Group
}

// NewOCRStage builds the stage. store may be nil to disable caching.
func NewOCRStage(chain *ocr.Chain, images ImageSource, store cache.Store, config OCRStageConfig, logger *slog.Logger) *OCRStage {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OCRStage{chain: chain, images: images, store: store, config: config, logger: logger}
}

// Run processes entries with a bounded worker pool. It fails only when ctx
// is done; the records gathered so far are discarded.
func (s *OCRStage) Run(ctx context.Context, entries []models.ManifestEntry) ([]models.OcrRecord, error) {
	s.logger.Info("Starting OCR stage.", "pageCount", len(entries), "backends", s.chain.Backends(), "concurrency", s.config.Concurrency)
	start := time.Now()

	records := make([]models.OcrRecord, len(entries))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(s.config.Concurrency)
	for i, entry := range entries {
		eg.Go(func() error {
			records[i] = s.process(gctx, entry)
			return nil
		})
	}
	_ = eg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("ocr stage interrupted: %w", err)
	}

	s.logger.Info("OCR stage complete.", "pageCount", len(records), "duration_ms", time.Since(start).Milliseconds())
	return records, nil
}

func (s *OCRStage) process(ctx context.Context, entry models.ManifestEntry) models.OcrRecord {
	logCtx := s.logger.With("pageId", entry.PageID)

	in, err := s.images.Load(ctx, entry)
	if err != nil {
		reason := loadFailureReason(err)
		logCtx.Warn("Failed to load image.", "imagePath", entry.ImagePath, "reason", reason, "error", err)
		return models.FailedOcrRecord(entry.PageID, reason)
	}
	key := cache.Key(in.Data)

	if s.store != nil {
		cached, ok, err := s.store.Get(ctx, key)
		if err != nil {
			logCtx.Warn("OCR cache read failed.", "error", err)
		} else if ok {
			logCtx.Debug("OCR cache hit.", "backend", cached.Backend)
			return s.record(entry.PageID, key, ocr.Outcome{
				Result:  ocr.Result{RawText: cached.RawText, Confidence: cached.Confidence},
				Backend: cached.Backend,
			}, true)
		}
	}

	v, _, shared := s.group.Do(key, func() (any, error) {
		out := s.chain.Extract(ctx, in)
		if !out.Degraded && s.store != nil {
			entry := cache.Entry{RawText: out.RawText, Confidence: out.Confidence, Backend: out.Backend, CreatedAt: time.Now().UTC()}
			if err := s.store.Put(ctx, key, entry); err != nil {
				logCtx.Warn("OCR cache write failed.", "error", err)
			}
		}
		return out, nil
	})
	out := v.(ocr.Outcome)
	if shared && out.Degraded {
		// Placeholder text names the image, so it is not shared between
		// pages that happen to have the same bytes.
		out.Result, _ = s.chain.Terminal().Extract(context.WithoutCancel(ctx), in)
	}
	if out.Degraded {
		logCtx.Warn("All OCR backends failed, using placeholder text.", "failures", len(out.Failures))
	}
	return s.record(entry.PageID, key, out, false)
}

func (s *OCRStage) record(pageID, key string, out ocr.Outcome, cached bool) models.OcrRecord {
	return models.OcrRecord{
		PageID:      pageID,
		RawText:     out.RawText,
		CleanText:   textclean.Normalize(out.RawText, s.config.Normalize),
		Confidence:  out.Confidence,
		Backend:     out.Backend,
		Attempts:    out.Attempts,
		Degraded:    out.Degraded,
		Cached:      cached,
		ContentHash: key,
	}
}
