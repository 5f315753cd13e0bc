package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Lllllllleong/lantern/internal/export"
	"github.com/Lllllllleong/lantern/internal/models"
)

// Exporter persists the record sets of a completed run.
type Exporter interface {
	Export(ctx context.Context, runID string, pages []models.PageInsight, sequences []models.SequenceInsight) (export.Locations, error)
}

// Recognizer produces one OCR record per manifest entry.
type Recognizer interface {
	Run(ctx context.Context, entries []models.ManifestEntry) ([]models.OcrRecord, error)
}

// Stats counts what a completed run produced.
type Stats struct {
	Pages         int
	Sequences     int
	Singletons    int
	OrderConflict int
	Cached        int
	Fresh         int
	OCRFallback   int
	OCRErrors     int
	Degraded      int
}

// Result is the output of a completed run.
type Result struct {
	RunID     string
	Pages     []models.PageInsight
	Sequences []models.SequenceInsight
	Stats     Stats
	Exports   export.Locations
	Duration  time.Duration
}

// Pipeline runs OCR, threading and enrichment over a manifest.
type Pipeline struct {
	ocr      Recognizer
	threader *Threader
	enricher *Enricher
	exporter Exporter
	tracker  Tracker
	logger   *slog.Logger
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithExporter exports the record sets of completed runs.
func WithExporter(e Exporter) PipelineOption {
	return func(p *Pipeline) { p.exporter = e }
}

// WithTracker records run status.
func WithTracker(t Tracker) PipelineOption {
	return func(p *Pipeline) { p.tracker = t }
}

// WithLogger sets the pipeline logger.
func WithLogger(l *slog.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = l }
}

// NewPipeline wires the three stages.
func NewPipeline(ocrStage Recognizer, threader *Threader, enricher *Enricher, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		ocr:      ocrStage,
		threader: threader,
		enricher: enricher,
		tracker:  NopTracker{},
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run processes m. On failure it returns a *StageError and no records.
func (p *Pipeline) Run(ctx context.Context, m *models.Manifest) (*Result, error) {
	start := time.Now()
	runID := ""
	if m != nil {
		runID = m.RunID
	}
	logCtx := p.logger.With("runId", runID)

	res, err := p.run(ctx, logCtx, m)
	if err != nil {
		return nil, p.Abort(ctx, runID, err)
	}
	res.Duration = time.Since(start)
	logTrackerError(logCtx, "complete", p.tracker.Complete(ctx, runID, RunSummary{
		PageCount:          res.Stats.Pages,
		SequenceCount:      res.Stats.Sequences,
		DegradedPages:      res.Stats.Degraded,
		PagesExportURI:     res.Exports.PagesURI,
		SequencesExportURI: res.Exports.SequencesURI,
	}))
	logCtx.Info("Pipeline run complete.", "pages", res.Stats.Pages, "sequences", res.Stats.Sequences,
		"cached", res.Stats.Cached, "fresh", res.Stats.Fresh, "degraded", res.Stats.Degraded,
		"duration_ms", res.Duration.Milliseconds())
	return res, nil
}

// Abort records err as the failure of runID and returns it as a
// *StageError. Errors without a stage are attributed to the manifest.
func (p *Pipeline) Abort(ctx context.Context, runID string, err error) *StageError {
	se := stageError(StageManifest, err)
	logCtx := p.logger.With("runId", runID)
	logCtx.Error("Pipeline run failed.", "stage", se.Stage, "category", se.Category, "error", se.Err)
	logTrackerError(logCtx, "fail", p.tracker.Fail(context.WithoutCancel(ctx), runID, se))
	return se
}

func (p *Pipeline) run(ctx context.Context, logCtx *slog.Logger, m *models.Manifest) (*Result, error) {
	if err := ValidateManifest(m); err != nil {
		return nil, &StageError{Stage: StageManifest, Category: CategoryManifest, Err: err}
	}
	entries := make([]models.ManifestEntry, len(m.Entries))
	copy(entries, m.Entries)
	for i := range entries {
		entries[i].Row = i
	}
	logCtx.Info("Starting pipeline run.", "manifest", m.Source, "pageCount", len(entries))
	logTrackerError(logCtx, "start", p.tracker.Start(ctx, m.RunID, m.Source, len(entries)))

	records, err := p.ocr.Run(ctx, entries)
	if err != nil {
		return nil, stageError(StageOCR, err)
	}
	if err := checkRecords(entries, records); err != nil {
		return nil, stageError(StageOCR, err)
	}

	logTrackerError(logCtx, "stage", p.tracker.Stage(ctx, m.RunID, models.RunStatusThreading))
	sequences, err := p.threader.Run(entries, records)
	if err != nil {
		return nil, stageError(StageThreading, err)
	}

	logTrackerError(logCtx, "stage", p.tracker.Stage(ctx, m.RunID, models.RunStatusEnriching))
	pages, seqs, err := p.enricher.Run(ctx, sequences)
	if err != nil {
		return nil, stageError(StageEnrichment, err)
	}
	if len(pages) != len(entries) {
		return nil, stageError(StageEnrichment, fmt.Errorf("%w: %d page insights for %d manifest entries", ErrStageInvariant, len(pages), len(entries)))
	}
	if len(seqs) != len(sequences) {
		return nil, stageError(StageEnrichment, fmt.Errorf("%w: %d sequence insights for %d sequences", ErrStageInvariant, len(seqs), len(sequences)))
	}

	res := &Result{RunID: m.RunID, Pages: pages, Sequences: seqs, Stats: collectStats(records, pages, seqs)}
	if p.exporter != nil {
		loc, err := p.exporter.Export(ctx, m.RunID, pages, seqs)
		if err != nil {
			return nil, &StageError{Stage: StageExport, Category: CategoryExport, Err: err}
		}
		res.Exports = loc
	}
	return res, nil
}

// checkRecords enforces one record per entry, in order, with failed records
// carrying no text or confidence.
func checkRecords(entries []models.ManifestEntry, records []models.OcrRecord) error {
	if len(records) != len(entries) {
		return fmt.Errorf("%w: %d OCR records for %d manifest entries", ErrJoinInvariant, len(records), len(entries))
	}
	for i, r := range records {
		if r.PageID != entries[i].PageID {
			return fmt.Errorf("%w: record %d is for page %q, want %q", ErrJoinInvariant, i, r.PageID, entries[i].PageID)
		}
		if r.Confidence < 0 || r.Confidence > 1 {
			return fmt.Errorf("%w: page %q has confidence %v", ErrStageInvariant, r.PageID, r.Confidence)
		}
		if r.Failed() && (r.Confidence != 0 || r.CleanText != "") {
			return fmt.Errorf("%w: failed page %q carries text or confidence", ErrStageInvariant, r.PageID)
		}
	}
	return nil
}

func collectStats(records []models.OcrRecord, pages []models.PageInsight, seqs []models.SequenceInsight) Stats {
	s := Stats{Pages: len(pages), Sequences: len(seqs)}
	for _, r := range records {
		switch {
		case r.Failed():
			s.OCRErrors++
		case r.Cached:
			s.Cached++
		case r.Degraded:
			s.OCRFallback++
		default:
			s.Fresh++
		}
	}
	for _, p := range pages {
		if p.Degraded {
			s.Degraded++
		}
	}
	for _, q := range seqs {
		if q.Singleton {
			s.Singletons++
		}
		if q.OrderConflict {
			s.OrderConflict++
		}
	}
	return s
}
