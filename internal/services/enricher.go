package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/lantern/internal/enrich"
	"github.com/Lllllllleong/lantern/internal/models"
)

// metaDocType is the manifest column that overrides doc type detection.
const metaDocType = "doc_type"

// EnricherConfig holds the enrichment stage settings.
type EnricherConfig struct {
	MaxSummaryChars       int
	SummarizeSingletons   bool
	// SkipSequenceSummaries leaves multi-page sequence summaries empty.
	// Singletons still mirror their page.
	SkipSequenceSummaries bool
	Concurrency           int
}

// Enricher builds page and sequence insights from threaded sequences.
type Enricher struct {
	strategy enrich.Strategy
	config   EnricherConfig
	logger   *slog.Logger
}

// NewEnricher returns an enricher over strategy.
func NewEnricher(strategy enrich.Strategy, config EnricherConfig, logger *slog.Logger) *Enricher {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Enricher{strategy: strategy, config: config, logger: logger}
}

type pageJob struct {
	seq int
	pos int
}

// Run returns one PageInsight per page, grouped by sequence in page order,
// and one SequenceInsight per sequence.
func (e *Enricher) Run(ctx context.Context, sequences []models.Sequence) ([]models.PageInsight, []models.SequenceInsight, error) {
	var jobs []pageJob
	offsets := make([]int, len(sequences))
	for si, seq := range sequences {
		offsets[si] = len(jobs)
		for pi := range seq.Pages {
			jobs = append(jobs, pageJob{seq: si, pos: pi})
		}
	}
	e.logger.Info("Starting enrichment stage.", "mode", e.strategy.Mode(), "pageCount", len(jobs), "sequenceCount", len(sequences))

	pages := make([]models.PageInsight, len(jobs))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(e.config.Concurrency)
	for i, job := range jobs {
		eg.Go(func() error {
			seq := sequences[job.seq]
			pages[i] = e.page(gctx, seq.ID, job.pos, seq.Pages[job.pos])
			return nil
		})
	}
	_ = eg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, nil, fmt.Errorf("enrichment interrupted: %w", err)
	}

	seqs := make([]models.SequenceInsight, len(sequences))
	eg, gctx = errgroup.WithContext(ctx)
	eg.SetLimit(e.config.Concurrency)
	for si, seq := range sequences {
		eg.Go(func() error {
			seqs[si] = e.sequence(gctx, seq, pages[offsets[si]:offsets[si]+len(seq.Pages)])
			return nil
		})
	}
	_ = eg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, nil, fmt.Errorf("enrichment interrupted: %w", err)
	}

	e.logger.Info("Enrichment stage complete.", "pageCount", len(pages), "sequenceCount", len(seqs))
	return pages, seqs, nil
}

func (e *Enricher) page(ctx context.Context, sequenceID string, pos int, p models.ThreadedPage) models.PageInsight {
	rec := p.Record
	ins := models.PageInsight{
		PageID:        p.Entry.PageID,
		SequenceID:    sequenceID,
		SequenceOrder: p.Entry.SequenceOrder,
		PagePosition:  pos + 1,
		ImagePath:     p.Entry.ImagePath,
		CleanText:     rec.CleanText,
		Confidence:    rec.Confidence,
		OCRBackend:    rec.Backend,
		OCRError:      rec.Error,
		Metadata:      p.Entry.Metadata,
	}
	if rec.Degraded {
		ins.DegradedReasons = append(ins.DegradedReasons, models.DegradedOCRFallback)
	}
	if rec.Failed() {
		ins.DegradedReasons = append(ins.DegradedReasons, models.DegradedOCRError)
	}

	summary, summaryDegraded := e.strategy.Summarize(ctx, rec.CleanText, e.config.MaxSummaryChars)
	entities, entitiesDegraded := e.strategy.ExtractEntities(ctx, rec.CleanText)
	if summaryDegraded {
		ins.DegradedReasons = append(ins.DegradedReasons, models.DegradedSummaryFallback)
	}
	if entitiesDegraded {
		ins.DegradedReasons = append(ins.DegradedReasons, models.DegradedEntitiesFallback)
	}
	if entities == nil {
		entities = []models.Entity{}
	}

	ins.Summary = summary
	ins.Entities = entities
	ins.SearchText = enrich.SearchText(rec.CleanText, summary, entities)
	ins.DocType = p.Entry.Meta(metaDocType)
	if ins.DocType == "" {
		ins.DocType = e.strategy.DocType(rec.CleanText)
	}
	ins.Degraded = len(ins.DegradedReasons) > 0
	return ins
}

func (e *Enricher) sequence(ctx context.Context, seq models.Sequence, pages []models.PageInsight) models.SequenceInsight {
	var all []models.Entity
	degraded := false
	summaries := make([]string, 0, len(pages))
	for _, p := range pages {
		all = append(all, p.Entities...)
		degraded = degraded || p.Degraded
		if p.Summary != "" {
			summaries = append(summaries, p.Summary)
		}
	}

	var summary string
	switch {
	case seq.Singleton && (!e.config.SummarizeSingletons || e.config.SkipSequenceSummaries):
		summary = pages[0].Summary
	case e.config.SkipSequenceSummaries:
	default:
		var fellBack bool
		summary, fellBack = e.strategy.Summarize(ctx, strings.Join(summaries, " "), e.config.MaxSummaryChars)
		if fellBack {
			e.logger.Warn("Sequence summary fell back to rules.", "sequenceId", seq.ID, "reason", models.DegradedSequenceSummaryFB)
		}
		degraded = degraded || fellBack
	}

	entities := enrich.Dedupe(all)
	return models.SequenceInsight{
		SequenceID:    seq.ID,
		Summary:       summary,
		Entities:      entities,
		PageIDs:       seq.PageIDs(),
		NumPages:      len(seq.Pages),
		Singleton:     seq.Singleton,
		OrderConflict: seq.OrderConflict,
		SearchText:    enrich.SearchText("", summary, entities),
		Degraded:      degraded,
	}
}
