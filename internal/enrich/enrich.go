// Package enrich turns page text into summaries, typed entities, search
// text and a document type, either by fixed rules or through a language
// model with rule-based fallback.
package enrich

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/Lllllllleong/lantern/internal/models"
	"github.com/Lllllllleong/lantern/internal/textclean"
)

// Backend is one enrichment provider.
type Backend interface {
	Name() string
	Summarize(ctx context.Context, text string, maxChars int) (string, error)
	ExtractEntities(ctx context.Context, text string) ([]models.Entity, error)
}

// Strategy is what the enrichment stage calls. Each operation reports
// whether a fallback produced its answer.
type Strategy interface {
	Mode() string
	Summarize(ctx context.Context, text string, maxChars int) (summary string, degraded bool)
	ExtractEntities(ctx context.Context, text string) (entities []models.Entity, degraded bool)
	DocType(text string) string
}

// Rules runs the deterministic backend alone.
type Rules struct {
	d *Deterministic
}

// NewRules returns the deterministic strategy.
func NewRules(d *Deterministic) *Rules {
	return &Rules{d: d}
}

func (r *Rules) Mode() string { return "deterministic" }

func (r *Rules) Summarize(ctx context.Context, text string, maxChars int) (string, bool) {
	s, _ := r.d.Summarize(ctx, text, maxChars)
	return s, false
}

func (r *Rules) ExtractEntities(_ context.Context, text string) ([]models.Entity, bool) {
	return r.d.Entities(text), false
}

func (r *Rules) DocType(text string) string { return r.d.DocType(text) }

// Enhanced asks a language-model backend first and falls back to the rules
// per operation, so a failed summary does not discard good entities.
type Enhanced struct {
	primary  Backend
	fallback *Deterministic
	logger   *slog.Logger
}

// NewEnhanced wraps primary with a deterministic fallback.
func NewEnhanced(primary Backend, fallback *Deterministic, logger *slog.Logger) *Enhanced {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enhanced{primary: primary, fallback: fallback, logger: logger.With("backend", primary.Name())}
}

func (e *Enhanced) Mode() string { return "enhanced" }

func (e *Enhanced) Summarize(ctx context.Context, text string, maxChars int) (string, bool) {
	if strings.TrimSpace(text) == "" {
		return "", false
	}
	s, err := e.primary.Summarize(ctx, text, maxChars)
	if err == nil {
		s = textclean.TruncateWords(textclean.Normalize(s, textclean.Options{}), maxChars)
		if s != "" {
			return s, false
		}
		err = errEmptySummary
	}
	e.logger.Warn("Summary backend failed, using rules.", "error", err)
	fb, _ := e.fallback.Summarize(ctx, text, maxChars)
	return fb, true
}

func (e *Enhanced) ExtractEntities(ctx context.Context, text string) ([]models.Entity, bool) {
	if strings.TrimSpace(text) == "" {
		return []models.Entity{}, false
	}
	ents, err := e.primary.ExtractEntities(ctx, text)
	if err == nil {
		return Dedupe(ents), false
	}
	e.logger.Warn("Entity backend failed, using rules.", "error", err)
	return e.fallback.Entities(text), true
}

// DocType always uses the rules; model answers are not stable enough to
// filter on.
func (e *Enhanced) DocType(text string) string { return e.fallback.DocType(text) }

// WithTimeout bounds every call to b by d. A non-positive d returns b.
func WithTimeout(b Backend, d time.Duration) Backend {
	if d <= 0 {
		return b
	}
	return timeoutBackend{Backend: b, timeout: d}
}

type timeoutBackend struct {
	Backend
	timeout time.Duration
}

func (t timeoutBackend) Summarize(ctx context.Context, text string, maxChars int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.Backend.Summarize(ctx, text, maxChars)
}

func (t timeoutBackend) ExtractEntities(ctx context.Context, text string) ([]models.Entity, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.Backend.ExtractEntities(ctx, text)
}
