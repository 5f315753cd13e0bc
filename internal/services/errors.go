package services

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel causes of a fatal run abort.
var (
	ErrManifest         = errors.New("invalid manifest")
	ErrJoinInvariant    = errors.New("manifest entries and OCR records do not join")
	ErrInconsistentKeys = errors.New("inconsistent sequence keys")
	ErrStageInvariant   = errors.New("stage invariant violated")
)

// Error categories reported on a StageError.
const (
	CategoryManifest  = "manifest"
	CategoryJoin      = "join"
	CategoryInvariant = "invariant"
	CategoryCancelled = "cancelled"
	CategoryExport    = "export"
)

// Stage names.
const (
	StageManifest   = "manifest"
	StageOCR        = "ocr"
	StageThreading  = "threading"
	StageEnrichment = "enrichment"
	StageExport     = "export"
)

// StageError is the single error a failed run surfaces.
type StageError struct {
	Stage    string
	Category string
	Err      error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed (%s): %v", e.Stage, e.Category, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// stageError wraps err for stage, deriving the category from its cause.
func stageError(stage string, err error) *StageError {
	var se *StageError
	if errors.As(err, &se) {
		return se
	}
	return &StageError{Stage: stage, Category: categorize(stage, err), Err: err}
}

func categorize(stage string, err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CategoryCancelled
	case errors.Is(err, ErrManifest):
		return CategoryManifest
	case errors.Is(err, ErrJoinInvariant), errors.Is(err, ErrInconsistentKeys):
		return CategoryJoin
	case stage == StageExport:
		return CategoryExport
	default:
		return CategoryInvariant
	}
}
