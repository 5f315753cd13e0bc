package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/Lllllllleong/lantern/internal/models"
)

// Tracker records the lifecycle of a run. Tracking failures never fail the
// run; the pipeline only logs them.
type Tracker interface {
	Start(ctx context.Context, runID, manifestURI string, pageCount int) error
	Stage(ctx context.Context, runID, status string) error
	Complete(ctx context.Context, runID string, summary RunSummary) error
	Fail(ctx context.Context, runID string, err *StageError) error
}

// RunSummary is what a completed run reports to its tracker.
type RunSummary struct {
	PageCount          int
	SequenceCount      int
	DegradedPages      int
	PagesExportURI     string
	SequencesExportURI string
}

// NopTracker discards every update.
type NopTracker struct{}

func (NopTracker) Start(context.Context, string, string, int) error { return nil }
func (NopTracker) Stage(context.Context, string, string) error { return nil }
func (NopTracker) Complete(context.Context, string, RunSummary) error { return nil }
func (NopTracker) Fail(context.Context, string, *StageError) error { return nil }

// FirestoreTracker keeps one document per run, keyed by run id.
type FirestoreTracker struct {
	collection *firestore.CollectionRef
	now        func() time.Time
}

// NewFirestoreTracker tracks runs in the named collection.
func NewFirestoreTracker(client *firestore.Client, collection string) *FirestoreTracker {
	return &FirestoreTracker{collection: client.Collection(collection), now: time.Now}
}

func (t *FirestoreTracker) Start(ctx context.Context, runID, manifestURI string, pageCount int) error {
	now := t.now()
	_, err := t.collection.Doc(runID).Set(ctx, map[string]interface{}{
		"runId":       runID,
		"manifestUri": manifestURI,
		"status":      models.RunStatusOCR,
		"pageCount":   pageCount,
		"updatedAt":   now,
	}, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("failed to start run document: %w", err)
	}
	return nil
}

func (t *FirestoreTracker) Stage(ctx context.Context, runID, status string) error {
	return t.update(ctx, runID, []firestore.Update{{Path: "status", Value: status}})
}

func (t *FirestoreTracker) Complete(ctx context.Context, runID string, s RunSummary) error {
	return t.update(ctx, runID, []firestore.Update{
		{Path: "status", Value: models.RunStatusCompleted},
		{Path: "pageCount", Value: s.PageCount},
		{Path: "sequenceCount", Value: s.SequenceCount},
		{Path: "degradedPages", Value: s.DegradedPages},
		{Path: "pagesExportUri", Value: s.PagesExportURI},
		{Path: "sequencesExportUri", Value: s.SequencesExportURI},
	})
}

func (t *FirestoreTracker) Fail(ctx context.Context, runID string, stageErr *StageError) error {
	return t.update(ctx, runID, []firestore.Update{
		{Path: "status", Value: models.RunStatusFailed},
		{Path: "errorCategory", Value: stageErr.Category},
		{Path: "errorDetails", Value: stageErr.Error()},
	})
}

func (t *FirestoreTracker) update(ctx context.Context, runID string, updates []firestore.Update) error {
	updates = append(updates, firestore.Update{Path: "updatedAt", Value: t.now()})
	if _, err := t.collection.Doc(runID).Update(ctx, updates); err != nil {
		return fmt.Errorf("failed to update run %s: %w", runID, err)
	}
	return nil
}

// logTrackerError mirrors how a failed status write is reported: loudly,
// without changing the run's outcome.
func logTrackerError(logger *slog.Logger, op string, err error) {
	if err != nil {
		logger.Error("Failed to update run tracking.", "op", op, "error", err)
	}
}
