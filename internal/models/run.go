package models

import "time"

// Run statuses, in the order a healthy run moves through them.
const (
	RunStatusReceived  = "RECEIVED"
	RunStatusOCR       = "OCR"
	RunStatusThreading = "THREADING"
	RunStatusEnriching = "ENRICHING"
	RunStatusCompleted = "COMPLETED"
	RunStatusFailed    = "FAILED"
)

// Run is the tracking record for one pipeline run in Firestore.
// It mirrors the lifecycle of the run so operators can see where it stopped.
type Run struct {
	RunID               string    `firestore:"runId,omitempty"`
	ManifestURI         string    `firestore:"manifestUri,omitempty"`
	ManifestHash        string    `firestore:"manifestHash,omitempty"`
	Status              string    `firestore:"status,omitempty"`
	ErrorCategory       string    `firestore:"errorCategory,omitempty"`
	ErrorDetails        string    `firestore:"errorDetails,omitempty"`
	PageCount           int       `firestore:"pageCount,omitempty"`
	SequenceCount       int       `firestore:"sequenceCount,omitempty"`
	DegradedPages       int       `firestore:"degradedPages,omitempty"`
	PagesExportURI      string    `firestore:"pagesExportUri,omitempty"`
	SequencesExportURI  string    `firestore:"sequencesExportUri,omitempty"`
	WorkflowExecutionID string    `firestore:"workflowExecutionId,omitempty"` // For traceability
	CreatedAt           time.Time `firestore:"createdAt,omitempty"`
	UpdatedAt           time.Time `firestore:"updatedAt,omitempty"`
}
