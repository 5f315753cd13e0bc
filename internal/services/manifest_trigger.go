package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	executions "cloud.google.com/go/workflows/executions/apiv1"
	"github.com/oklog/ulid/v2"

	"github.com/Lllllllleong/lantern/internal/config"
	"github.com/Lllllllleong/lantern/internal/gcp"
	"github.com/Lllllllleong/lantern/internal/models"
)

// GCSEvent is the storage object payload of a finalize event.
type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

// ManifestTriggerFunction registers new manifests as runs and hands them to
// the processing workflow.
type ManifestTriggerFunction struct {
	storageClient    *storage.Client
	firestoreClient  *firestore.Client
	executionsClient *executions.Client
	config           config.Config
}

// NewManifestTrigger creates the clients the trigger needs.
func NewManifestTrigger(ctx context.Context, cfg config.Config) (*ManifestTriggerFunction, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	if cfg.Tracking.FirestoreCollection == "" {
		cfg.Tracking.FirestoreCollection = "runs"
	}

	firestoreClient, err := gcp.NewFirestoreClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}
	executionsClient, err := executions.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Workflows Executions client: %w", err)
	}

	slog.Info("Manifest trigger initialized.", "workflowId", cfg.Workflow.ID, "collection", cfg.Tracking.FirestoreCollection)
	return &ManifestTriggerFunction{
		storageClient:    storageClient,
		firestoreClient:  firestoreClient,
		executionsClient: executionsClient,
		config:           cfg,
	}, nil
}

// IsManifestObject reports whether an uploaded object should start a run.
func IsManifestObject(name string) bool {
	return strings.EqualFold(path.Ext(name), ".csv")
}

// Process registers the manifest in e and starts the workflow. Duplicate
// manifests and non-CSV objects are skipped without error.
func (f *ManifestTriggerFunction) Process(ctx context.Context, e GCSEvent) error {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)
	if !IsManifestObject(e.Name) {
		logCtx.Info("Ignoring non-manifest object.")
		return nil
	}
	logCtx.Info("Processing new manifest.")

	uri := fmt.Sprintf("gs://%s/%s", e.Bucket, e.Name)
	data, err := gcp.ReadObject(ctx, f.storageClient, uri)
	if err != nil {
		logCtx.Error("Failed to download manifest", "error", err)
		return err
	}
	hash := contentHash(data)
	logCtx = logCtx.With("manifestHash", hash)

	isDuplicate, runID, err := f.isDuplicate(ctx, hash)
	if err != nil {
		logCtx.Error("Failed to check for duplicate", "error", err)
		return err
	}
	if isDuplicate {
		logCtx.Info("Duplicate manifest detected. Skipping.", "existingRunId", runID)
		return nil
	}

	docRef, err := f.createRunDocument(ctx, uri, hash)
	if err != nil {
		logCtx.Error("Failed to create run document", "error", err)
		return err
	}
	logCtx = logCtx.With("runId", docRef.ID)
	logCtx.Info("Created run document in Firestore.")

	m, err := ParseManifest(uri, bytes.NewReader(data))
	if err != nil {
		return f.handleError(ctx, logCtx, docRef, CategoryManifest, "failed to parse manifest", err)
	}
	if _, err := docRef.Update(ctx, []firestore.Update{{Path: "pageCount", Value: len(m.Entries)}}); err != nil {
		return f.handleError(ctx, logCtx, docRef, CategoryInvariant, "failed to record page count", err)
	}

	parent := gcp.WorkflowParent(f.config.ProjectID, f.config.Workflow.Location, f.config.Workflow.ID)
	execName, err := gcp.StartWorkflow(ctx, f.executionsClient, parent, models.WorkflowArgument{RunID: docRef.ID, ManifestURI: uri})
	if err != nil {
		return f.handleError(ctx, logCtx, docRef, CategoryInvariant, "failed to trigger workflow execution", err)
	}
	if _, err := docRef.Update(ctx, []firestore.Update{{Path: "workflowExecutionId", Value: execName}}); err != nil {
		logCtx.Warn("Failed to record workflow execution.", "error", err)
	}

	logCtx.Info("Hand-off to workflow complete.", "execution", execName, "pageCount", len(m.Entries))
	return nil
}

func (f *ManifestTriggerFunction) isDuplicate(ctx context.Context, hash string) (bool, string, error) {
	docs, err := f.firestoreClient.Collection(f.config.Tracking.FirestoreCollection).
		Where("manifestHash", "==", hash).Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return false, "", fmt.Errorf("failed to query for duplicates: %w", err)
	}
	if len(docs) > 0 {
		return true, docs[0].Ref.ID, nil
	}
	return false, "", nil
}

func (f *ManifestTriggerFunction) createRunDocument(ctx context.Context, uri, hash string) (*firestore.DocumentRef, error) {
	now := time.Now()
	run := models.Run{
		RunID:        NewRunID(),
		ManifestURI:  uri,
		ManifestHash: hash,
		Status:       models.RunStatusReceived,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	docRef := f.firestoreClient.Collection(f.config.Tracking.FirestoreCollection).Doc(run.RunID)
	if _, err := docRef.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create run document: %w", err)
	}
	return docRef, nil
}

func (f *ManifestTriggerFunction) handleError(ctx context.Context, logCtx *slog.Logger, docRef *firestore.DocumentRef, category, message string, originalErr error) error {
	fullError := fmt.Sprintf("%s: %v", message, originalErr)
	logCtx.Error(message, "error", originalErr)
	updates := []firestore.Update{
		{Path: "status", Value: models.RunStatusFailed},
		{Path: "errorCategory", Value: category},
		{Path: "errorDetails", Value: fullError},
	}
	if _, err := docRef.Update(ctx, updates); err != nil {
		logCtx.Error("CRITICAL: Failed to update Firestore status to FAILED after a processing error.", "updateError", err)
	}
	return fmt.Errorf("%s: %w", message, originalErr)
}

// NewRunID returns a sortable unique run id.
func NewRunID() string {
	return ulid.Make().String()
}

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
