package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"cloud.google.com/go/storage"

	"github.com/Lllllllleong/lantern/internal/gcp"
	"github.com/Lllllllleong/lantern/internal/models"
)

const contentType = "application/x-ndjson"

// Locations are where a run's record sets were written. GCS locations win
// when both targets are configured.
type Locations struct {
	PagesURI     string
	SequencesURI string
}

// Exporter writes pages.jsonl and sequences.jsonl to a local directory, a
// GCS prefix, or both.
type Exporter struct {
	dir        string
	bucket     *storage.BucketHandle
	bucketName string
	prefix     string
	logger     *slog.Logger
}

// NewExporter returns an exporter. An empty dir or nil bucket disables that
// target.
func NewExporter(dir string, bucket *storage.BucketHandle, bucketName, prefix string, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{dir: dir, bucket: bucket, bucketName: bucketName, prefix: prefix, logger: logger}
}

// Export writes both record sets for runID.
func (e *Exporter) Export(ctx context.Context, runID string, pages []models.PageInsight, sequences []models.SequenceInsight) (Locations, error) {
	if e.dir == "" && e.bucket == nil {
		return Locations{}, errors.New("no export target configured")
	}
	var pagesBuf, seqBuf bytes.Buffer
	if err := WriteJSONL(&pagesBuf, pages); err != nil {
		return Locations{}, fmt.Errorf("failed to encode pages: %w", err)
	}
	if err := WriteJSONL(&seqBuf, sequences); err != nil {
		return Locations{}, fmt.Errorf("failed to encode sequences: %w", err)
	}

	var loc Locations
	if e.dir != "" {
		loc.PagesURI = filepath.Join(e.dir, PagesFile)
		loc.SequencesURI = filepath.Join(e.dir, SequencesFile)
	}
	// Remote objects go first so a failed upload never leaves local files
	// published.
	var uploaded []string
	if e.bucket != nil {
		base := path.Join(e.prefix, runID)
		pagesObj, seqObj := path.Join(base, PagesFile), path.Join(base, SequencesFile)
		if err := gcp.WriteObject(ctx, e.bucket, pagesObj, contentType, pagesBuf.Bytes()); err != nil {
			return Locations{}, fmt.Errorf("failed to upload pages: %w", err)
		}
		uploaded = append(uploaded, pagesObj)
		if err := gcp.WriteObject(ctx, e.bucket, seqObj, contentType, seqBuf.Bytes()); err != nil {
			e.rollback(ctx, runID, uploaded)
			return Locations{}, fmt.Errorf("failed to upload sequences: %w", err)
		}
		uploaded = append(uploaded, seqObj)
		loc.PagesURI = fmt.Sprintf("gs://%s/%s", e.bucketName, pagesObj)
		loc.SequencesURI = fmt.Sprintf("gs://%s/%s", e.bucketName, seqObj)
	}
	if e.dir != "" {
		if err := writeLocal(e.dir, map[string][]byte{PagesFile: pagesBuf.Bytes(), SequencesFile: seqBuf.Bytes()}); err != nil {
			e.rollback(ctx, runID, uploaded)
			return Locations{}, err
		}
	}
	e.logger.Info("Exported record sets.", "runId", runID, "pages", len(pages), "sequences", len(sequences), "pagesUri", loc.PagesURI)
	return loc, nil
}

// rollback deletes objects written before a later export step failed. It
// runs on a context that survives cancellation of the run.
func (e *Exporter) rollback(ctx context.Context, runID string, objects []string) {
	ctx = context.WithoutCancel(ctx)
	for _, obj := range objects {
		if err := e.bucket.Object(obj).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
			e.logger.Error("Failed to remove partial export.", "runId", runID, "gcsObject", obj, "error", err)
		}
	}
}

// writeLocal stages every file before renaming any of them into place. A
// failed rename removes the files already published.
func writeLocal(dir string, files map[string][]byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create export dir: %w", err)
	}
	staged := make(map[string]string, len(files))
	defer func() {
		for _, tmp := range staged {
			os.Remove(tmp)
		}
	}()
	for name, data := range files {
		tmp, err := os.CreateTemp(dir, "."+name+".*")
		if err != nil {
			return fmt.Errorf("failed to stage %s: %w", name, err)
		}
		staged[name] = tmp.Name()
		_, werr := tmp.Write(data)
		cerr := tmp.Close()
		if werr != nil || cerr != nil {
			return fmt.Errorf("failed to write %s: %w", name, errors.Join(werr, cerr))
		}
	}
	var published []string
	for name, tmp := range staged {
		dst := filepath.Join(dir, name)
		if err := os.Rename(tmp, dst); err != nil {
			for _, p := range published {
				os.Remove(p)
			}
			return fmt.Errorf("failed to publish %s: %w", name, err)
		}
		delete(staged, name)
		published = append(published, dst)
	}
	return nil
}
