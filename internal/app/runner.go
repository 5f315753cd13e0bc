package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Lllllllleong/lantern/internal/config"
	"github.com/Lllllllleong/lantern/internal/models"
	"github.com/Lllllllleong/lantern/internal/services"
)

// ErrBadRequest marks requests the runner rejects before starting a run.
var ErrBadRequest = errors.New("bad pipeline request")

// PipelineRunnerFunction runs the pipeline for one workflow request.
type PipelineRunnerFunction struct {
	runtime *Runtime
	config  config.Config
}

// NewPipelineRunner loads the configuration from CONFIG_PATH and the
// environment. Exports go to EXPORT_BUCKET only; the function has no
// durable local disk.
func NewPipelineRunner(ctx context.Context) (*PipelineRunnerFunction, error) {
	cfg, err := config.Load(config.GetEnv("CONFIG_PATH", ""))
	if err != nil {
		return nil, err
	}
	if cfg.Export.Bucket == "" {
		return nil, fmt.Errorf("EXPORT_BUCKET environment variable must be set")
	}
	cfg.Export.Dir = ""
	if cfg.Cache.Bucket == "" {
		cfg.Cache.Dir = ""
	}
	if cfg.Tracking.FirestoreCollection == "" {
		cfg.Tracking.FirestoreCollection = "runs"
	}

	rt, err := New(ctx, cfg, WithStorage())
	if err != nil {
		return nil, err
	}
	slog.Info("Pipeline runner initialized.", "exportBucket", cfg.Export.Bucket, "collection", cfg.Tracking.FirestoreCollection)
	return &PipelineRunnerFunction{runtime: rt, config: cfg}, nil
}

// RunConfig applies the per-request overrides in req to base.
func RunConfig(base config.Config, req *models.PipelineRequest) config.Config {
	cfg := base
	if req.ImageRoot != "" {
		cfg.ImageRoot = req.ImageRoot
	}
	if req.ExportPrefix != "" {
		cfg.Export.Prefix = req.ExportPrefix
	}
	return cfg
}

// Process runs the manifest named in req. Failed runs return the
// *services.StageError; the run document already carries the failure.
func (f *PipelineRunnerFunction) Process(ctx context.Context, req *models.PipelineRequest) (*models.PipelineResponse, error) {
	logCtx := slog.With("runId", req.RunID, "manifestUri", req.ManifestURI, "executionId", req.ExecutionID)
	if req.RunID == "" || req.ManifestURI == "" {
		return nil, fmt.Errorf("%w: runId and manifestUri are required", ErrBadRequest)
	}
	logCtx.Info("Processing pipeline request.")

	pipeline := f.runtime.Pipeline(RunConfig(f.config, req))
	m, err := f.runtime.Manifests().Load(ctx, req.ManifestURI)
	if err != nil {
		return nil, pipeline.Abort(ctx, req.RunID, err)
	}
	m.RunID = req.RunID

	res, err := pipeline.Run(ctx, m)
	if err != nil {
		return nil, err
	}
	return Response(res), nil
}

// Response converts a completed run into the workflow payload.
func Response(res *services.Result) *models.PipelineResponse {
	return &models.PipelineResponse{
		Status:             models.RunStatusCompleted,
		RunID:              res.RunID,
		PageCount:          res.Stats.Pages,
		SequenceCount:      res.Stats.Sequences,
		DegradedPages:      res.Stats.Degraded,
		PagesExportURI:     res.Exports.PagesURI,
		SequencesExportURI: res.Exports.SequencesURI,
	}
}
