package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	"github.com/Lllllllleong/lantern/internal/app"
	"github.com/Lllllllleong/lantern/internal/models"
	"github.com/Lllllllleong/lantern/internal/services"
)

var (
	runnerInstance *app.PipelineRunnerFunction
	once           sync.Once
	initErr        error
)

func init() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	// "HandleRunPipeline" is the entry point name configured in GCP.
	functions.HTTP("HandleRunPipeline", handleRunPipeline)
}

// main is required by the Go Functions Framework.
func main() {}

// handleRunPipeline runs one manifest for the processing workflow.
func handleRunPipeline(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		runnerInstance, initErr = app.NewPipelineRunner(context.Background())
	})
	if initErr != nil {
		slog.Error("CRITICAL: Pipeline runner initialization failed.", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	var req models.PipelineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("Could not decode request body.", "error", err)
		http.Error(w, "Bad Request: could not parse JSON", http.StatusBadRequest)
		return
	}

	res, err := runnerInstance.Process(r.Context(), &req)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(res); err != nil {
		slog.Error("Failed to write response.", "error", err)
	}
}

// statusFor maps a failed run to a status the workflow can branch on:
// 4xx failures are not worth retrying.
func statusFor(err error) int {
	if errors.Is(err, app.ErrBadRequest) {
		return http.StatusBadRequest
	}
	var se *services.StageError
	if errors.As(err, &se) {
		switch se.Category {
		case services.CategoryManifest, services.CategoryJoin:
			return http.StatusUnprocessableEntity
		case services.CategoryCancelled:
			return http.StatusServiceUnavailable
		}
	}
	return http.StatusInternalServerError
}
