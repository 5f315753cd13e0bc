package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/Lllllllleong/lantern/internal/config"
	"github.com/Lllllllleong/lantern/internal/services"
)

var (
	triggerInstance *services.ManifestTriggerFunction
	once            sync.Once
	initErr         error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.CloudEvent("TriggerPipeline", triggerPipeline)
}

// main is required by the Go Functions Framework.
func main() {}

// triggerPipeline registers a newly uploaded manifest and starts its
// workflow.
func triggerPipeline(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		cfg, err := config.Load(config.GetEnv("CONFIG_PATH", ""))
		if err != nil {
			initErr = err
			return
		}
		triggerInstance, initErr = services.NewManifestTrigger(context.Background(), cfg)
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	var gcsEvent services.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	// Errors are logged with context inside Process.
	return triggerInstance.Process(ctx, gcsEvent)
}
