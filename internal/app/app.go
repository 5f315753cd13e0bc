// Package app builds the pipeline stages and their clients from a
// config.Config. A Runtime is created once per process so circuit breakers
// and caches outlive a single run.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"

	"github.com/Lllllllleong/lantern/internal/cache"
	"github.com/Lllllllleong/lantern/internal/config"
	"github.com/Lllllllleong/lantern/internal/enrich"
	"github.com/Lllllllleong/lantern/internal/export"
	"github.com/Lllllllleong/lantern/internal/gcp"
	"github.com/Lllllllleong/lantern/internal/llm"
	"github.com/Lllllllleong/lantern/internal/ocr"
	"github.com/Lllllllleong/lantern/internal/ocr/tesseract"
	"github.com/Lllllllleong/lantern/internal/services"
)

// Runtime owns the long-lived clients of a process.
type Runtime struct {
	config    config.Config
	logger    *slog.Logger
	storage   *storage.Client
	vertex    *gcp.VertexClient
	firestore *firestore.Client

	chain    *ocr.Chain
	store    cache.Store
	strategy enrich.Strategy
}

// Option configures New.
type Option func(*options)

type options struct {
	storage bool
	logger  *slog.Logger
}

// WithStorage forces a Cloud Storage client even when the configuration
// names no bucket, e.g. because the manifest itself lives in GCS.
func WithStorage() Option {
	return func(o *options) { o.storage = true }
}

// WithLogger sets the logger handed to every stage.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New validates cfg and creates only the clients it needs.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*Runtime, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	r := &Runtime{config: cfg, logger: o.logger}

	if o.storage || NeedsStorage(cfg) {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		r.storage = client
	}

	ocrModel, enrichModel := vertexModels(cfg)
	if ocrModel != "" || enrichModel != "" {
		vc, err := gcp.NewVertexClient(ctx, cfg.ProjectID, cfg.Region, ocrModel, enrichModel)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("failed to create vertex client: %w", err)
		}
		r.vertex = vc
	}

	if cfg.Tracking.FirestoreCollection != "" && cfg.ProjectID != "" {
		client, err := gcp.NewFirestoreClient(ctx, cfg.ProjectID)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("failed to create firestore client: %w", err)
		}
		r.firestore = client
	}

	chain, err := BuildChain(cfg, r.vertex, r.logger)
	if err != nil {
		r.Close()
		return nil, err
	}
	r.chain = chain

	if r.store, err = BuildCache(cfg.Cache, r.storage); err != nil {
		r.Close()
		return nil, err
	}
	if r.strategy, err = BuildStrategy(cfg.Enrichment, r.vertex, r.logger); err != nil {
		r.Close()
		return nil, err
	}

	r.logger.Info("Runtime initialized.",
		"ocrBackends", strings.Join(chain.Backends(), ","),
		"enrichmentMode", r.strategy.Mode(),
		"cache", r.store != nil,
		"tracking", r.firestore != nil)
	return r, nil
}

// NeedsStorage reports whether cfg points at any GCS location.
func NeedsStorage(cfg config.Config) bool {
	return gcp.IsGCSURI(cfg.ImageRoot) ||
		cfg.Cache.Enabled && cfg.Cache.Bucket != "" ||
		cfg.Export.Bucket != ""
}

func vertexModels(cfg config.Config) (ocrModel, enrichModel string) {
	for _, b := range cfg.OCR.Backends {
		if b == config.BackendGemini {
			ocrModel = cfg.OCR.Gemini.Model
		}
	}
	if cfg.Enrichment.Mode == config.ModeEnhanced && cfg.Enrichment.Backend == config.BackendGemini {
		enrichModel = cfg.Enrichment.GeminiModel
	}
	return ocrModel, enrichModel
}

// BuildChain assembles the OCR chain in the configured backend order. The
// placeholder always closes it.
func BuildChain(cfg config.Config, vertex *gcp.VertexClient, logger *slog.Logger) (*ocr.Chain, error) {
	links := make([]ocr.Link, 0, len(cfg.OCR.Backends))
	for _, name := range cfg.OCR.Backends {
		policy := cfg.OCR.PolicyFor(name)
		var backend ocr.Backend
		switch name {
		case config.BackendGemini:
			if vertex == nil || vertex.OCRModel == nil {
				return nil, errors.New("gemini OCR backend configured without a vertex model")
			}
			backend = ocr.NewGemini(vertex.OCRModel, cfg.OCR.Gemini.Confidence)
		case config.BackendOpenAI:
			backend = ocr.NewOpenAIVision(openAIClient(cfg.OCR.OpenAI), cfg.OCR.OpenAI.Confidence)
		case config.BackendTesseract:
			backend = tesseract.New(cfg.OCR.Tesseract.Languages...)
		default:
			return nil, fmt.Errorf("unknown OCR backend %q", name)
		}
		links = append(links, ocr.Link{
			Backend:    backend,
			Timeout:    policy.Timeout,
			MaxRetries: policy.MaxRetries,
			Breaker:    ocr.NewBreaker(cfg.OCR.Breaker.Threshold, cfg.OCR.Breaker.ResetTimeout),
		})
	}
	return ocr.NewChain(links, ocr.Placeholder{Confidence: cfg.OCR.FallbackConfidence},
		ocr.WithBackoff(cfg.OCR.Backoff), ocr.WithLogger(logger)), nil
}

// openAIClient leaves timeouts to the per-call context.
func openAIClient(c config.OpenAIConfig) *llm.Client {
	return &llm.Client{
		BaseURL:    c.BaseURL,
		APIKey:     c.APIKey,
		Model:      c.Model,
		HTTPClient: &http.Client{},
	}
}

// BuildCache returns nil when caching is off. A bucket wins over a
// directory; with neither, results are cached in memory for the process.
func BuildCache(cfg config.CacheConfig, client *storage.Client) (cache.Store, error) {
	switch {
	case !cfg.Enabled:
		return nil, nil
	case cfg.Bucket != "":
		if client == nil {
			return nil, errors.New("cache bucket configured without a storage client")
		}
		return cache.NewGCS(client, cfg.Bucket, cfg.Prefix), nil
	case cfg.Dir != "":
		f, err := cache.NewFile(cfg.Dir)
		if err != nil {
			return nil, fmt.Errorf("failed to open OCR cache: %w", err)
		}
		return f, nil
	default:
		return cache.NewMemory(), nil
	}
}

// BuildStrategy returns the enrichment strategy for cfg.Mode.
func BuildStrategy(cfg config.EnrichmentConfig, vertex *gcp.VertexClient, logger *slog.Logger) (enrich.Strategy, error) {
	var tax *enrich.Taxonomy
	if cfg.TaxonomyPath != "" {
		t, err := enrich.LoadTaxonomy(cfg.TaxonomyPath)
		if err != nil {
			return nil, err
		}
		tax = t
	}
	rules := enrich.NewDeterministic(tax)
	if cfg.Mode != config.ModeEnhanced {
		return enrich.NewRules(rules), nil
	}

	var primary enrich.Backend
	switch cfg.Backend {
	case config.BackendGemini:
		if vertex == nil || vertex.EnrichmentModel == nil {
			return nil, errors.New("gemini enrichment configured without a vertex model")
		}
		primary = enrich.NewGemini(vertex.EnrichmentModel)
	case config.BackendOpenAI:
		primary = enrich.NewOpenAI(openAIClient(cfg.OpenAI))
	default:
		return nil, fmt.Errorf("unknown enrichment backend %q", cfg.Backend)
	}
	return enrich.NewEnhanced(enrich.WithTimeout(primary, cfg.Timeout), rules, logger), nil
}

// Pipeline builds a pipeline for one run. Per-run settings (image root,
// export location) come from cfg; backends and caches are shared.
func (r *Runtime) Pipeline(cfg config.Config) *services.Pipeline {
	images := services.NewImageLoader(cfg.ImageRoot, r.storage)
	ocrStage := services.NewOCRStage(r.chain, images, r.store, services.OCRStageConfig{
		Concurrency: cfg.OCR.Concurrency,
		Normalize:   cfg.Normalize,
	}, r.logger)
	threader := services.NewThreader(cfg.Threading.Disabled, r.logger)
	enricher := services.NewEnricher(r.strategy, services.EnricherConfig{
		MaxSummaryChars:       cfg.Enrichment.MaxSummaryChars,
		SummarizeSingletons:   cfg.Enrichment.SummarizeSingletons,
		SkipSequenceSummaries: !cfg.Enrichment.SequenceSummaries,
		Concurrency:           cfg.Enrichment.Concurrency,
	}, r.logger)

	opts := []services.PipelineOption{services.WithLogger(r.logger)}
	if e := r.exporter(cfg.Export); e != nil {
		opts = append(opts, services.WithExporter(e))
	}
	if r.firestore != nil {
		opts = append(opts, services.WithTracker(services.NewFirestoreTracker(r.firestore, r.config.Tracking.FirestoreCollection)))
	}
	return services.NewPipeline(ocrStage, threader, enricher, opts...)
}

func (r *Runtime) exporter(cfg config.ExportConfig) *export.Exporter {
	var bucket *storage.BucketHandle
	if cfg.Bucket != "" && r.storage != nil {
		bucket = r.storage.Bucket(cfg.Bucket)
	}
	if cfg.Dir == "" && bucket == nil {
		return nil
	}
	return export.NewExporter(cfg.Dir, bucket, cfg.Bucket, cfg.Prefix, r.logger)
}

// Manifests returns a reader for local and gs:// manifests.
func (r *Runtime) Manifests() *services.ManifestReader {
	return services.NewManifestReader(r.storage)
}

// Config returns the configuration the runtime was built with.
func (r *Runtime) Config() config.Config { return r.config }

// Close releases every client. It is safe on a partly built Runtime.
func (r *Runtime) Close() error {
	var errs []error
	if r.vertex != nil {
		errs = append(errs, r.vertex.Close())
	}
	if r.firestore != nil {
		errs = append(errs, r.firestore.Close())
	}
	if r.storage != nil {
		errs = append(errs, r.storage.Close())
	}
	return errors.Join(errs...)
}
