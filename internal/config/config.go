// Package config holds the run configuration. A Config is built once per
// run and handed to every stage constructor; nothing reads settings from
// package-level state.
package config

import (
	"fmt"
	"time"

	"github.com/Lllllllleong/lantern/internal/textclean"
)

// OCR backend names accepted in OCRConfig.Backends.
const (
	BackendGemini    = "gemini"
	BackendOpenAI    = "openai"
	BackendTesseract = "tesseract"
)

// Enrichment modes.
const (
	ModeDeterministic = "deterministic"
	ModeEnhanced      = "enhanced"
)

// Config is the full pipeline configuration.
type Config struct {
	ProjectID string `yaml:"project_id"`
	Region    string `yaml:"region"`

	// ImageRoot is prepended to relative manifest image paths. It may be a
	// local directory or a gs://bucket/prefix.
	ImageRoot string `yaml:"image_root"`

	OCR        OCRConfig         `yaml:"ocr"`
	Cache      CacheConfig       `yaml:"cache"`
	Normalize  textclean.Options `yaml:"normalize"`
	Threading  ThreadingConfig   `yaml:"threading"`
	Enrichment EnrichmentConfig  `yaml:"enrichment"`
	Export     ExportConfig      `yaml:"export"`
	Tracking   TrackingConfig    `yaml:"tracking"`
	Workflow   WorkflowConfig    `yaml:"workflow"`
}

// CallPolicy bounds calls to one backend. A zero timeout or an unset
// max_retries inherits the OCR-wide value; max_retries: 0 disables retries.
type CallPolicy struct {
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries *int          `yaml:"max_retries"`
}

// Policy is a CallPolicy with the OCR-wide defaults applied.
type Policy struct {
	Timeout    time.Duration
	MaxRetries int
}

// OCRConfig configures the OCR stage and its backend chain.
type OCRConfig struct {
	// Backends lists the live backends in the order they are tried. The
	// placeholder backend always closes the chain and is not listed here.
	Backends           []string        `yaml:"backends"`
	Timeout            time.Duration   `yaml:"timeout"`
	MaxRetries         int             `yaml:"max_retries"`
	Backoff            time.Duration   `yaml:"backoff"`
	Concurrency        int             `yaml:"concurrency"`
	FallbackConfidence float64         `yaml:"fallback_confidence"`
	Breaker            BreakerConfig   `yaml:"breaker"`
	Gemini             GeminiOCRConfig `yaml:"gemini"`
	OpenAI             OpenAIConfig    `yaml:"openai"`
	Tesseract          TesseractConfig `yaml:"tesseract"`
}

// BreakerConfig configures the per-backend circuit breaker. A zero
// threshold disables it.
type BreakerConfig struct {
	Threshold    int           `yaml:"threshold"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// GeminiOCRConfig configures the Vertex AI vision backend.
type GeminiOCRConfig struct {
	CallPolicy `yaml:",inline"`
	Model      string  `yaml:"model"`
	Confidence float64 `yaml:"confidence"`
}

// OpenAIConfig configures an OpenAI-compatible chat completions endpoint.
type OpenAIConfig struct {
	CallPolicy `yaml:",inline"`
	BaseURL    string  `yaml:"base_url"`
	APIKey     string  `yaml:"api_key"`
	Model      string  `yaml:"model"`
	Confidence float64 `yaml:"confidence"`
}

// TesseractConfig configures the local Tesseract backend.
type TesseractConfig struct {
	CallPolicy `yaml:",inline"`
	Languages  []string `yaml:"languages"`
}

// CacheConfig configures the content-addressed OCR cache. Bucket wins over
// Dir when both are set.
type CacheConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
	Bucket  string `yaml:"bucket"`
	Prefix  string `yaml:"prefix"`
}

// ThreadingConfig configures thread reconstruction.
type ThreadingConfig struct {
	// Disabled treats every page as its own sequence.
	Disabled bool `yaml:"disabled"`
}

// EnrichmentConfig configures the enrichment stage.
type EnrichmentConfig struct {
	Mode                string        `yaml:"mode"`
	Backend             string        `yaml:"backend"`
	MaxSummaryChars     int           `yaml:"max_summary_chars"`
	SequenceSummaries   bool          `yaml:"sequence_summaries"`
	SummarizeSingletons bool          `yaml:"summarize_singletons"`
	TaxonomyPath        string        `yaml:"taxonomy_path"`
	Timeout             time.Duration `yaml:"timeout"`
	Concurrency         int           `yaml:"concurrency"`
	GeminiModel         string        `yaml:"gemini_model"`
	OpenAI              OpenAIConfig  `yaml:"openai"`
}

// ExportConfig says where pages.jsonl and sequences.jsonl are written.
type ExportConfig struct {
	Dir    string `yaml:"dir"`
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
}

// TrackingConfig enables Firestore run tracking when a collection is set.
type TrackingConfig struct {
	FirestoreCollection string `yaml:"firestore_collection"`
}

// WorkflowConfig names the Cloud Workflow started for new manifests.
type WorkflowConfig struct {
	ID       string `yaml:"id"`
	Location string `yaml:"location"`
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() Config {
	return Config{
		Region: "us-central1",
		OCR: OCRConfig{
			Backends:           []string{BackendGemini},
			Timeout:            30 * time.Second,
			MaxRetries:         2,
			Backoff:            500 * time.Millisecond,
			Concurrency:        4,
			FallbackConfidence: 0.1,
			Breaker:            BreakerConfig{Threshold: 5, ResetTimeout: 30 * time.Second},
			Gemini:             GeminiOCRConfig{Model: "gemini-1.5-flash", Confidence: 0.9},
			OpenAI:             OpenAIConfig{Model: "gpt-4o-mini", Confidence: 0.85},
			Tesseract:          TesseractConfig{Languages: []string{"eng"}},
		},
		Cache: CacheConfig{Enabled: true, Dir: "./data/ocr_cache", Prefix: "ocr-cache"},
		Enrichment: EnrichmentConfig{
			Mode:              ModeDeterministic,
			Backend:           BackendGemini,
			MaxSummaryChars:   600,
			SequenceSummaries: true,
			Timeout:           60 * time.Second,
			Concurrency:       4,
			GeminiModel:       "gemini-1.5-pro",
			OpenAI:            OpenAIConfig{Model: "gpt-4o-mini"},
		},
		Export:   ExportConfig{Dir: "./data/outputs", Prefix: "exports"},
		Workflow: WorkflowConfig{ID: "lantern-pipeline", Location: "us-central1"},
	}
}

// PolicyFor returns the effective call policy for a live backend.
func (c OCRConfig) PolicyFor(backend string) Policy {
	cp := c.callPolicy(backend)
	p := Policy{Timeout: cp.Timeout, MaxRetries: c.MaxRetries}
	if p.Timeout <= 0 {
		p.Timeout = c.Timeout
	}
	if cp.MaxRetries != nil {
		p.MaxRetries = *cp.MaxRetries
	}
	return p
}

func (c OCRConfig) callPolicy(backend string) CallPolicy {
	switch backend {
	case BackendGemini:
		return c.Gemini.CallPolicy
	case BackendOpenAI:
		return c.OpenAI.CallPolicy
	case BackendTesseract:
		return c.Tesseract.CallPolicy
	}
	return CallPolicy{}
}

// Validate rejects configurations the pipeline cannot run with.
func (c Config) Validate() error {
	seen := make(map[string]bool, len(c.OCR.Backends))
	for _, b := range c.OCR.Backends {
		switch b {
		case BackendGemini, BackendOpenAI, BackendTesseract:
		default:
			return fmt.Errorf("ocr.backends: unknown backend %q", b)
		}
		if seen[b] {
			return fmt.Errorf("ocr.backends: backend %q listed twice", b)
		}
		seen[b] = true
		if r := c.OCR.callPolicy(b).MaxRetries; r != nil && *r < 0 {
			return fmt.Errorf("ocr.%s.max_retries must not be negative, got %d", b, *r)
		}
	}
	if c.OCR.Timeout <= 0 {
		return fmt.Errorf("ocr.timeout must be positive, got %s", c.OCR.Timeout)
	}
	if c.OCR.MaxRetries < 0 {
		return fmt.Errorf("ocr.max_retries must not be negative, got %d", c.OCR.MaxRetries)
	}
	if c.OCR.Concurrency <= 0 {
		return fmt.Errorf("ocr.concurrency must be positive, got %d", c.OCR.Concurrency)
	}
	if c.OCR.FallbackConfidence < 0 || c.OCR.FallbackConfidence > 1 {
		return fmt.Errorf("ocr.fallback_confidence must be within [0,1], got %v", c.OCR.FallbackConfidence)
	}
	if (seen[BackendGemini] || c.Enrichment.Mode == ModeEnhanced && c.Enrichment.Backend == BackendGemini) && c.ProjectID == "" {
		return fmt.Errorf("project_id must be set when a Gemini backend is used")
	}
	if seen[BackendOpenAI] && c.OCR.OpenAI.BaseURL == "" {
		return fmt.Errorf("ocr.openai.base_url must be set when the openai backend is used")
	}
	switch c.Enrichment.Mode {
	case ModeDeterministic:
	case ModeEnhanced:
		switch c.Enrichment.Backend {
		case BackendGemini:
		case BackendOpenAI:
			if c.Enrichment.OpenAI.BaseURL == "" {
				return fmt.Errorf("enrichment.openai.base_url must be set for the openai enrichment backend")
			}
		default:
			return fmt.Errorf("enrichment.backend: unknown backend %q", c.Enrichment.Backend)
		}
	default:
		return fmt.Errorf("enrichment.mode: unknown mode %q", c.Enrichment.Mode)
	}
	if c.Enrichment.MaxSummaryChars <= 0 {
		return fmt.Errorf("enrichment.max_summary_chars must be positive, got %d", c.Enrichment.MaxSummaryChars)
	}
	if c.Enrichment.Concurrency <= 0 {
		return fmt.Errorf("enrichment.concurrency must be positive, got %d", c.Enrichment.Concurrency)
	}
	return nil
}
