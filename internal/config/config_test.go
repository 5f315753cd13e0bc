package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PROJECT_ID", "demo-project")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.OCR.Backends; len(got) != 1 || got[0] != BackendGemini {
		t.Errorf("backends = %v", got)
	}
	if cfg.OCR.Timeout != 30*time.Second || cfg.OCR.MaxRetries != 2 {
		t.Errorf("timeout/retries = %s/%d", cfg.OCR.Timeout, cfg.OCR.MaxRetries)
	}
	if cfg.OCR.FallbackConfidence != 0.1 {
		t.Errorf("fallback confidence = %v", cfg.OCR.FallbackConfidence)
	}
	if cfg.Enrichment.Mode != ModeDeterministic || cfg.Enrichment.MaxSummaryChars != 600 {
		t.Errorf("enrichment = %+v", cfg.Enrichment)
	}
	if !cfg.Cache.Enabled {
		t.Errorf("cache should be enabled by default")
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lantern.yaml")
	yamlDoc := `
project_id: from-file
ocr:
  backends: [tesseract]
  timeout: 5s
  max_retries: 1
  tesseract:
    languages: [eng, deu]
    timeout: 2s
enrichment:
  max_summary_chars: 200
threading:
  disabled: true
`
	if err := os.WriteFile(path, []byte(yamlDoc), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MAX_SUMMARY_CHARS", "120")
	t.Setenv("OCR_CONCURRENCY", "8")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ProjectID != "from-file" {
		t.Errorf("project = %q", cfg.ProjectID)
	}
	if cfg.OCR.Backends[0] != BackendTesseract || cfg.OCR.Timeout != 5*time.Second {
		t.Errorf("ocr = %+v", cfg.OCR)
	}
	if got := strings.Join(cfg.OCR.Tesseract.Languages, "+"); got != "eng+deu" {
		t.Errorf("languages = %q", got)
	}
	if cfg.Enrichment.MaxSummaryChars != 120 {
		t.Errorf("env override lost: %d", cfg.Enrichment.MaxSummaryChars)
	}
	if cfg.OCR.Concurrency != 8 {
		t.Errorf("concurrency = %d", cfg.OCR.Concurrency)
	}
	if !cfg.Threading.Disabled {
		t.Errorf("threading should be disabled")
	}
	// Fields absent from the file keep their defaults.
	if cfg.OCR.Backoff != 500*time.Millisecond {
		t.Errorf("backoff = %s", cfg.OCR.Backoff)
	}

	p := cfg.OCR.PolicyFor(BackendTesseract)
	if p.Timeout != 2*time.Second || p.MaxRetries != 1 {
		t.Errorf("policy = %+v", p)
	}
}

func TestLoadEnvBackendList(t *testing.T) {
	t.Setenv("PROJECT_ID", "p")
	t.Setenv("OCR_BACKENDS", " Gemini, tesseract ,")
	t.Setenv("OCR_TIMEOUT_SECONDS", "1.5")
	t.Setenv("USE_OCR_CACHE", "false")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := strings.Join(cfg.OCR.Backends, ","); got != "gemini,tesseract" {
		t.Errorf("backends = %q", got)
	}
	if cfg.OCR.Timeout != 1500*time.Millisecond {
		t.Errorf("timeout = %s", cfg.OCR.Timeout)
	}
	if cfg.Cache.Enabled {
		t.Errorf("cache should be disabled")
	}
}

func TestPolicyForZeroRetries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lantern.yaml")
	yamlDoc := `
project_id: p
ocr:
  backends: [gemini, tesseract]
  max_retries: 2
  tesseract:
    max_retries: 0
`
	if err := os.WriteFile(path, []byte(yamlDoc), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p := cfg.OCR.PolicyFor(BackendTesseract); p.MaxRetries != 0 {
		t.Errorf("tesseract retries = %d, want 0", p.MaxRetries)
	}
	if p := cfg.OCR.PolicyFor(BackendGemini); p.MaxRetries != 2 || p.Timeout != cfg.OCR.Timeout {
		t.Errorf("gemini policy = %+v, want inherited", p)
	}
}

func TestLoadEnvNoBackends(t *testing.T) {
	for _, v := range []string{"", "none", " NONE "} {
		t.Run(v, func(t *testing.T) {
			t.Setenv("OCR_BACKENDS", v)
			cfg, err := Load("")
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if len(cfg.OCR.Backends) != 0 {
				t.Fatalf("backends = %v, want none", cfg.OCR.Backends)
			}
		})
	}
}

func TestLoadSequenceSummaryFlags(t *testing.T) {
	t.Setenv("PROJECT_ID", "p")
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Enrichment.SequenceSummaries || cfg.Enrichment.SummarizeSingletons {
		t.Fatalf("defaults = %+v", cfg.Enrichment)
	}

	t.Setenv("ENABLE_SEQUENCE_SUMMARY", "false")
	t.Setenv("SUMMARIZE_SINGLETONS", "true")
	cfg, err = Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Enrichment.SequenceSummaries || !cfg.Enrichment.SummarizeSingletons {
		t.Fatalf("env overrides = %+v", cfg.Enrichment)
	}
}

func TestLoadRejectsBadEnv(t *testing.T) {
	t.Setenv("MAX_OCR_RETRIES", "two")
	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), "MAX_OCR_RETRIES") {
		t.Fatalf("expected MAX_OCR_RETRIES error, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	base := Default()
	base.ProjectID = "p"

	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"ok", func(*Config) {}, ""},
		{"no live backends", func(c *Config) { c.OCR.Backends = nil }, ""},
		{"unknown backend", func(c *Config) { c.OCR.Backends = []string{"abbyy"} }, "unknown backend"},
		{"duplicate backend", func(c *Config) { c.OCR.Backends = []string{"gemini", "gemini"} }, "listed twice"},
		{"zero timeout", func(c *Config) { c.OCR.Timeout = 0 }, "ocr.timeout"},
		{"negative retries", func(c *Config) { c.OCR.MaxRetries = -1 }, "max_retries"},
		{"negative backend retries", func(c *Config) {
			n := -1
			c.OCR.Gemini.MaxRetries = &n
		}, "ocr.gemini.max_retries"},
		{"zero concurrency", func(c *Config) { c.OCR.Concurrency = 0 }, "concurrency"},
		{"confidence range", func(c *Config) { c.OCR.FallbackConfidence = 1.5 }, "fallback_confidence"},
		{"gemini needs project", func(c *Config) { c.ProjectID = "" }, "project_id"},
		{"openai needs url", func(c *Config) { c.OCR.Backends = []string{"openai"} }, "base_url"},
		{"unknown mode", func(c *Config) { c.Enrichment.Mode = "creative" }, "enrichment.mode"},
		{"enhanced openai needs url", func(c *Config) {
			c.Enrichment.Mode = ModeEnhanced
			c.Enrichment.Backend = BackendOpenAI
		}, "enrichment.openai.base_url"},
		{"summary cap", func(c *Config) { c.Enrichment.MaxSummaryChars = 0 }, "max_summary_chars"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			cfg.OCR.Backends = append([]string(nil), base.OCR.Backends...)
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error = %v, want containing %q", err, tc.wantErr)
			}
		})
	}
}
