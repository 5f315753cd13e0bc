package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// Load builds a Config from the defaults, the optional YAML file at path and
// then the environment. An empty path skips the file; a missing file is an
// error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return Config{}, fmt.Errorf("config file %s not found", path)
			}
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	cfg.ProjectID = GetEnv("PROJECT_ID", cfg.ProjectID)
	cfg.Region = GetEnv("VERTEX_AI_REGION", cfg.Region)
	cfg.ImageRoot = GetEnv("IMAGE_ROOT", cfg.ImageRoot)

	// A set but empty OCR_BACKENDS, or "none", leaves only the placeholder.
	if v, ok := os.LookupEnv("OCR_BACKENDS"); ok {
		cfg.OCR.Backends = splitList(v)
		if len(cfg.OCR.Backends) == 1 && cfg.OCR.Backends[0] == "none" {
			cfg.OCR.Backends = nil
		}
	}
	var err error
	if cfg.OCR.Timeout, err = envSeconds("OCR_TIMEOUT_SECONDS", cfg.OCR.Timeout); err != nil {
		return err
	}
	if cfg.OCR.MaxRetries, err = envInt("MAX_OCR_RETRIES", cfg.OCR.MaxRetries); err != nil {
		return err
	}
	if cfg.OCR.Concurrency, err = envInt("OCR_CONCURRENCY", cfg.OCR.Concurrency); err != nil {
		return err
	}
	if cfg.Cache.Enabled, err = envBool("USE_OCR_CACHE", cfg.Cache.Enabled); err != nil {
		return err
	}
	cfg.Cache.Dir = GetEnv("OCR_CACHE_DIR", cfg.Cache.Dir)
	cfg.Cache.Bucket = GetEnv("OCR_CACHE_BUCKET", cfg.Cache.Bucket)

	cfg.Enrichment.Mode = GetEnv("ENRICHMENT_MODE", cfg.Enrichment.Mode)
	cfg.Enrichment.Backend = GetEnv("ENRICHMENT_BACKEND", cfg.Enrichment.Backend)
	if cfg.Enrichment.MaxSummaryChars, err = envInt("MAX_SUMMARY_CHARS", cfg.Enrichment.MaxSummaryChars); err != nil {
		return err
	}
	if cfg.Enrichment.SequenceSummaries, err = envBool("ENABLE_SEQUENCE_SUMMARY", cfg.Enrichment.SequenceSummaries); err != nil {
		return err
	}
	if cfg.Enrichment.SummarizeSingletons, err = envBool("SUMMARIZE_SINGLETONS", cfg.Enrichment.SummarizeSingletons); err != nil {
		return err
	}
	cfg.Enrichment.TaxonomyPath = GetEnv("TAXONOMY_PATH", cfg.Enrichment.TaxonomyPath)

	// One OpenAI-compatible endpoint serves both OCR and enrichment unless
	// the file configures them separately.
	for _, oc := range []*OpenAIConfig{&cfg.OCR.OpenAI, &cfg.Enrichment.OpenAI} {
		oc.BaseURL = GetEnv("OPENAI_BASE_URL", oc.BaseURL)
		oc.APIKey = GetEnv("OPENAI_API_KEY", oc.APIKey)
		oc.Model = GetEnv("OPENAI_MODEL", oc.Model)
	}

	cfg.Export.Dir = GetEnv("EXPORT_DIR", cfg.Export.Dir)
	cfg.Export.Bucket = GetEnv("EXPORT_BUCKET", cfg.Export.Bucket)
	cfg.Tracking.FirestoreCollection = GetEnv("FIRESTORE_COLLECTION", cfg.Tracking.FirestoreCollection)
	cfg.Workflow.ID = GetEnv("WORKFLOW_ID", cfg.Workflow.ID)
	cfg.Workflow.Location = GetEnv("WORKFLOW_LOCATION", cfg.Workflow.Location)
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.ToLower(part))
		}
	}
	return out
}

func envInt(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not an integer", key, v)
	}
	return n, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback, nil
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("%s: %q is not a boolean", key, v)
}

func envSeconds(key string, fallback time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback, nil
	}
	secs, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a number of seconds", key, v)
	}
	return time.Duration(secs * float64(time.Second)), nil
}
