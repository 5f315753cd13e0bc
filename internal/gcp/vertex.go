package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/vertexai/genai"
)

// OCRSystemPrompt configures the transcription model.
const OCRSystemPrompt = "You are a meticulous OCR engine for scanned archival documents. You transcribe text verbatim and never add commentary."

// EnrichmentSystemPrompt configures the enrichment model.
const EnrichmentSystemPrompt = "You are a document analyst. You summarize scanned correspondence and records and extract typed entities. You always answer with valid JSON."

// VertexClient holds the preconfigured generative models.
type VertexClient struct {
	OCRModel        *genai.GenerativeModel
	EnrichmentModel *genai.GenerativeModel
	baseClient      *genai.Client
}

// NewVertexClient creates a client holding the OCR and enrichment models.
// An empty model name leaves that model nil.
func NewVertexClient(ctx context.Context, projectID, region, ocrModel, enrichmentModel string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}
	vc := &VertexClient{baseClient: baseClient}

	if ocrModel != "" {
		m := baseClient.GenerativeModel(ocrModel)
		m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(OCRSystemPrompt)}}
		m.GenerationConfig = genai.GenerationConfig{
			Temperature: genai.Ptr[float32](0.0),
		}
		m.SafetySettings = permissiveSafety()
		vc.OCRModel = m
	}

	if enrichmentModel != "" {
		m := baseClient.GenerativeModel(enrichmentModel)
		m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(EnrichmentSystemPrompt)}}
		m.GenerationConfig = genai.GenerationConfig{
			ResponseMIMEType: "application/json",
			Temperature:      genai.Ptr[float32](0.0),
		}
		m.SafetySettings = permissiveSafety()
		vc.EnrichmentModel = m
	}
	return vc, nil
}

// Archival scans routinely contain material the default filters block.
func permissiveSafety() []*genai.SafetySetting {
	return []*genai.SafetySetting{
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
	}
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}
