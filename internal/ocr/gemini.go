package ocr

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"

	"github.com/Lllllllleong/lantern/internal/llm"
)

// GeminiName is the backend name of the Vertex AI vision backend.
const GeminiName = "gemini"

// GeminiUserPrompt is sent with every page image.
const GeminiUserPrompt = `Transcribe all text visible on this scanned page exactly as written.
Preserve line breaks. Do not summarize, translate, or describe images.
Return only the transcription with no preamble. If the page has no legible text, return an empty response.`

// refusalPhrases mark answers where the model declined instead of
// transcribing.
var refusalPhrases = []string{
	"i am unable to",
	"i cannot fulfill",
	"i cannot answer",
	"i cannot provide",
	"as a large language model",
}

// Gemini transcribes page images with a Vertex AI generative model. Gemini
// reports no confidence, so a configured value is used and halved when the
// answer was cut short.
type Gemini struct {
	model      llm.ContentGenerator
	confidence float64
}

// NewGemini returns a backend over a preconfigured model.
func NewGemini(model llm.ContentGenerator, confidence float64) *Gemini {
	return &Gemini{model: model, confidence: confidence}
}

func (g *Gemini) Name() string { return GeminiName }

func (g *Gemini) Extract(ctx context.Context, in Input) (Result, error) {
	mimeType := in.MIMEType
	if mimeType == "" {
		mimeType = GuessMIMEType(in.Source)
	}
	var image genai.Part
	if strings.HasPrefix(in.Source, "gs://") {
		image = genai.FileData{MIMEType: mimeType, FileURI: in.Source}
	} else {
		if len(in.Data) == 0 {
			return Result{}, NewError(GeminiName, KindUnsupported, errors.New("no image bytes"))
		}
		image = genai.Blob{MIMEType: mimeType, Data: in.Data}
	}

	resp, err := g.model.GenerateContent(ctx, image, genai.Text(GeminiUserPrompt))
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, NewError(GeminiName, KindTimeout, err)
		}
		return Result{}, NewError(GeminiName, KindTransport, err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		if resp != nil && resp.PromptFeedback != nil {
			return Result{}, NewError(GeminiName, KindUnsupported, fmt.Errorf("prompt blocked: %v", resp.PromptFeedback.BlockReason))
		}
		return Result{}, NewError(GeminiName, KindMalformed, errors.New("response has no candidates"))
	}

	cand := resp.Candidates[0]
	confidence := g.confidence
	switch cand.FinishReason {
	case genai.FinishReasonSafety, genai.FinishReasonRecitation:
		return Result{}, NewError(GeminiName, KindUnsupported, fmt.Errorf("generation stopped: %v", cand.FinishReason))
	case genai.FinishReasonMaxTokens:
		confidence /= 2
	}

	text := llm.ResponseText(resp)
	lower := strings.ToLower(text)
	for _, phrase := range refusalPhrases {
		if strings.Contains(lower, phrase) {
			return Result{}, NewError(GeminiName, KindUnsupported, errors.New("model refused the page"))
		}
	}
	return Result{RawText: text, Confidence: confidence}, nil
}
