package ocr

import (
	"context"
	"errors"

	"github.com/Lllllllleong/lantern/internal/llm"
)

// OpenAIName is the backend name of the OpenAI-compatible vision backend.
const OpenAIName = "openai"

const openAISystemPrompt = "You are an OCR engine. You transcribe scanned document pages verbatim."

// OpenAIVision transcribes page images through an OpenAI-compatible chat
// endpoint that accepts image content parts.
type OpenAIVision struct {
	client     *llm.Client
	confidence float64
}

// NewOpenAIVision returns a backend over client.
func NewOpenAIVision(client *llm.Client, confidence float64) *OpenAIVision {
	return &OpenAIVision{client: client, confidence: confidence}
}

func (o *OpenAIVision) Name() string { return OpenAIName }

func (o *OpenAIVision) Extract(ctx context.Context, in Input) (Result, error) {
	if len(in.Data) == 0 {
		return Result{}, NewError(OpenAIName, KindUnsupported, errors.New("no image bytes"))
	}
	mimeType := in.MIMEType
	if mimeType == "" {
		mimeType = GuessMIMEType(in.Source)
	}
	if mimeType == "application/pdf" {
		return Result{}, NewError(OpenAIName, KindUnsupported, errors.New("pdf input not accepted by chat vision endpoints"))
	}

	answer, err := o.client.ChatImage(ctx, openAISystemPrompt, GeminiUserPrompt, mimeType, in.Data)
	if err != nil {
		var se *llm.StatusError
		switch {
		case ctx.Err() != nil:
			return Result{}, NewError(OpenAIName, KindTimeout, err)
		case errors.Is(err, llm.ErrEmptyResponse):
			return Result{}, NewError(OpenAIName, KindMalformed, err)
		case errors.As(err, &se) && !se.Temporary():
			return Result{}, NewError(OpenAIName, KindUnsupported, err)
		}
		return Result{}, NewError(OpenAIName, KindTransport, err)
	}

	confidence := o.confidence
	if answer.FinishReason == "length" {
		confidence /= 2
	}
	return Result{RawText: llm.StripFence(answer.Content), Confidence: confidence}, nil
}
