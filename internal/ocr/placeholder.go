package ocr

import (
	"context"
	"fmt"
)

// PlaceholderName is the backend name reported for terminal fallback text.
const PlaceholderName = "placeholder"

// DefaultFallbackConfidence is the confidence assigned to placeholder text.
const DefaultFallbackConfidence = 0.1

// Placeholder is the terminal backend. It never fails and never touches the
// image; its text only marks the page as unread.
type Placeholder struct {
	Confidence float64
}

func (Placeholder) Name() string { return PlaceholderName }

func (p Placeholder) Extract(_ context.Context, in Input) (Result, error) {
	return Result{
		RawText:    fmt.Sprintf("[OCR unavailable] text for %s", in.FileName()),
		Confidence: clamp01(p.Confidence),
	}, nil
}
