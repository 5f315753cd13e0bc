// Package tesseract provides a local OCR backend over libtesseract. It is a
// separate package so the cgo dependency stays out of builds that do not
// wire it.
package tesseract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/Lllllllleong/lantern/internal/ocr"
)

// Name is the backend name.
const Name = "tesseract"

// Backend runs Tesseract on page images. A fresh client is created per call
// because gosseract clients are not safe for concurrent use.
type Backend struct {
	languages     []string
	clientFactory func() *gosseract.Client
}

// New returns a backend for the given languages ("eng" when empty).
func New(languages ...string) *Backend {
	if len(languages) == 0 {
		languages = []string{"eng"}
	}
	return &Backend{languages: languages, clientFactory: gosseract.NewClient}
}

func (b *Backend) Name() string { return Name }

// Extract recognizes the page. The gosseract call cannot be interrupted; ctx
// is checked before it starts and the chain bounds the wait.
func (b *Backend) Extract(ctx context.Context, in ocr.Input) (ocr.Result, error) {
	if err := ctx.Err(); err != nil {
		return ocr.Result{}, ocr.NewError(Name, ocr.KindTimeout, err)
	}
	if len(in.Data) == 0 {
		return ocr.Result{}, ocr.NewError(Name, ocr.KindUnsupported, errors.New("no image bytes"))
	}
	if in.MIMEType == "application/pdf" {
		return ocr.Result{}, ocr.NewError(Name, ocr.KindUnsupported, errors.New("pdf input needs rasterizing first"))
	}

	c := b.clientFactory()
	defer c.Close()
	if err := c.SetLanguage(b.languages...); err != nil {
		return ocr.Result{}, ocr.NewError(Name, ocr.KindUnsupported, fmt.Errorf("set languages: %w", err))
	}
	if err := c.SetImageFromBytes(in.Data); err != nil {
		return ocr.Result{}, ocr.NewError(Name, ocr.KindMalformed, fmt.Errorf("set image: %w", err))
	}
	text, err := c.Text()
	if err != nil {
		return ocr.Result{}, ocr.NewError(Name, ocr.KindTransport, fmt.Errorf("recognize text: %w", err))
	}
	return ocr.Result{RawText: strings.TrimSpace(text), Confidence: meanWordConfidence(c)}, nil
}

func meanWordConfidence(c *gosseract.Client) float64 {
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return 0
	}
	var sum float64
	for _, box := range boxes {
		sum += box.Confidence / 100.0
	}
	return sum / float64(len(boxes))
}
