// Package ocr defines the OCR backend contract and the fallback chain that
// drives an ordered list of backends for one image.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// Input is one image handed to a backend.
type Input struct {
	PageID string
	// Source is the path or gs:// URI the bytes were read from.
	Source   string
	Data     []byte
	MIMEType string
}

// FileName returns the base name of the image source, or the page id when
// the source is unknown.
func (in Input) FileName() string {
	if in.Source == "" {
		return in.PageID
	}
	return path.Base(filepath.ToSlash(in.Source))
}

// Result is what a backend reports for one image.
type Result struct {
	RawText    string
	Confidence float64
}

// Backend extracts text from an image. Implementations must honor ctx.
type Backend interface {
	Name() string
	Extract(ctx context.Context, in Input) (Result, error)
}

// ErrorKind classifies backend failures.
type ErrorKind string

const (
	KindTimeout     ErrorKind = "timeout"
	KindTransport   ErrorKind = "transport"
	KindMalformed   ErrorKind = "malformed"
	KindEmpty       ErrorKind = "empty"
	KindUnsupported ErrorKind = "unsupported"
	KindCircuitOpen ErrorKind = "circuit_open"
)

// BackendError is the typed failure returned by backends and recorded by
// the chain.
type BackendError struct {
	Backend string
	Kind    ErrorKind
	Err     error
}

func (e *BackendError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("ocr: %s: %s", e.Backend, e.Kind)
	}
	return fmt.Sprintf("ocr: %s: %s: %v", e.Backend, e.Kind, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// NewError wraps err as a BackendError of the given kind.
func NewError(backend string, kind ErrorKind, err error) *BackendError {
	return &BackendError{Backend: backend, Kind: kind, Err: err}
}

// classify turns any error returned by a backend call into a BackendError.
func classify(backend string, err error) *BackendError {
	var be *BackendError
	if errors.As(err, &be) {
		return be
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(backend, KindTimeout, err)
	}
	return NewError(backend, KindTransport, err)
}

// GuessMIMEType maps an image path to the MIME type sent to vision
// backends. Unknown extensions are treated as JPEG.
func GuessMIMEType(p string) string {
	switch strings.ToLower(path.Ext(filepath.ToSlash(p))) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".tif", ".tiff":
		return "image/tiff"
	case ".gif":
		return "image/gif"
	case ".bmp":
		return "image/bmp"
	case ".pdf":
		return "application/pdf"
	default:
		return "image/jpeg"
	}
}

func clamp01(v float64) float64 {
	switch {
	case v != v || v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
