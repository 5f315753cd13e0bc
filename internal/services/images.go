package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/Lllllllleong/lantern/internal/gcp"
	"github.com/Lllllllleong/lantern/internal/models"
	"github.com/Lllllllleong/lantern/internal/ocr"
)

var (
	errImageEmpty   = errors.New("image has no content")
	errMultiPagePDF = errors.New("pdf input must have exactly one page")
)

// ImageSource loads the bytes behind a manifest entry.
type ImageSource interface {
	Load(ctx context.Context, entry models.ManifestEntry) (ocr.Input, error)
}

// ImageLoader reads images from the local filesystem or GCS. Relative
// manifest paths are resolved against root.
type ImageLoader struct {
	root          string
	storageClient *storage.Client
}

// NewImageLoader returns a loader. client may be nil when no image lives in
// GCS.
func NewImageLoader(root string, client *storage.Client) *ImageLoader {
	return &ImageLoader{root: root, storageClient: client}
}

// Resolve returns the location the loader reads for a manifest path.
func (l *ImageLoader) Resolve(p string) string {
	if gcp.IsGCSURI(p) || filepath.IsAbs(p) || l.root == "" {
		return p
	}
	if gcp.IsGCSURI(l.root) {
		return strings.TrimSuffix(l.root, "/") + "/" + path.Clean(filepath.ToSlash(p))
	}
	return filepath.Join(l.root, p)
}

func (l *ImageLoader) Load(ctx context.Context, entry models.ManifestEntry) (ocr.Input, error) {
	src := l.Resolve(entry.ImagePath)
	var (
		data []byte
		err  error
	)
	if gcp.IsGCSURI(src) {
		if l.storageClient == nil {
			return ocr.Input{}, fmt.Errorf("no storage client for %s", src)
		}
		data, err = gcp.ReadObject(ctx, l.storageClient, src)
	} else {
		data, err = os.ReadFile(src)
	}
	if err != nil {
		return ocr.Input{}, err
	}
	if len(data) == 0 {
		return ocr.Input{}, fmt.Errorf("%s: %w", src, errImageEmpty)
	}

	mime := ocr.GuessMIMEType(src)
	if mime == "application/pdf" {
		if err := checkSinglePagePDF(data); err != nil {
			return ocr.Input{}, fmt.Errorf("%s: %w", src, err)
		}
	}
	return ocr.Input{PageID: entry.PageID, Source: src, Data: data, MIMEType: mime}, nil
}

// checkSinglePagePDF accepts scanned PDFs that hold exactly one page.
func checkSinglePagePDF(data []byte) error {
	n, err := api.PageCount(bytes.NewReader(data), relaxedConfig())
	if err != nil {
		return fmt.Errorf("failed to read pdf: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("%w: got %d", errMultiPagePDF, n)
	}
	return nil
}

// loadFailureReason maps an image load error to the record's reason code.
func loadFailureReason(err error) string {
	if errors.Is(err, errImageEmpty) {
		return models.OCRErrImageEmpty
	}
	return models.OCRErrImageUnreadable
}
