package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/Lllllllleong/lantern/internal/gcp"
	"github.com/Lllllllleong/lantern/internal/models"
)

// Manifest column names with fixed meaning. Every other column becomes
// entry metadata.
const (
	ColPageID        = "page_id"
	ColImagePath     = "image_path"
	ColSequenceID    = "sequence_id"
	ColSequenceOrder = "sequence_order"

	// colFilePath is accepted in place of image_path.
	colFilePath = "file_path"
)

// ManifestReader loads manifests from local files or gs:// objects.
type ManifestReader struct {
	storageClient *storage.Client
}

// NewManifestReader returns a reader. client may be nil when no manifest
// lives in GCS.
func NewManifestReader(client *storage.Client) *ManifestReader {
	return &ManifestReader{storageClient: client}
}

// Load reads and parses the manifest at source.
func (r *ManifestReader) Load(ctx context.Context, source string) (*models.Manifest, error) {
	var (
		data []byte
		err  error
	)
	if gcp.IsGCSURI(source) {
		if r.storageClient == nil {
			return nil, fmt.Errorf("%w: no storage client for %s", ErrManifest, source)
		}
		data, err = gcp.ReadObject(ctx, r.storageClient, source)
	} else {
		data, err = os.ReadFile(source)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read %s: %v", ErrManifest, source, err)
	}
	return ParseManifest(source, bytes.NewReader(data))
}

// ParseManifest parses a CSV manifest with a header row. Page ids must be
// unique; sequence_order must be an integer when present.
func ParseManifest(source string, r io.Reader) (*models.Manifest, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %s is empty", ErrManifest, source)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read header: %v", ErrManifest, err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		header[i] = h
		cols[h] = i
	}
	if _, ok := cols[ColImagePath]; !ok {
		if i, ok := cols[colFilePath]; ok {
			cols[ColImagePath] = i
			header[i] = ColImagePath
		}
	}
	for _, req := range []string{ColPageID, ColImagePath} {
		if _, ok := cols[req]; !ok {
			return nil, fmt.Errorf("%w: missing required column %q", ErrManifest, req)
		}
	}

	m := &models.Manifest{Source: source}
	seen := make(map[string]int)
	for row := 0; ; row++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrManifest, err)
		}
		entry, err := parseRow(header, rec, row)
		if err != nil {
			return nil, err
		}
		if first, dup := seen[entry.PageID]; dup {
			return nil, fmt.Errorf("%w: duplicate page_id %q in rows %d and %d", ErrManifest, entry.PageID, first+1, row+1)
		}
		seen[entry.PageID] = row
		m.Entries = append(m.Entries, entry)
	}
	return m, nil
}

func parseRow(header, rec []string, row int) (models.ManifestEntry, error) {
	entry := models.ManifestEntry{Row: row}
	for i, val := range rec {
		val = strings.TrimSpace(val)
		switch header[i] {
		case ColPageID:
			entry.PageID = val
		case ColImagePath:
			entry.ImagePath = val
		case ColSequenceID:
			entry.SequenceID = val
		case ColSequenceOrder:
			order, err := parseOrder(val)
			if err != nil {
				return entry, fmt.Errorf("%w: row %d: %v", ErrManifest, row+1, err)
			}
			entry.SequenceOrder = order
		default:
			if val == "" {
				continue
			}
			if entry.Metadata == nil {
				entry.Metadata = make(map[string]string)
			}
			entry.Metadata[header[i]] = val
		}
	}
	if entry.PageID == "" {
		return entry, fmt.Errorf("%w: row %d: empty page_id", ErrManifest, row+1)
	}
	if entry.ImagePath == "" {
		return entry, fmt.Errorf("%w: row %d: empty image_path for %s", ErrManifest, row+1, entry.PageID)
	}
	return entry, nil
}

// parseOrder accepts "3" and spreadsheet exports such as "3.0".
func parseOrder(val string) (*int, error) {
	if val == "" {
		return nil, nil
	}
	if n, err := strconv.Atoi(val); err == nil {
		return &n, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return nil, fmt.Errorf("sequence_order %q is not an integer", val)
	}
	n := int(f)
	return &n, nil
}

// ValidateManifest checks the structural rules a parsed manifest already
// satisfies, for manifests built in code.
func ValidateManifest(m *models.Manifest) error {
	if m == nil {
		return fmt.Errorf("%w: nil manifest", ErrManifest)
	}
	seen := make(map[string]bool, len(m.Entries))
	for i, e := range m.Entries {
		if strings.TrimSpace(e.PageID) == "" {
			return fmt.Errorf("%w: entry %d: empty page_id", ErrManifest, i)
		}
		if strings.TrimSpace(e.ImagePath) == "" {
			return fmt.Errorf("%w: entry %d: empty image_path for %s", ErrManifest, i, e.PageID)
		}
		if seen[e.PageID] {
			return fmt.Errorf("%w: duplicate page_id %q", ErrManifest, e.PageID)
		}
		seen[e.PageID] = true
	}
	return nil
}
