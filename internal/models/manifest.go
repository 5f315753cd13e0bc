package models

import "strings"

// ManifestEntry is one manifest row describing a source image.
type ManifestEntry struct {
	PageID        string            `json:"page_id"`
	ImagePath     string            `json:"image_path"`
	SequenceID    string            `json:"sequence_id,omitempty"`
	SequenceOrder *int              `json:"sequence_order,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`

	// Row is the zero-based position of the entry in the manifest. It is the
	// tie-break key for every ordering decision downstream.
	Row int `json:"row"`
}

// HasSequence reports whether the entry carries a usable sequence id.
func (e ManifestEntry) HasSequence() bool {
	return strings.TrimSpace(e.SequenceID) != ""
}

// Meta returns a metadata value, or "" when the column is absent.
func (e ManifestEntry) Meta(key string) string {
	if e.Metadata == nil {
		return ""
	}
	return e.Metadata[key]
}

// Manifest is the ordered set of entries for one run.
type Manifest struct {
	RunID   string
	Source  string
	Entries []ManifestEntry
}
