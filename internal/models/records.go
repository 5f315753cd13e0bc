package models

// OCR error reason codes. They are stable strings so exports can be filtered
// on them.
const (
	OCRErrImageUnreadable = "image_unreadable"
	OCRErrImageEmpty      = "image_empty"
)

// Degradation reasons attached to insights.
const (
	DegradedOCRFallback       = "ocr_fallback"
	DegradedOCRError          = "ocr_error"
	DegradedSummaryFallback   = "enrichment_summary_fallback"
	DegradedEntitiesFallback  = "enrichment_entities_fallback"
	DegradedSequenceSummaryFB = "sequence_summary_fallback"
)

// OcrRecord is the uniform OCR output for one manifest entry.
//
// Invariant: Error != nil implies Confidence == 0 and CleanText == "".
type OcrRecord struct {
	PageID      string  `json:"page_id"`
	RawText     string  `json:"raw_text"`
	CleanText   string  `json:"clean_text"`
	Confidence  float64 `json:"confidence"`
	Error       *string `json:"error"`
	Backend     string  `json:"backend,omitempty"`
	Attempts    int     `json:"attempts,omitempty"`
	Degraded    bool    `json:"degraded,omitempty"`
	Cached      bool    `json:"cached,omitempty"`
	ContentHash string  `json:"content_hash,omitempty"`
}

// Failed reports whether the record carries a pipeline-level error.
func (r OcrRecord) Failed() bool { return r.Error != nil }

// FailedOcrRecord builds the record emitted when an image cannot be read.
func FailedOcrRecord(pageID, reason string) OcrRecord {
	return OcrRecord{PageID: pageID, Error: &reason}
}

// Entity is a typed span found in page text. Start and End are byte offsets
// into the clean text; they are -1 when the span came from a language model.
type Entity struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// ThreadedPage is a manifest entry joined with its OCR record.
type ThreadedPage struct {
	Entry  ManifestEntry
	Record OcrRecord
}

// Sequence is an ordered group of pages that form one logical document.
type Sequence struct {
	ID            string
	Pages         []ThreadedPage
	Singleton     bool
	OrderConflict bool

	// FirstRow is the manifest row of the earliest page in the group.
	FirstRow int
}

// PageIDs returns the page ids in sequence order.
func (s Sequence) PageIDs() []string {
	ids := make([]string, len(s.Pages))
	for i, p := range s.Pages {
		ids[i] = p.Entry.PageID
	}
	return ids
}

// PageInsight is the page-level enrichment record, exported one per line.
type PageInsight struct {
	PageID          string            `json:"page_id"`
	SequenceID      string            `json:"sequence_id"`
	SequenceOrder   *int              `json:"sequence_order,omitempty"`
	PagePosition    int               `json:"page_position"`
	ImagePath       string            `json:"image_path"`
	Summary         string            `json:"summary"`
	Entities        []Entity          `json:"entities"`
	SearchText      string            `json:"search_text"`
	DocType         string            `json:"doc_type,omitempty"`
	CleanText       string            `json:"clean_text"`
	Confidence      float64           `json:"confidence"`
	OCRBackend      string            `json:"ocr_backend,omitempty"`
	OCRError        *string           `json:"ocr_error"`
	Degraded        bool              `json:"degraded"`
	DegradedReasons []string          `json:"degraded_reasons,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// SequenceInsight is the sequence-level enrichment record.
type SequenceInsight struct {
	SequenceID    string   `json:"sequence_id"`
	Summary       string   `json:"summary"`
	Entities      []Entity `json:"entities"`
	PageIDs       []string `json:"page_ids"`
	NumPages      int      `json:"num_pages"`
	Singleton     bool     `json:"singleton"`
	OrderConflict bool     `json:"order_conflict,omitempty"`
	SearchText    string   `json:"search_text"`
	Degraded      bool     `json:"degraded"`
}
