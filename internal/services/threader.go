package services

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/Lllllllleong/lantern/internal/models"
)

// Threader groups OCR'd pages into ordered sequences.
type Threader struct {
	disabled bool
	logger   *slog.Logger
}

// NewThreader returns a threader. With disabled set every page becomes its
// own sequence.
func NewThreader(disabled bool, logger *slog.Logger) *Threader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Threader{disabled: disabled, logger: logger}
}

type group struct {
	explicit bool
	seq      models.Sequence
}

// Run joins entries with records by page id and groups them. Sequences come
// out in order of first appearance in entries.
func (t *Threader) Run(entries []models.ManifestEntry, records []models.OcrRecord) ([]models.Sequence, error) {
	pages, err := join(entries, records)
	if err != nil {
		return nil, err
	}

	var order []string
	groups := make(map[string]*group)
	for _, p := range pages {
		key, explicit := p.Entry.PageID, false
		if !t.disabled && p.Entry.HasSequence() {
			key, explicit = p.Entry.SequenceID, true
		}
		g, ok := groups[key]
		if !ok {
			g = &group{explicit: explicit, seq: models.Sequence{ID: key, FirstRow: p.Entry.Row}}
			groups[key] = g
			order = append(order, key)
		} else if !explicit || !g.explicit {
			return nil, fmt.Errorf("%w: page %s and sequence %q share the id %q", ErrInconsistentKeys, p.Entry.PageID, key, key)
		}
		g.seq.Pages = append(g.seq.Pages, p)
	}

	sequences := make([]models.Sequence, 0, len(order))
	singletons, conflicts := 0, 0
	for _, key := range order {
		seq := groups[key].seq
		sortPages(seq.Pages)
		seq.Singleton = len(seq.Pages) == 1
		seq.OrderConflict = t.flagConflicts(seq)
		if seq.Singleton {
			singletons++
		}
		if seq.OrderConflict {
			conflicts++
		}
		sequences = append(sequences, seq)
	}
	t.logger.Info("Threading complete.", "pageCount", len(pages), "sequenceCount", len(sequences), "singletons", singletons, "orderConflicts", conflicts)
	return sequences, nil
}

// join pairs every entry with exactly one record.
func join(entries []models.ManifestEntry, records []models.OcrRecord) ([]models.ThreadedPage, error) {
	byID := make(map[string]models.OcrRecord, len(records))
	for _, r := range records {
		if _, dup := byID[r.PageID]; dup {
			return nil, fmt.Errorf("%w: duplicate OCR record for page %q", ErrJoinInvariant, r.PageID)
		}
		byID[r.PageID] = r
	}
	pages := make([]models.ThreadedPage, 0, len(entries))
	used := make(map[string]bool, len(entries))
	for _, e := range entries {
		if used[e.PageID] {
			return nil, fmt.Errorf("%w: page %q appears twice in the manifest", ErrJoinInvariant, e.PageID)
		}
		r, ok := byID[e.PageID]
		if !ok {
			return nil, fmt.Errorf("%w: no OCR record for page %q", ErrJoinInvariant, e.PageID)
		}
		used[e.PageID] = true
		pages = append(pages, models.ThreadedPage{Entry: e, Record: r})
	}
	if len(byID) != len(used) {
		for id := range byID {
			if !used[id] {
				return nil, fmt.Errorf("%w: OCR record for unknown page %q", ErrJoinInvariant, id)
			}
		}
	}
	return pages, nil
}

// sortPages orders by sequence_order, unordered pages last, manifest row
// breaking ties.
func sortPages(pages []models.ThreadedPage) {
	sort.SliceStable(pages, func(i, j int) bool {
		a, b := pages[i].Entry, pages[j].Entry
		switch {
		case a.SequenceOrder != nil && b.SequenceOrder != nil:
			if *a.SequenceOrder != *b.SequenceOrder {
				return *a.SequenceOrder < *b.SequenceOrder
			}
		case a.SequenceOrder != nil:
			return true
		case b.SequenceOrder != nil:
			return false
		}
		return a.Row < b.Row
	})
}

// flagConflicts reports and logs repeated sequence_order values in a
// sorted sequence.
func (t *Threader) flagConflicts(seq models.Sequence) bool {
	conflict := false
	for i := 1; i < len(seq.Pages); i++ {
		prev, cur := seq.Pages[i-1].Entry, seq.Pages[i].Entry
		if prev.SequenceOrder == nil || cur.SequenceOrder == nil || *prev.SequenceOrder != *cur.SequenceOrder {
			continue
		}
		conflict = true
		t.logger.Warn("Duplicate sequence order, keeping manifest order.",
			"sequenceId", seq.ID, "sequenceOrder", *cur.SequenceOrder,
			"pageIds", []string{prev.PageID, cur.PageID})
	}
	return conflict
}
