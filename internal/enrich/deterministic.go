package enrich

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/Lllllllleong/lantern/internal/models"
	"github.com/Lllllllleong/lantern/internal/textclean"
)

// Entity types produced by the rule set.
const (
	EntityDate       = "DATE"
	EntityMoney      = "MONEY"
	EntityEmail      = "EMAIL"
	EntityPhone      = "PHONE"
	EntityIdentifier = "IDENTIFIER"
	EntityPerson     = "PERSON"
	EntityOrg        = "ORG"
)

// DocTypeOther is assigned when no keyword rule matches.
const DocTypeOther = "other"

// DeterministicName is the backend name of the rule-based backend.
const DeterministicName = "deterministic"

const month = `(?:Jan(?:uary)?|Feb(?:ruary)?|Mar(?:ch)?|Apr(?:il)?|May|June?|July?|Aug(?:ust)?|Sep(?:t(?:ember)?)?|Oct(?:ober)?|Nov(?:ember)?|Dec(?:ember)?)`

type entityRule struct {
	typ string
	re  *regexp.Regexp
}

// Rules run in this order; the order only matters for entities that start
// and end at the same offsets.
var entityRules = []entityRule{
	{EntityEmail, regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)},
	{EntityMoney, regexp.MustCompile(`\$\s?\d{1,3}(?:,\d{3})+(?:\.\d{2})?|\$\s?\d+(?:\.\d{2})?|\b\d+(?:\.\d{2})?\s?(?:USD|dollars)\b`)},
	{EntityDate, regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b|\b\d{1,2}/\d{1,2}/\d{2,4}\b|\b` + month + `\.?\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4}\b|\b\d{1,2}\s+` + month + `\.?,?\s+\d{4}\b`)},
	{EntityPhone, regexp.MustCompile(`(?:\+?1[\s.\-]?)?(?:\(\d{3}\)\s?|\b\d{3}[\s.\-])\d{3}[\s.\-]\d{4}\b`)},
	{EntityIdentifier, regexp.MustCompile(`\b[A-Z][A-Z0-9]*(?:[_\-][A-Z0-9]+)*[_\-]\d{3,}\b|\bNo\.\s?\d{3,}\b|#\s?\d{3,}\b`)},
}

// capitalized matches runs of two to four capitalized words, optionally
// with middle initials, as candidate names.
var capitalized = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+(?:[A-Z]\.|[A-Z][a-z]+|&)){1,3}`)

var wordSpan = regexp.MustCompile(`\S+`)

var honorific = regexp.MustCompile(`\b(?:Mr|Mrs|Ms|Dr|Prof|Hon|Sen|Rep|Gov|Judge)\.?\s+[A-Z][a-z]+(?:\s+(?:[A-Z]\.|[A-Z][a-z]+))*`)

var orgSuffixes = map[string]bool{
	"inc": true, "corp": true, "corporation": true, "llc": true, "ltd": true,
	"company": true, "co": true, "bank": true, "foundation": true, "university": true,
	"department": true, "committee": true, "association": true, "group": true,
	"trust": true, "partners": true, "agency": true, "institute": true,
}

// nameStopwords are never part of a name; a capitalized run is split
// wherever one appears.
var nameStopwords = map[string]bool{
	"dear": true, "the": true, "this": true, "that": true, "from": true, "to": true,
	"subject": true, "re": true, "sincerely": true, "regards": true, "date": true,
	"page": true, "a": true, "an": true, "and": true, "in": true, "on": true,
	"for": true, "of": true, "with": true, "we": true, "i": true, "it": true,
	"monday": true, "tuesday": true, "wednesday": true, "thursday": true,
	"friday": true, "saturday": true, "sunday": true,
	"january": true, "february": true, "march": true, "april": true, "may": true,
	"june": true, "july": true, "august": true, "september": true, "october": true,
	"november": true, "december": true,
}

type docTypeRule struct {
	label string
	re    *regexp.Regexp
}

func newDocTypeRule(label string, keywords []string) (docTypeRule, error) {
	alts := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			alts = append(alts, boundedTerm(k))
		}
	}
	if len(alts) == 0 {
		return docTypeRule{label: label, re: regexp.MustCompile(`$^`)}, nil
	}
	re, err := regexp.Compile(`(?i)(?:` + strings.Join(alts, "|") + `)`)
	if err != nil {
		return docTypeRule{}, err
	}
	return docTypeRule{label: label, re: re}, nil
}

// boundedTerm quotes k and anchors it with \b on the sides that end in a
// word character, so keywords like "subject:" still match.
func boundedTerm(k string) string {
	q := regexp.QuoteMeta(k)
	first, _ := utf8.DecodeRuneInString(k)
	last, _ := utf8.DecodeLastRuneInString(k)
	if isWordRune(first) {
		q = `\b` + q
	}
	if isWordRune(last) {
		q += `\b`
	}
	return q
}

func mustDocTypeRule(label string, keywords ...string) docTypeRule {
	r, err := newDocTypeRule(label, keywords)
	if err != nil {
		panic(err)
	}
	return r
}

// builtinDocTypes are checked in order after any taxonomy doc types.
var builtinDocTypes = []docTypeRule{
	mustDocTypeRule("email", "subject:", "sent:", "cc:", "forwarded message"),
	mustDocTypeRule("invoice", "invoice", "amount due", "bill to", "remit to"),
	mustDocTypeRule("legal", "plaintiff", "defendant", "affidavit", "deposition", "court", "subpoena"),
	mustDocTypeRule("memo", "memorandum", "memo"),
	mustDocTypeRule("letter", "dear", "sincerely", "yours truly", "regards"),
	mustDocTypeRule("report", "report", "findings", "summary of"),
}

// Deterministic is the rule-based backend. Its output depends only on its
// input and its taxonomy.
type Deterministic struct {
	taxonomy *Taxonomy
}

// NewDeterministic returns a rule-based backend. tax may be nil.
func NewDeterministic(tax *Taxonomy) *Deterministic {
	return &Deterministic{taxonomy: tax}
}

func (d *Deterministic) Name() string { return DeterministicName }

// Summarize returns the leading words of text within maxChars.
func (d *Deterministic) Summarize(_ context.Context, text string, maxChars int) (string, error) {
	return textclean.TruncateWords(text, maxChars), nil
}

// ExtractEntities never fails.
func (d *Deterministic) ExtractEntities(_ context.Context, text string) ([]models.Entity, error) {
	return d.Entities(text), nil
}

// Entities runs every rule over text and returns the hits ordered by offset,
// deduplicated by type and lower-cased text.
func (d *Deterministic) Entities(text string) []models.Entity {
	if text == "" {
		return []models.Entity{}
	}
	var found []models.Entity
	for _, r := range entityRules {
		for _, loc := range r.re.FindAllStringIndex(text, -1) {
			found = append(found, models.Entity{Type: r.typ, Text: text[loc[0]:loc[1]], Start: loc[0], End: loc[1]})
		}
	}
	found = append(found, names(text)...)
	found = append(found, d.taxonomy.match(text)...)

	sort.SliceStable(found, func(i, j int) bool {
		a, b := found[i], found[j]
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		if a.End != b.End {
			return a.End > b.End
		}
		return a.Type < b.Type
	})
	return Dedupe(found)
}

// DocType classifies text by keyword rules. Taxonomy doc types are checked
// before the built-in ones.
func (d *Deterministic) DocType(text string) string {
	if d.taxonomy != nil {
		for _, r := range d.taxonomy.docRules {
			if r.re.MatchString(text) {
				return r.label
			}
		}
	}
	for _, r := range builtinDocTypes {
		if r.re.MatchString(text) {
			return r.label
		}
	}
	return DocTypeOther
}

// names finds honorific names and capitalized runs. A run is split at
// stopwords and loses any "&" at either end; pieces ending in an
// organization suffix are typed ORG, the rest PERSON.
func names(text string) []models.Entity {
	var out []models.Entity
	titled := honorific.FindAllStringIndex(text, -1)
	for _, loc := range titled {
		out = append(out, models.Entity{Type: EntityPerson, Text: text[loc[0]:loc[1]], Start: loc[0], End: loc[1]})
	}
	for _, loc := range capitalized.FindAllStringIndex(text, -1) {
		for _, seg := range nameSegments(text, loc[0], loc[1]) {
			start, end := seg[0][0], seg[len(seg)-1][1]
			if len(seg) < 2 || within(titled, start, end) {
				continue
			}
			typ := EntityPerson
			last := text[seg[len(seg)-1][0]:end]
			if orgSuffixes[strings.ToLower(strings.TrimSuffix(last, "."))] {
				typ = EntityOrg
			}
			out = append(out, models.Entity{Type: typ, Text: text[start:end], Start: start, End: end})
		}
	}
	return out
}

// nameSegments returns the word spans of text[start:end] grouped into the
// pieces left after dropping stopwords and edge ampersands.
func nameSegments(text string, start, end int) [][][2]int {
	var segs [][][2]int
	var cur [][2]int
	flush := func() {
		for len(cur) > 0 && text[cur[len(cur)-1][0]:cur[len(cur)-1][1]] == "&" {
			cur = cur[:len(cur)-1]
		}
		if len(cur) > 0 {
			segs = append(segs, cur)
		}
		cur = nil
	}
	for _, w := range wordSpan.FindAllStringIndex(text[start:end], -1) {
		ws, we := start+w[0], start+w[1]
		word := text[ws:we]
		switch {
		case nameStopwords[strings.ToLower(word)]:
			flush()
		case word == "&" && len(cur) == 0:
		default:
			cur = append(cur, [2]int{ws, we})
		}
	}
	flush()
	return segs
}

func within(spans [][]int, start, end int) bool {
	for _, sp := range spans {
		if start >= sp[0] && end <= sp[1] {
			return true
		}
	}
	return false
}

// Dedupe keeps the first entity for each (type, lower-cased text) pair.
func Dedupe(entities []models.Entity) []models.Entity {
	seen := make(map[string]bool, len(entities))
	out := make([]models.Entity, 0, len(entities))
	for _, e := range entities {
		k := e.Type + "\x00" + strings.ToLower(e.Text)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, e)
	}
	return out
}

// SearchText builds the lower-cased search field for a record.
func SearchText(cleanText, summary string, entities []models.Entity) string {
	parts := make([]string, 0, len(entities)+2)
	parts = append(parts, cleanText, summary)
	for _, e := range entities {
		parts = append(parts, e.Text)
	}
	return textclean.ForSearch(parts...)
}
