package enrich

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/Lllllllleong/lantern/internal/models"
)

// Taxonomy is a dictionary of known entities and document-type keywords.
//
//	entities:
//	  ORG:
//	    Acme Corporation: [acme corp, acme inc]
//	doc_types:
//	  deposition: [deposition, sworn testimony]
type Taxonomy struct {
	Entities map[string]map[string][]string `yaml:"entities"`
	DocTypes map[string][]string            `yaml:"doc_types"`

	matchers []termMatcher
	docRules []docTypeRule
}

type termMatcher struct {
	typ string
	re  *regexp.Regexp
}

// LoadTaxonomy reads a taxonomy YAML file.
func LoadTaxonomy(path string) (*Taxonomy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read taxonomy: %w", err)
	}
	return ParseTaxonomy(data)
}

// ParseTaxonomy parses and compiles a taxonomy document.
func ParseTaxonomy(data []byte) (*Taxonomy, error) {
	var tax Taxonomy
	if err := yaml.Unmarshal(data, &tax); err != nil {
		return nil, fmt.Errorf("failed to parse taxonomy: %w", err)
	}
	if err := tax.compile(); err != nil {
		return nil, err
	}
	return &tax, nil
}

// compile builds one case-insensitive alternation per entity type. Types
// and terms are sorted so matching does not depend on map order; longer
// terms come first so "acme corporation" wins over "acme".
func (t *Taxonomy) compile() error {
	types := make([]string, 0, len(t.Entities))
	for typ := range t.Entities {
		types = append(types, typ)
	}
	sort.Strings(types)
	for _, typ := range types {
		seen := map[string]bool{}
		var terms []string
		for canonical, variants := range t.Entities[typ] {
			for _, term := range append([]string{canonical}, variants...) {
				term = strings.ToLower(strings.TrimSpace(term))
				if term != "" && !seen[term] {
					seen[term] = true
					terms = append(terms, term)
				}
			}
		}
		if len(terms) == 0 {
			continue
		}
		sortLongestFirst(terms)
		quoted := make([]string, len(terms))
		for i, term := range terms {
			quoted[i] = regexp.QuoteMeta(term)
		}
		re, err := regexp.Compile(`(?i)(?:` + strings.Join(quoted, "|") + `)`)
		if err != nil {
			return fmt.Errorf("taxonomy type %s: %w", typ, err)
		}
		t.matchers = append(t.matchers, termMatcher{typ: strings.ToUpper(typ), re: re})
	}

	labels := make([]string, 0, len(t.DocTypes))
	for label := range t.DocTypes {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		rule, err := newDocTypeRule(label, t.DocTypes[label])
		if err != nil {
			return fmt.Errorf("taxonomy doc type %s: %w", label, err)
		}
		t.docRules = append(t.docRules, rule)
	}
	return nil
}

// match returns the dictionary hits in text that sit on word boundaries.
func (t *Taxonomy) match(text string) []models.Entity {
	if t == nil {
		return nil
	}
	var out []models.Entity
	for _, m := range t.matchers {
		for _, loc := range m.re.FindAllStringIndex(text, -1) {
			if !onWordBoundary(text, loc[0], loc[1]) {
				continue
			}
			out = append(out, models.Entity{Type: m.typ, Text: text[loc[0]:loc[1]], Start: loc[0], End: loc[1]})
		}
	}
	return out
}

func sortLongestFirst(terms []string) {
	sort.Slice(terms, func(i, j int) bool {
		if len(terms[i]) != len(terms[j]) {
			return len(terms[i]) > len(terms[j])
		}
		return terms[i] < terms[j]
	})
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// onWordBoundary reports whether text[start:end] is not glued to a word
// character on either side. Terms that begin or end with punctuation only
// need the boundary on their word side.
func onWordBoundary(text string, start, end int) bool {
	first, _ := utf8.DecodeRuneInString(text[start:end])
	if isWordRune(first) && start > 0 {
		prev, _ := utf8.DecodeLastRuneInString(text[:start])
		if isWordRune(prev) {
			return false
		}
	}
	last, _ := utf8.DecodeLastRuneInString(text[start:end])
	if isWordRune(last) && end < len(text) {
		next, _ := utf8.DecodeRuneInString(text[end:])
		if isWordRune(next) {
			return false
		}
	}
	return true
}
