// Package textclean holds the deterministic text cleanup shared by OCR
// post-processing and enrichment. Every function here is pure and total.
package textclean

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Options selects the optional normalization steps.
type Options struct {
	Lowercase      bool `yaml:"lowercase"`
	FoldDiacritics bool `yaml:"fold_diacritics"`
}

// hyphenBreak matches a word split across a line break ("multi-\nple").
var hyphenBreak = regexp.MustCompile(`(\w)-\s*\n\s*(\w)`)

// Normalize cleans OCR or model text. The step order matters for
// idempotence: characters are removed before composition, and whitespace is
// collapsed last so nothing after it can reintroduce runs of spaces.
func Normalize(text string, opts Options) string {
	if text == "" {
		return ""
	}
	s := strings.ToValidUTF8(text, "")
	s = stripControl(s)
	if opts.Lowercase {
		s = strings.ToLower(s)
	}
	if opts.FoldDiacritics {
		s = foldDiacritics(s)
	}
	s = norm.NFC.String(s)
	s = hyphenBreak.ReplaceAllString(s, "$1$2")
	return strings.Join(strings.Fields(s), " ")
}

// ForSearch builds a lower-cased, whitespace-normalized search field from
// the given parts, skipping empty ones.
func ForSearch(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return Normalize(strings.Join(kept, " "), Options{Lowercase: true})
}

// TruncateWords shortens text to at most maxChars runes, cutting at the last
// word boundary inside the limit. A single word longer than the limit is
// cut mid-word.
func TruncateWords(text string, maxChars int) string {
	if maxChars <= 0 || text == "" {
		return ""
	}
	if utf8.RuneCountInString(text) <= maxChars {
		return text
	}
	cut := text
	n := 0
	for i := range text {
		if n == maxChars {
			cut = text[:i]
			break
		}
		n++
	}
	// The rune after the cut being a space means the cut already sits on a
	// boundary.
	if next := text[len(cut):]; next != "" && unicode.IsSpace(firstRune(next)) {
		return strings.TrimRightFunc(cut, unicode.IsSpace)
	}
	if idx := strings.LastIndexFunc(cut, unicode.IsSpace); idx > 0 {
		cut = cut[:idx]
	}
	return strings.TrimRightFunc(cut, unicode.IsSpace)
}

func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return r
		}
		if unicode.IsControl(r) || unicode.Is(unicode.Cf, r) {
			return -1
		}
		return r
	}, s)
}

func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func firstRune(s string) rune {
	r, _ := utf8.DecodeRuneInString(s)
	return r
}
