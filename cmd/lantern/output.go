package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/Lllllllleong/lantern/internal/index"
	"github.com/Lllllllleong/lantern/internal/models"
	"github.com/Lllllllleong/lantern/internal/services"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("214"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("220"))

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("214")).
			Padding(0, 1)
)

func label(s string) string { return dimStyle.Render(fmt.Sprintf("%-12s", s)) }

func renderRunSummary(w io.Writer, res *services.Result) {
	s := res.Stats
	degraded := successStyle.Render("0")
	if s.Degraded > 0 {
		degraded = warnStyle.Render(fmt.Sprint(s.Degraded))
	}
	lines := []string{
		titleStyle.Render("Run " + res.RunID),
		fmt.Sprintf("%s %d", label("Pages:"), s.Pages),
		fmt.Sprintf("%s %d (%d singletons, %d order conflicts)", label("Sequences:"), s.Sequences, s.Singletons, s.OrderConflict),
		fmt.Sprintf("%s %d cached, %d fresh, %d placeholder, %d unreadable", label("OCR:"), s.Cached, s.Fresh, s.OCRFallback, s.OCRErrors),
		fmt.Sprintf("%s %s", label("Degraded:"), degraded),
		fmt.Sprintf("%s %s", label("Duration:"), res.Duration.Round(time.Millisecond)),
	}
	if res.Exports.PagesURI != "" {
		lines = append(lines,
			fmt.Sprintf("%s %s", label("Pages out:"), res.Exports.PagesURI),
			fmt.Sprintf("%s %s", label("Seqs out:"), res.Exports.SequencesURI))
	}
	fmt.Fprintln(w, boxStyle.Render(strings.Join(lines, "\n")))
}

func renderIndexCounts(w io.Writer, db string, pages, withText, sequences int) {
	fmt.Fprintln(w, boxStyle.Render(strings.Join([]string{
		titleStyle.Render("Index " + db),
		fmt.Sprintf("%s %d (%d with text)", label("Pages:"), pages, withText),
		fmt.Sprintf("%s %d", label("Sequences:"), sequences),
	}, "\n")))
}

func renderHits(w io.Writer, hits []index.Hit) {
	if len(hits) == 0 {
		fmt.Fprintln(w, dimStyle.Render("No matching pages."))
		return
	}
	for _, h := range hits {
		head := fmt.Sprintf("%s %s", titleStyle.Render(h.PageID),
			dimStyle.Render(fmt.Sprintf("%s #%d %s conf=%.2f", h.SequenceID, h.PagePosition, h.DocType, h.Confidence)))
		if !h.HasText {
			head += " " + warnStyle.Render("[no text]")
		}
		fmt.Fprintln(w, head)
		if h.Summary != "" {
			fmt.Fprintln(w, "  "+h.Summary)
		}
	}
	fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("%d hits", len(hits))))
}

func renderSequence(w io.Writer, seq *models.SequenceInsight) {
	lines := []string{
		titleStyle.Render("Sequence " + seq.SequenceID),
		fmt.Sprintf("%s %s", label("Pages:"), strings.Join(seq.PageIDs, ", ")),
	}
	if seq.OrderConflict {
		lines = append(lines, warnStyle.Render("order conflict"))
	}
	if seq.Degraded {
		lines = append(lines, warnStyle.Render("degraded"))
	}
	lines = append(lines, "", seq.Summary)
	fmt.Fprintln(w, boxStyle.Render(strings.Join(lines, "\n")))
}
