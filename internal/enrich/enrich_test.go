package enrich

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"cloud.google.com/go/vertexai/genai"

	"github.com/Lllllllleong/lantern/internal/llm"
	"github.com/Lllllllleong/lantern/internal/models"
)

type fakeBackend struct {
	summary  string
	sumErr   error
	entities []models.Entity
	entErr   error
	calls    int
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Summarize(context.Context, string, int) (string, error) {
	f.calls++
	return f.summary, f.sumErr
}

func (f *fakeBackend) ExtractEntities(context.Context, string) ([]models.Entity, error) {
	f.calls++
	return f.entities, f.entErr
}

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestEnhancedPartialFallback(t *testing.T) {
	primary := &fakeBackend{
		sumErr:   errors.New("quota exceeded"),
		entities: []models.Entity{{Type: "PERSON", Text: "John Smith", Start: -1, End: -1}},
	}
	rules := NewDeterministic(nil)
	e := NewEnhanced(primary, rules, quiet)
	ctx := context.Background()

	summary, degraded := e.Summarize(ctx, letter, 40)
	want, _ := rules.Summarize(ctx, letter, 40)
	if !degraded || summary != want {
		t.Fatalf("Summarize = %q degraded=%v, want rules summary %q", summary, degraded, want)
	}

	ents, degraded := e.ExtractEntities(ctx, letter)
	if degraded {
		t.Fatal("entities should come from the primary backend")
	}
	if len(ents) != 1 || ents[0].Text != "John Smith" {
		t.Fatalf("unexpected entities: %+v", ents)
	}
}

func TestEnhancedEntityFallback(t *testing.T) {
	primary := &fakeBackend{summary: "A short   letter.", entErr: errors.New("timeout")}
	e := NewEnhanced(primary, NewDeterministic(nil), quiet)

	summary, degraded := e.Summarize(context.Background(), letter, 100)
	if degraded || summary != "A short letter." {
		t.Fatalf("Summarize = %q degraded=%v", summary, degraded)
	}
	ents, degraded := e.ExtractEntities(context.Background(), letter)
	if !degraded || len(ents) == 0 {
		t.Fatalf("expected rule entities, got %+v degraded=%v", ents, degraded)
	}
}

func TestEnhancedEmptySummaryFallsBack(t *testing.T) {
	e := NewEnhanced(&fakeBackend{summary: "   "}, NewDeterministic(nil), quiet)
	summary, degraded := e.Summarize(context.Background(), "alpha beta", 100)
	if !degraded || summary != "alpha beta" {
		t.Fatalf("Summarize = %q degraded=%v", summary, degraded)
	}
}

func TestEnhancedSkipsEmptyText(t *testing.T) {
	primary := &fakeBackend{sumErr: errors.New("unused"), entErr: errors.New("unused")}
	e := NewEnhanced(primary, NewDeterministic(nil), quiet)

	if s, degraded := e.Summarize(context.Background(), "  ", 100); s != "" || degraded {
		t.Fatalf("Summarize = %q degraded=%v", s, degraded)
	}
	if ents, degraded := e.ExtractEntities(context.Background(), ""); len(ents) != 0 || degraded {
		t.Fatalf("ExtractEntities = %+v degraded=%v", ents, degraded)
	}
	if primary.calls != 0 {
		t.Fatalf("primary called %d times for empty text", primary.calls)
	}
}

func TestRulesNeverDegrade(t *testing.T) {
	r := NewRules(NewDeterministic(nil))
	if _, degraded := r.Summarize(context.Background(), letter, 50); degraded {
		t.Fatal("rules summary reported degraded")
	}
	if _, degraded := r.ExtractEntities(context.Background(), letter); degraded {
		t.Fatal("rules entities reported degraded")
	}
	if r.DocType(letter) != "letter" {
		t.Fatalf("DocType = %q", r.DocType(letter))
	}
}

func TestParseEntitiesDropsUnknownText(t *testing.T) {
	raw := "```json\n{\"entities\":[{\"type\":\"person\",\"text\":\"John Smith\"},{\"type\":\"ORG\",\"text\":\"Globex\"},{\"type\":\"\",\"text\":\"x\"}]}\n```"
	ents, err := parseEntities(raw, "Letter to JOHN SMITH")
	if err != nil {
		t.Fatalf("parseEntities: %v", err)
	}
	if len(ents) != 1 || ents[0].Type != "PERSON" || ents[0].Start != -1 {
		t.Fatalf("unexpected entities: %+v", ents)
	}
	if _, err := parseEntities("not json", "x"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestParseSummary(t *testing.T) {
	if s, err := parseSummary(`{"summary":"A letter."}`); err != nil || s != "A letter." {
		t.Fatalf("parseSummary = %q, %v", s, err)
	}
	if _, err := parseSummary(`{"summary":""}`); !errors.Is(err, errEmptySummary) {
		t.Fatalf("expected errEmptySummary, got %v", err)
	}
}

func TestClipKeepsRunesWhole(t *testing.T) {
	text := strings.Repeat("é", maxPromptChars)
	got := clip(text)
	if len(got) > maxPromptChars || !utf8.ValidString(got) {
		t.Fatalf("clip produced %d bytes, valid=%v", len(got), utf8.ValidString(got))
	}
	if clip("short") != "short" {
		t.Fatal("short text should pass through")
	}
}

type roundTrip func(*http.Request) *http.Response

func (rt roundTrip) RoundTrip(req *http.Request) (*http.Response, error) {
	return rt(req), nil
}

func TestOpenAIBackend(t *testing.T) {
	answers := []string{
		`{"choices":[{"message":{"content":"{\"summary\":\"A letter about a payment.\"}"},"finish_reason":"stop"}]}`,
		`{"choices":[{"message":{"content":"{\"entities\":[{\"type\":\"ORG\",\"text\":\"Acme Corp\"}]}"},"finish_reason":"stop"}]}`,
	}
	n := 0
	client := &llm.Client{
		BaseURL: "https://api.test/v1/chat/completions",
		Model:   "gpt-test",
		HTTPClient: &http.Client{Transport: roundTrip(func(*http.Request) *http.Response {
			body := answers[n]
			n++
			return &http.Response{StatusCode: 200, Body: io.NopCloser(strings.NewReader(body)), Header: make(http.Header)}
		})},
	}
	o := NewOpenAI(client)

	summary, err := o.Summarize(context.Background(), letter, 100)
	if err != nil || summary != "A letter about a payment." {
		t.Fatalf("Summarize = %q, %v", summary, err)
	}
	ents, err := o.ExtractEntities(context.Background(), letter)
	if err != nil || len(ents) != 1 || ents[0].Text != "Acme Corp" {
		t.Fatalf("ExtractEntities = %+v, %v", ents, err)
	}
}

type fakeGenerator struct {
	text string
	err  error
}

func (f *fakeGenerator) GenerateContent(context.Context, ...genai.Part) (*genai.GenerateContentResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []genai.Part{genai.Text(f.text)}},
	}}}, nil
}

func TestGeminiBackend(t *testing.T) {
	g := NewGemini(&fakeGenerator{text: "```json\n{\"summary\": \"Payment letter.\"}\n```"})
	summary, err := g.Summarize(context.Background(), letter, 100)
	if err != nil || summary != "Payment letter." {
		t.Fatalf("Summarize = %q, %v", summary, err)
	}

	g = NewGemini(&fakeGenerator{err: errors.New("unavailable")})
	if _, err := g.ExtractEntities(context.Background(), letter); err == nil {
		t.Fatal("expected error from failing model")
	}

	g = NewGemini(&fakeGenerator{text: ""})
	if _, err := g.Summarize(context.Background(), letter, 100); err == nil {
		t.Fatal("expected error for empty answer")
	}
}

type deadlineBackend struct{ fakeBackend }

func (d *deadlineBackend) Summarize(ctx context.Context, _ string, _ int) (string, error) {
	if _, ok := ctx.Deadline(); !ok {
		return "", errors.New("no deadline")
	}
	return "bounded", nil
}

func TestWithTimeoutSetsDeadline(t *testing.T) {
	b := WithTimeout(&deadlineBackend{}, time.Second)
	if s, err := b.Summarize(context.Background(), "x", 10); err != nil || s != "bounded" {
		t.Fatalf("Summarize = %q, %v", s, err)
	}
	if b.Name() != "fake" {
		t.Fatalf("Name = %q", b.Name())
	}
	raw := &fakeBackend{}
	if WithTimeout(raw, 0) != Backend(raw) {
		t.Fatal("zero timeout should return the backend unchanged")
	}
}
