package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"cloud.google.com/go/vertexai/genai"

	"github.com/Lllllllleong/lantern/internal/llm"
	"github.com/Lllllllleong/lantern/internal/models"
)

const summaryPrompt = `Summarize the following scanned document text in at most %d characters.
Respond with a JSON object {"summary": "..."} and nothing else.

Text:
%s`

const entitiesPrompt = `Extract the named entities from the following scanned document text.
Use these types: PERSON, ORG, DATE, MONEY, EMAIL, PHONE, IDENTIFIER, LOCATION.
Respond with a JSON object {"entities": [{"type": "...", "text": "..."}]} and nothing else.
Copy entity text exactly as it appears.

Text:
%s`

// maxPromptChars bounds the page text sent to a model.
const maxPromptChars = 24000

var errEmptySummary = errors.New("model returned an empty summary")

type summaryAnswer struct {
	Summary string `json:"summary"`
}

type entitiesAnswer struct {
	Entities []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"entities"`
}

func parseSummary(raw string) (string, error) {
	var a summaryAnswer
	if err := json.Unmarshal([]byte(llm.StripFence(raw)), &a); err != nil {
		return "", fmt.Errorf("failed to parse summary answer: %w", err)
	}
	if strings.TrimSpace(a.Summary) == "" {
		return "", errEmptySummary
	}
	return a.Summary, nil
}

// parseEntities keeps only entities whose text occurs in source. Model
// entities carry no offsets.
func parseEntities(raw, source string) ([]models.Entity, error) {
	var a entitiesAnswer
	if err := json.Unmarshal([]byte(llm.StripFence(raw)), &a); err != nil {
		return nil, fmt.Errorf("failed to parse entities answer: %w", err)
	}
	lower := strings.ToLower(source)
	out := make([]models.Entity, 0, len(a.Entities))
	for _, e := range a.Entities {
		typ := strings.ToUpper(strings.TrimSpace(e.Type))
		text := strings.TrimSpace(e.Text)
		if typ == "" || text == "" || !strings.Contains(lower, strings.ToLower(text)) {
			continue
		}
		out = append(out, models.Entity{Type: typ, Text: text, Start: -1, End: -1})
	}
	return out, nil
}

func clip(text string) string {
	if len(text) <= maxPromptChars {
		return text
	}
	cut := maxPromptChars
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

// Gemini enriches through a Vertex AI model configured for JSON answers.
type Gemini struct {
	model llm.ContentGenerator
}

// NewGemini returns a backend over a preconfigured model.
func NewGemini(model llm.ContentGenerator) *Gemini {
	return &Gemini{model: model}
}

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content from gemini: %w", err)
	}
	text := llm.ResponseText(resp)
	if text == "" {
		return "", errors.New("gemini returned no text")
	}
	return text, nil
}

func (g *Gemini) Summarize(ctx context.Context, text string, maxChars int) (string, error) {
	raw, err := g.generate(ctx, fmt.Sprintf(summaryPrompt, maxChars, clip(text)))
	if err != nil {
		return "", err
	}
	return parseSummary(raw)
}

func (g *Gemini) ExtractEntities(ctx context.Context, text string) ([]models.Entity, error) {
	raw, err := g.generate(ctx, fmt.Sprintf(entitiesPrompt, clip(text)))
	if err != nil {
		return nil, err
	}
	return parseEntities(raw, text)
}

// OpenAI enriches through an OpenAI-compatible chat endpoint.
type OpenAI struct {
	client *llm.Client
}

// NewOpenAI returns a backend over client.
func NewOpenAI(client *llm.Client) *OpenAI {
	return &OpenAI{client: client}
}

func (o *OpenAI) Name() string { return "openai" }

const openAISystemPrompt = "You are a document analyst. You always answer with valid JSON."

func (o *OpenAI) Summarize(ctx context.Context, text string, maxChars int) (string, error) {
	raw, err := o.client.ChatJSON(ctx, openAISystemPrompt, fmt.Sprintf(summaryPrompt, maxChars, clip(text)))
	if err != nil {
		return "", err
	}
	return parseSummary(raw)
}

func (o *OpenAI) ExtractEntities(ctx context.Context, text string) ([]models.Entity, error) {
	raw, err := o.client.ChatJSON(ctx, openAISystemPrompt, fmt.Sprintf(entitiesPrompt, clip(text)))
	if err != nil {
		return nil, err
	}
	return parseEntities(raw, text)
}
