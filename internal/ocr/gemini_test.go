package ocr

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/vertexai/genai"
)

type fakeGenerator struct {
	resp  *genai.GenerateContentResponse
	err   error
	parts []genai.Part
}

func (f *fakeGenerator) GenerateContent(_ context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	f.parts = parts
	return f.resp, f.err
}

func textResponse(text string, reason genai.FinishReason) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content:      &genai.Content{Parts: []genai.Part{genai.Text(text)}},
		FinishReason: reason,
	}}}
}

func TestGeminiExtract(t *testing.T) {
	gen := &fakeGenerator{resp: textResponse("```text\nDear Sir,\nthe invoice\n```", genai.FinishReasonStop)}
	g := NewGemini(gen, 0.9)

	res, err := g.Extract(context.Background(), Input{PageID: "p1", Source: "/scans/p1.png", Data: []byte("png")})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.RawText != "Dear Sir,\nthe invoice" || res.Confidence != 0.9 {
		t.Fatalf("unexpected result: %+v", res)
	}
	blob, ok := gen.parts[0].(genai.Blob)
	if !ok || blob.MIMEType != "image/png" {
		t.Fatalf("expected inline png blob, got %#v", gen.parts[0])
	}
}

func TestGeminiUsesFileDataForGCS(t *testing.T) {
	gen := &fakeGenerator{resp: textResponse("text", genai.FinishReasonStop)}
	if _, err := NewGemini(gen, 0.9).Extract(context.Background(), Input{Source: "gs://bucket/p1.pdf"}); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	fd, ok := gen.parts[0].(genai.FileData)
	if !ok || fd.FileURI != "gs://bucket/p1.pdf" || fd.MIMEType != "application/pdf" {
		t.Fatalf("expected gcs file data, got %#v", gen.parts[0])
	}
}

func TestGeminiTruncatedAnswerLowersConfidence(t *testing.T) {
	gen := &fakeGenerator{resp: textResponse("partial", genai.FinishReasonMaxTokens)}
	res, err := NewGemini(gen, 0.8).Extract(context.Background(), Input{Source: "a.jpg", Data: []byte{1}})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.Confidence != 0.4 {
		t.Fatalf("confidence = %v, want 0.4", res.Confidence)
	}
}

func TestGeminiFailures(t *testing.T) {
	cases := []struct {
		name string
		gen  *fakeGenerator
		in   Input
		want ErrorKind
	}{
		{"transport", &fakeGenerator{err: errors.New("unavailable")}, Input{Data: []byte{1}}, KindTransport},
		{"no candidates", &fakeGenerator{resp: &genai.GenerateContentResponse{}}, Input{Data: []byte{1}}, KindMalformed},
		{"safety", &fakeGenerator{resp: textResponse("", genai.FinishReasonSafety)}, Input{Data: []byte{1}}, KindUnsupported},
		{"refusal", &fakeGenerator{resp: textResponse("I am unable to read this.", genai.FinishReasonStop)}, Input{Data: []byte{1}}, KindUnsupported},
		{"no bytes", &fakeGenerator{}, Input{Source: "local.png"}, KindUnsupported},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewGemini(tc.gen, 0.9).Extract(context.Background(), tc.in)
			var be *BackendError
			if !errors.As(err, &be) || be.Kind != tc.want {
				t.Fatalf("error = %v, want kind %s", err, tc.want)
			}
		})
	}
}
