package engine

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/genai"
)

type fakeGemini struct {
	config   *genai.GenerateContentConfig
	contents []*genai.Content
	text     string
	values   []float32
	err      error
}

func (f *fakeGemini) GenerateContent(_ context.Context, _ string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.config, f.contents = config, contents
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{{Text: f.text}}}}},
	}, nil
}

func (f *fakeGemini) EmbedContent(_ context.Context, _ string, _ []*genai.Content, _ *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &genai.EmbedContentResponse{Embeddings: []*genai.ContentEmbedding{{Values: f.values}}}, nil
}

func TestGeminiEngine_Chat(t *testing.T) {
	fake := &fakeGemini{text: `{"score":0.6}`}
	e := &GeminiEngine{models: fake, maxTokens: 700}

	zero, one := 0.0, 1.0
	schema := &Schema{
		Type: "object",
		Properties: map[string]*Schema{
			"score":      {Type: "number", Minimum: &zero, Maximum: &one},
			"transcript": {Type: "array", Items: &Schema{Type: "string"}},
		},
		Required: []string{"score", "transcript"},
	}
	got, err := e.Chat(context.Background(), "gemini-2.5-flash", []Message{
		{Role: "system", Content: "be careful"},
		{Role: "user", Content: "judge"},
	}, schema)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got != `{"score":0.6}` {
		t.Errorf("Chat() = %q", got)
	}
	if fake.config.SystemInstruction == nil || fake.config.SystemInstruction.Parts[0].Text != "be careful" {
		t.Errorf("system instruction not set: %+v", fake.config.SystemInstruction)
	}
	if len(fake.contents) != 1 {
		t.Errorf("contents = %d, want 1 user message", len(fake.contents))
	}
	if fake.config.ResponseMIMEType != "application/json" {
		t.Errorf("ResponseMIMEType = %q", fake.config.ResponseMIMEType)
	}
	rs := fake.config.ResponseSchema
	if rs.Type != genai.TypeObject || rs.Properties["transcript"].Items.Type != genai.TypeString {
		t.Errorf("schema not converted: %+v", rs)
	}
	if *rs.Properties["score"].Maximum != 1 {
		t.Errorf("score maximum lost")
	}
	if fake.config.MaxOutputTokens != 700 {
		t.Errorf("MaxOutputTokens = %d", fake.config.MaxOutputTokens)
	}
}

func TestGeminiEngine_EmptyResponse(t *testing.T) {
	e := &GeminiEngine{models: &fakeGemini{text: "  "}}
	if _, err := e.Chat(context.Background(), "m", []Message{{Role: "user", Content: "x"}}, nil); err == nil {
		t.Fatal("expected error for empty response")
	}
}

func TestGeminiEngine_Embed(t *testing.T) {
	e := &GeminiEngine{models: &fakeGemini{values: []float32{1, 2, 3}}}
	vec, err := e.Embed(context.Background(), "text-embedding-004", "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 {
		t.Errorf("Embed() = %v", vec)
	}

	e = &GeminiEngine{models: &fakeGemini{err: errors.New("quota")}}
	if _, err := e.Embed(context.Background(), "m", "x"); err == nil {
		t.Fatal("expected error")
	}
}
