package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const defaultModel = "gemini-2.5-flash"

const systemPrompt = `You triage replies to certification course nurture emails.
Classify the reply into exactly one category: interested, question, not_interested, out_of_office, unclear.
Write a one-sentence summary and a short suggested next action for the operator.
Set requiresReview to true if the category is question or unclear, otherwise false.
List any programs or topics the sender mentions as interests.
Answer with JSON only.`

// generateFunc produces the raw model answer for prompt.
type generateFunc func(ctx context.Context, prompt string) (string, error)

// Gemini classifies replies with a Gemini model in JSON mode.
type Gemini struct {
	generate generateFunc
}

// NewGemini creates a Gemini classifier.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	if model == "" {
		model = defaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    responseSchema(),
		Temperature:       genai.Ptr[float32](0),
	}

	return &Gemini{
		generate: func(ctx context.Context, prompt string) (string, error) {
			resp, err := client.Models.GenerateContent(ctx, model, genai.Text(prompt), cfg)
			if err != nil {
				return "", err
			}
			return resp.Text(), nil
		},
	}, nil
}

func responseSchema() *genai.Schema {
	enum := make([]string, len(Categories))
	for i, c := range Categories {
		enum[i] = string(c)
	}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"category":        {Type: genai.TypeString, Enum: enum},
			"summary":         {Type: genai.TypeString},
			"suggestedAction": {Type: genai.TypeString},
			"requiresReview":  {Type: genai.TypeBoolean},
			"interests":       {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		},
		Required: []string{"category", "summary", "suggestedAction", "requiresReview"},
	}
}

// Classify sends the reply text to the model. The caller bounds the call
// with ctx.
func (g *Gemini) Classify(ctx context.Context, text string) (Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return SafeDefault("Empty reply"), nil
	}

	raw, err := g.generate(ctx, "Reply:\n"+text)
	if err != nil {
		return Result{}, fmt.Errorf("gemini classify: %w", err)
	}
	return parseResult(raw)
}
