package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// DefaultGoogleModel is used when no model is configured.
const DefaultGoogleModel = "gemini-1.5-flash"

// Google is a Client backed by the Gemini API.
type Google struct {
	client *genai.Client
	model  string
}

func NewGoogle(ctx context.Context, apiKey, model string) (*Google, error) {
	if apiKey == "" {
		return nil, errors.New("google: API key is required")
	}
	if model == "" {
		model = DefaultGoogleModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("google: create client: %w", err)
	}
	return &Google{client: client, model: model}, nil
}

func (g *Google) Provider() string { return "google" }
func (g *Google) Model() string    { return g.model }

// Close releases the underlying gRPC connection.
func (g *Google) Close() error {
	return g.client.Close()
}

// Complete asks Gemini for a JSON response to prompt.
func (g *Google) Complete(ctx context.Context, prompt string) (Completion, error) {
	model := g.client.GenerativeModel(g.model)
	model.ResponseMIMEType = "application/json"

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return Completion{}, classify(g.Provider(), err)
	}

	out := Completion{Model: g.model}
	if resp.UsageMetadata != nil {
		out.InputTokens = int64(resp.UsageMetadata.PromptTokenCount)
		out.OutputTokens = int64(resp.UsageMetadata.CandidatesTokenCount)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return out, nil
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	out.Text = text.String()
	return out, nil
}
