package moderation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const classifyPrompt = `You are a content moderator for a social network.
Decide whether the following user message must be blocked because it contains
harassment, hate speech, sexual content involving minors, credible threats, or spam.
Answer ONLY with JSON: {"blocked": true|false, "reason": "<short reason or empty>"}

Message:
%s`

// GeminiClassifier asks a Gemini model for a structured verdict.
type GeminiClassifier struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

func NewGeminiClassifier(ctx context.Context, apiKey, modelName string) (*GeminiClassifier, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is not set")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(0)
	model.ResponseMIMEType = "application/json"

	return &GeminiClassifier{
		client: client,
		model:  model,
	}, nil
}

func (g *GeminiClassifier) Classify(ctx context.Context, text string) (Verdict, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(fmt.Sprintf(classifyPrompt, text)))
	if err != nil {
		return Verdict{}, err
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return Verdict{}, fmt.Errorf("no response from classifier")
	}

	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			return parseVerdict(string(txt))
		}
	}

	return Verdict{}, fmt.Errorf("no text content in classifier response")
}

func (g *GeminiClassifier) Close() error {
	return g.client.Close()
}

// parseVerdict tolerates the model wrapping its JSON in a markdown fence.
func parseVerdict(raw string) (Verdict, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var v Verdict
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &v); err != nil {
		return Verdict{}, fmt.Errorf("decode classifier verdict: %w", err)
	}
	return v, nil
}
