package aianalyst

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

type geminiBackend struct {
	apiKey string
	model  string
}

func newGeminiBackend(apiKey, model string) *geminiBackend {
	if model == "" {
		model = "gemini-1.5-flash"
	}
	return &geminiBackend{apiKey: apiKey, model: model}
}

// Complete opens a client per call so the connection inherits the caller's
// deadline and nothing lingers between scans.
func (b *geminiBackend) Complete(ctx context.Context, prompt string) (string, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(b.apiKey))
	if err != nil {
		return "", err
	}
	defer client.Close()

	model := client.GenerativeModel(b.model)
	model.SetTemperature(0)

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("no response candidates")
	}

	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text += string(t)
		}
	}
	if text == "" {
		return "", fmt.Errorf("response contained no text")
	}
	return text, nil
}
