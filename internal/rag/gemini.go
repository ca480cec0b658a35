package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"gwi.com/legal-rag/internal/logging"
)

// GeminiGenerator calls the Gemini API with an API key. It serves direct prompts only.
type GeminiGenerator struct {
	client *genai.Client
	model  string
	log    *slog.Logger
}

func NewGeminiGenerator(ctx context.Context, apiKey, modelName string) (*GeminiGenerator, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiGenerator{client: client, model: modelName, log: logging.New("rag.gemini")}, nil
}

func (g *GeminiGenerator) Close() {
	if g.client != nil {
		if err := g.client.Close(); err != nil {
			g.log.Warn("error closing gemini client", "error", err)
		}
	}
}

func (g *GeminiGenerator) Generate(ctx context.Context, p Prompt) (Answer, error) {
	if p.Corpus != "" {
		return Answer{}, ErrGroundingNotEnabled
	}

	model := g.client.GenerativeModel(g.model)
	temp := float32(0)
	model.GenerationConfig = genai.GenerationConfig{Temperature: &temp}
	if p.JSON {
		model.ResponseMIMEType = "application/json"
	}
	if p.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(p.System)}}
	}

	chat := model.StartChat()
	for _, m := range p.History {
		chat.History = append(chat.History, &genai.Content{
			Role:  string(m.Role),
			Parts: []genai.Part{genai.Text(m.Content)},
		})
	}

	resp, err := chat.SendMessage(ctx, genai.Text(p.Text))
	if err != nil {
		return Answer{}, fmt.Errorf("gemini SendMessage failed: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return Answer{}, ErrEmptyResponse
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		} else {
			g.log.Debug("skipping non-text response part", "type", fmt.Sprintf("%T", part))
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return Answer{}, ErrEmptyResponse
	}
	return Answer{Text: text}, nil
}
