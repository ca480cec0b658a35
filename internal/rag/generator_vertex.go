package rag

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"gwi.com/legal-rag/internal/model"
)

// VertexGenerator calls Gemini through Vertex AI and can ground on a RAG corpus.
type VertexGenerator struct {
	client *genai.Client
	model  string
	topK   int32
}

type VertexGeneratorConfig struct {
	Project  string
	Location string
	Model    string
	TopK     int
	// HTTPClient carries impersonated credentials; nil uses application default credentials.
	HTTPClient *http.Client
}

func NewVertexGenerator(ctx context.Context, cfg VertexGeneratorConfig) (*VertexGenerator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Backend:    genai.BackendVertexAI,
		Project:    cfg.Project,
		Location:   cfg.Location,
		HTTPClient: cfg.HTTPClient,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &VertexGenerator{client: client, model: cfg.Model, topK: int32(cfg.TopK)}, nil
}

func (g *VertexGenerator) Generate(ctx context.Context, p Prompt) (Answer, error) {
	contents := make([]*genai.Content, 0, len(p.History)+1)
	for _, m := range p.History {
		contents = append(contents, genai.NewContentFromText(m.Content, genai.Role(m.Role)))
	}
	contents = append(contents, genai.NewContentFromText(p.Text, genai.RoleUser))

	temp := float32(0)
	cfg := &genai.GenerateContentConfig{Temperature: &temp}
	if p.System != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: p.System}}}
	}
	if p.Corpus != "" {
		topK := g.topK
		cfg.Tools = []*genai.Tool{{
			Retrieval: &genai.Retrieval{
				VertexRAGStore: &genai.VertexRAGStore{
					RAGResources:   []*genai.VertexRAGStoreRAGResource{{RAGCorpus: p.Corpus}},
					SimilarityTopK: &topK,
				},
			},
		}}
	} else if p.JSON {
		cfg.ResponseMIMEType = "application/json"
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return Answer{}, fmt.Errorf("vertex generate content: %w", err)
	}
	return answerFromResponse(resp)
}

func answerFromResponse(resp *genai.GenerateContentResponse) (Answer, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return Answer{}, ErrEmptyResponse
	}
	cand := resp.Candidates[0]

	var sb strings.Builder
	for _, part := range cand.Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		sb.WriteString(part.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return Answer{}, ErrEmptyResponse
	}

	var sources []model.SourceRef
	if gm := cand.GroundingMetadata; gm != nil {
		for _, chunk := range gm.GroundingChunks {
			if chunk == nil || chunk.RetrievedContext == nil {
				continue
			}
			rc := chunk.RetrievedContext
			sources = append(sources, model.SourceRef{URI: rc.URI, Title: rc.Title, Text: rc.Text})
		}
	}
	return Answer{Text: text, Sources: sources}, nil
}
