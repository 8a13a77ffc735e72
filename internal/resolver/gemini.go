package resolver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// GeminiSearcher is the GroundedSearcher backed by the Gemini API with the
// GoogleSearch tool enabled.
type GeminiSearcher struct {
	client    *genai.Client
	modelName string
	timeout   time.Duration
	logger    *zap.Logger
}

// NewGeminiSearcher builds a searcher. modelName defaults to
// gemini-2.5-flash.
func NewGeminiSearcher(ctx context.Context, apiKey, modelName string, logger *zap.Logger) (*GeminiSearcher, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini searcher: api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini searcher: create client: %w", err)
	}
	return &GeminiSearcher{
		client:    client,
		modelName: modelName,
		timeout:   2 * time.Minute,
		logger:    logger,
	}, nil
}

// Search runs one grounded generation and returns the answer text together
// with the cited source URLs from the grounding metadata.
func (s *GeminiSearcher) Search(ctx context.Context, prompt string) (GroundedAnswer, error) {
	searchCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	config := &genai.GenerateContentConfig{
		Tools: []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
	}
	resp, err := s.client.Models.GenerateContent(
		searchCtx,
		s.modelName,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)},
		config,
	)
	if err != nil {
		return GroundedAnswer{}, fmt.Errorf("grounded generation: %w", err)
	}

	var answer GroundedAnswer
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return answer, nil
	}
	candidate := resp.Candidates[0]

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if part.Text != "" {
			text.WriteString(part.Text)
		}
	}
	answer.Text = text.String()

	if candidate.GroundingMetadata != nil {
		for _, chunk := range candidate.GroundingMetadata.GroundingChunks {
			if chunk.Web != nil && chunk.Web.URI != "" {
				answer.Citations = append(answer.Citations, chunk.Web.URI)
			}
		}
	}

	s.logger.Debug("grounded search complete",
		zap.Int("citations", len(answer.Citations)),
		zap.Int("answer_len", len(answer.Text)))
	return answer, nil
}
