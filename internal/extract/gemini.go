// Package extract pulls structured facts out of free page text with an LLM.
package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/ati-tools/manualfinder/internal/manual"
)

const notFoundSentinel = "NOT_FOUND"

// GeminiExtractor implements manual.TextExtractor with the Gemini API.
type GeminiExtractor struct {
	client    *genai.Client
	modelName string
	timeout   time.Duration
	logger    *zap.Logger
}

// NewGeminiExtractor builds the extractor. modelName defaults to
// gemini-2.5-flash.
func NewGeminiExtractor(ctx context.Context, apiKey, modelName string, logger *zap.Logger) (*GeminiExtractor, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini extractor: api key is required")
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
		return nil, fmt.Errorf("gemini extractor: create client: %w", err)
	}
	return &GeminiExtractor{
		client:    client,
		modelName: modelName,
		timeout:   time.Minute,
		logger:    logger,
	}, nil
}

func warrantyPrompt(pageText string, identity manual.ProductIdentity) string {
	return fmt.Sprintf(
		"The text below comes from a web page. Find the warranty duration that applies to the product %q.\n"+
			"Answer with just the duration phrase, for example \"3 year limited warranty\" or \"90 days\".\n"+
			"If the text states no warranty duration for this product, answer exactly %s.\n\n%s",
		identity.Label(), notFoundSentinel, pageText)
}

// ExtractWarranty returns the warranty-duration phrase found in pageText, or
// "" when the page states none.
func (e *GeminiExtractor) ExtractWarranty(ctx context.Context, pageText string, identity manual.ProductIdentity) (string, error) {
	if strings.TrimSpace(pageText) == "" {
		return "", nil
	}
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(0.0)),
	}
	resp, err := e.client.Models.GenerateContent(
		callCtx,
		e.modelName,
		[]*genai.Content{genai.NewContentFromText(warrantyPrompt(pageText, identity), genai.RoleUser)},
		config,
	)
	if err != nil {
		return "", fmt.Errorf("warranty extraction: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", nil
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			text.WriteString(part.Text)
		}
	}
	answer := strings.TrimSpace(text.String())
	if answer == "" || strings.EqualFold(answer, notFoundSentinel) {
		return "", nil
	}
	e.logger.Debug("warranty phrase extracted",
		zap.String("model", identity.Model),
		zap.String("phrase", answer))
	return answer, nil
}
