// Package contract turns uploaded service-contract PDFs into a product list.
package contract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/ati-tools/manualfinder/internal/manual"
)

// Completer produces one completion for a system prompt plus user input.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// ClaudeCompleter is the Completer backed by the Anthropic API.
type ClaudeCompleter struct {
	client    anthropic.Client
	modelName string
	maxTokens int64
}

// NewClaudeCompleter builds the completer. modelName defaults to
// claude-sonnet-4-20250514 and maxTokens to 4096.
func NewClaudeCompleter(apiKey, modelName string, maxTokens int64) (*ClaudeCompleter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("claude completer: api key is required")
	}
	if modelName == "" {
		modelName = "claude-sonnet-4-20250514"
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &ClaudeCompleter{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		modelName: modelName,
		maxTokens: maxTokens,
	}, nil
}

// Complete runs one message exchange and concatenates the text blocks of the
// reply.
func (c *ClaudeCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.modelName),
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("completion: %w", err)
	}
	var out strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	return out.String(), nil
}

const parseSystemPrompt = `You read service contracts for audio-visual installations.
Extract every installed hardware product from the contract text.
Reply with a JSON array only, no prose. Each element has the keys
"brand", "model" and "name". The model is the manufacturer part number.
Skip labor, services, shipping, warranties and software licenses.
Reply with [] when the text lists no hardware.`

// Parser implements manual.ContractParser: pdfcpu pulls the text out of the
// PDF and the completer turns it into a product list.
type Parser struct {
	completer Completer
	logger    *zap.Logger
}

// NewParser wires the parser.
func NewParser(completer Completer, logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{completer: completer, logger: logger}
}

type parsedProduct struct {
	Brand string `json:"brand"`
	Model string `json:"model"`
	Name  string `json:"name"`
}

// Parse extracts the product list from a contract PDF. Duplicate models
// (compared in normalized form) keep their first occurrence.
func (p *Parser) Parse(ctx context.Context, contractPDF []byte) ([]manual.ProductIdentity, error) {
	text, err := extractText(contractPDF)
	if err != nil {
		return nil, fmt.Errorf("contract text: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("contract text: document contains no extractable text")
	}
	return p.parseText(ctx, text)
}

// parseText runs the completion over already-extracted contract text.
func (p *Parser) parseText(ctx context.Context, text string) ([]manual.ProductIdentity, error) {
	reply, err := p.completer.Complete(ctx, parseSystemPrompt, text)
	if err != nil {
		return nil, fmt.Errorf("contract parse: %w", err)
	}

	products, err := decodeProducts(reply)
	if err != nil {
		return nil, fmt.Errorf("contract parse: %w", err)
	}

	seen := make(map[string]bool)
	identities := make([]manual.ProductIdentity, 0, len(products))
	for _, prod := range products {
		identity := manual.NewIdentity(prod.Brand, prod.Model, prod.Name)
		if identity.Model == "" || seen[identity.Model] {
			continue
		}
		seen[identity.Model] = true
		identities = append(identities, identity)
	}
	p.logger.Info("contract parsed",
		zap.Int("products", len(identities)),
		zap.Int("raw_entries", len(products)))
	return identities, nil
}

// decodeProducts unmarshals the model reply, tolerating markdown code fences
// around the JSON.
func decodeProducts(reply string) ([]parsedProduct, error) {
	cleaned := strings.TrimSpace(reply)
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "```")
		cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "```")
		cleaned = strings.TrimSpace(cleaned)
	}
	var products []parsedProduct
	if err := json.Unmarshal([]byte(cleaned), &products); err != nil {
		return nil, fmt.Errorf("decode product list: %w", err)
	}
	return products, nil
}
