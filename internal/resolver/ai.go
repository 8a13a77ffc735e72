package resolver

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/ati-tools/manualfinder/internal/manual"
)

// GroundedAnswer is a search-grounded model response: the answer text plus
// the source URLs the model cited.
type GroundedAnswer struct {
	Text      string
	Citations []string
}

// GroundedSearcher answers a prompt using a model with live web grounding.
type GroundedSearcher interface {
	Search(ctx context.Context, prompt string) (GroundedAnswer, error)
}

// AIResolver asks a grounded model where the product's manual lives, then
// works through the returned URLs: direct document links are downloaded and
// validated, HTML citations are scanned for document links. When the model
// names a URL that never validates as a document, the resolver still reports
// it so the caller can record a reference link.
type AIResolver struct {
	searcher  GroundedSearcher
	fetcher   *Fetcher
	scanner   *PageScanner
	scanPages int
	logger    *zap.Logger
}

// NewAIResolver wires the resolver. scanPages bounds how many HTML citations
// get scanned for document links.
func NewAIResolver(searcher GroundedSearcher, fetcher *Fetcher, scanner *PageScanner, scanPages int, logger *zap.Logger) *AIResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if scanPages <= 0 {
		scanPages = 3
	}
	return &AIResolver{
		searcher:  searcher,
		fetcher:   fetcher,
		scanner:   scanner,
		scanPages: scanPages,
		logger:    logger,
	}
}

func (r *AIResolver) Name() string { return "ai_search" }

var pdfURLPattern = regexp.MustCompile(`(?i)PDF_URL:\s*(https?://\S+)`)

func aiPrompt(identity manual.ProductIdentity) string {
	prompt := fmt.Sprintf(
		"Find the official user manual or installation guide PDF for the product %q. "+
			"Prefer the manufacturer's own website. ",
		identity.Label())
	if domain := manufacturerDomain(identity.Brand); domain != "" {
		prompt += fmt.Sprintf("The manufacturer's site is likely %s. ", domain)
	}
	return prompt +
		"If you find a direct PDF link, reply with a line of the form PDF_URL: <url>. " +
		"Otherwise reply with the most relevant documentation page URL you found."
}

// rankCandidates orders URLs by how likely each is to be the document:
// explicit PDF_URL answers first, then cited document links, then citations
// whose URL mentions documentation, then everything else.
func rankCandidates(answer GroundedAnswer) []string {
	seen := make(map[string]bool)
	var ranked []string
	add := func(u string) {
		u = strings.TrimRight(strings.TrimSpace(u), ".,)")
		if u == "" || seen[u] {
			return
		}
		seen[u] = true
		ranked = append(ranked, u)
	}

	for _, m := range pdfURLPattern.FindAllStringSubmatch(answer.Text, -1) {
		add(m[1])
	}
	for _, c := range answer.Citations {
		if isPDFLink(c) {
			add(c)
		}
	}
	for _, c := range answer.Citations {
		if containsDocumentationKeyword(strings.ToLower(c)) {
			add(c)
		}
	}
	for _, c := range answer.Citations {
		add(c)
	}
	return ranked
}

// Resolve queries the grounded model and chases its candidates. Outcomes in
// order of preference: a validated download, a reference URL the model named
// but that never validated, or not found.
func (r *AIResolver) Resolve(ctx context.Context, identity manual.ProductIdentity) (manual.Resolution, error) {
	answer, err := r.searcher.Search(ctx, aiPrompt(identity))
	if err != nil {
		return manual.Resolution{}, fmt.Errorf("grounded search for %s: %w", identity.Label(), err)
	}

	candidates := rankCandidates(answer)
	if len(candidates) == 0 {
		return manual.NotFound(), nil
	}

	// Every candidate gets a direct download attempt first; servers often
	// hand back PDFs from extensionless URLs.
	for _, candidate := range candidates {
		if body, ok := r.fetcher.DownloadPDF(ctx, candidate); ok {
			return manual.Found(candidate, body), nil
		}
	}

	scanned := 0
	for _, candidate := range candidates {
		if isPDFLink(candidate) {
			continue
		}
		if scanned >= r.scanPages {
			break
		}
		scanned++
		for _, link := range r.scanner.Scan(ctx, candidate, identity.Model) {
			if body, ok := r.fetcher.DownloadPDF(ctx, link); ok {
				return manual.Found(link, body), nil
			}
		}
	}

	best := candidates[0]
	r.logger.Debug("grounded search yielded reference link only",
		zap.String("model", identity.Model),
		zap.String("url", best))
	return manual.URLOnly(best), nil
}
