package resolver

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ati-tools/manualfinder/internal/manual"
	"github.com/ati-tools/manualfinder/internal/metrics"
)

// WarrantyFinder looks up the product's warranty duration: it searches the
// web for warranty pages, pulls their text, and hands each page to the
// extractor until one yields a phrase. A product with no discoverable
// warranty produces an empty string, which is a valid outcome.
type WarrantyFinder struct {
	engine      SearchEngine
	fetcher     *Fetcher
	extractor   manual.TextExtractor
	maxResults  int
	pageTextMax int
	logger      *zap.Logger
}

// NewWarrantyFinder wires the finder. pageTextMax bounds how much page text
// is passed to the extractor per page.
func NewWarrantyFinder(engine SearchEngine, fetcher *Fetcher, extractor manual.TextExtractor, maxResults, pageTextMax int, logger *zap.Logger) *WarrantyFinder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxResults <= 0 {
		maxResults = 5
	}
	if pageTextMax <= 0 {
		pageTextMax = 8000
	}
	return &WarrantyFinder{
		engine:      engine,
		fetcher:     fetcher,
		extractor:   extractor,
		maxResults:  maxResults,
		pageTextMax: pageTextMax,
		logger:      logger,
	}
}

func warrantyQueries(identity manual.ProductIdentity) []string {
	label := strings.TrimSpace(identity.Label())
	queries := []string{
		fmt.Sprintf("%s warranty period", label),
	}
	if identity.Brand != "" {
		queries = append(queries, fmt.Sprintf("%s product warranty terms", identity.Brand))
	}
	return queries
}

// Find returns the warranty phrase for the product, or "" when none was
// found. Page fetch and extraction failures are skipped, not fatal.
func (f *WarrantyFinder) Find(ctx context.Context, identity manual.ProductIdentity) (string, error) {
	for _, query := range warrantyQueries(identity) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		results, err := f.engine.Search(ctx, query, f.maxResults)
		if err != nil {
			f.logger.Warn("warranty search failed", zap.String("query", query), zap.Error(err))
			continue
		}
		for _, result := range results {
			if isPDFLink(result) {
				continue
			}
			text, err := f.fetcher.PageText(ctx, result, f.pageTextMax)
			if err != nil || text == "" {
				continue
			}
			phrase, err := f.extractor.ExtractWarranty(ctx, text, identity)
			if err != nil {
				f.logger.Warn("warranty extraction failed",
					zap.String("url", result), zap.Error(err))
				continue
			}
			if phrase != "" {
				metrics.ObserveWarrantyExtracted()
				return phrase, nil
			}
		}
	}
	return "", nil
}
