package resolver

import (
	"context"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// PageScanner fetches an HTML page and collects every hyperlink that looks
// like a document download: the target must end in the document extension and
// either mention a documentation keyword (URL or link text) or contain the
// model token. An empty model token accepts every document link on the page.
// Relative links are resolved against the page URL. Candidates
// are returned undownloaded; fetching and validation belong to the caller.
type PageScanner struct {
	base      *colly.Collector
	userAgent string
	logger    *zap.Logger
}

// NewPageScanner builds a PageScanner.
func NewPageScanner(userAgent string, timeout, courtesyDelay time.Duration, logger *zap.Logger) *PageScanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	c := colly.NewCollector(colly.Async(false))
	c.SetRequestTimeout(timeout)
	if courtesyDelay > 0 {
		// Courtesy pacing is part of the search contract.
		_ = c.Limit(&colly.LimitRule{DomainGlob: "*", Delay: courtesyDelay})
	}
	return &PageScanner{
		base:      c,
		userAgent: userAgent,
		logger:    logger,
	}
}

// Scan returns candidate document URLs discovered on the page, in document
// order, deduplicated. A fetch or parse failure yields an empty list; page
// scanning is always best-effort.
func (s *PageScanner) Scan(ctx context.Context, pageURL, modelToken string) []string {
	if ctx.Err() != nil {
		return nil
	}

	collector := s.base.Clone()
	if s.userAgent != "" {
		collector.UserAgent = s.userAgent
	}

	model := strings.ToLower(strings.TrimSpace(modelToken))
	seen := make(map[string]bool)
	var candidates []string

	collector.OnHTML("a[href]", func(e *colly.HTMLElement) {
		href := e.Attr("href")
		if href == "" {
			return
		}
		abs := e.Request.AbsoluteURL(href)
		if abs == "" {
			abs = href
		}
		if !isPDFLink(abs) {
			return
		}
		lowerHref := strings.ToLower(href)
		linkText := strings.ToLower(strings.TrimSpace(e.Text))
		hasKeyword := containsDocumentationKeyword(lowerHref) || containsDocumentationKeyword(linkText)
		// An empty model token matches every link, so callers that only
		// know a page URL still collect all document links on it.
		hasModel := model == "" || strings.Contains(lowerHref, model) || strings.Contains(linkText, model)
		if !hasKeyword && !hasModel {
			return
		}
		if !seen[abs] {
			seen[abs] = true
			candidates = append(candidates, abs)
		}
	})

	if err := collector.Visit(pageURL); err != nil {
		s.logger.Debug("page scan fetch failed", zap.String("url", pageURL), zap.Error(err))
	}
	return candidates
}
