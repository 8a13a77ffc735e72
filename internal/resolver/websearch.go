package resolver

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/ati-tools/manualfinder/internal/manual"
	"github.com/ati-tools/manualfinder/internal/metrics"
)

// SearchEngine returns result URLs for a free-text query, best first.
type SearchEngine interface {
	Search(ctx context.Context, query string, maxResults int) ([]string, error)
}

// DuckDuckGoEngine scrapes the DuckDuckGo HTML endpoint. The HTML variant
// needs no API key and serves static markup.
type DuckDuckGoEngine struct {
	base        *colly.Collector
	endpointURL string
	userAgent   string
	logger      *zap.Logger
}

// NewDuckDuckGoEngine builds the engine. endpointURL defaults to the public
// HTML endpoint when empty.
func NewDuckDuckGoEngine(endpointURL, userAgent string, timeout, courtesyDelay time.Duration, logger *zap.Logger) *DuckDuckGoEngine {
	if endpointURL == "" {
		endpointURL = "https://html.duckduckgo.com/html/"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	c := colly.NewCollector(colly.Async(false))
	c.SetRequestTimeout(timeout)
	if courtesyDelay > 0 {
		_ = c.Limit(&colly.LimitRule{DomainGlob: "*", Delay: courtesyDelay})
	}
	return &DuckDuckGoEngine{
		base:        c,
		endpointURL: endpointURL,
		userAgent:   userAgent,
		logger:      logger,
	}
}

// Search runs one query and returns cleaned result URLs. Engine-internal
// links (redirect hosts, ad slots) are filtered out.
func (e *DuckDuckGoEngine) Search(ctx context.Context, query string, maxResults int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	metrics.ObserveSearchQuery()

	engineHost := ""
	if u, err := url.Parse(e.endpointURL); err == nil {
		engineHost = u.Host
	}

	collector := e.base.Clone()
	if e.userAgent != "" {
		collector.UserAgent = e.userAgent
	}

	seen := make(map[string]bool)
	var results []string

	collector.OnHTML("a.result__a", func(el *colly.HTMLElement) {
		if maxResults > 0 && len(results) >= maxResults {
			return
		}
		href := el.Attr("href")
		cleaned := cleanResultURL(el.Request.AbsoluteURL(href))
		if cleaned == "" {
			return
		}
		if u, err := url.Parse(cleaned); err != nil || u.Host == "" || u.Host == engineHost {
			return
		}
		if !seen[cleaned] {
			seen[cleaned] = true
			results = append(results, cleaned)
		}
	})

	searchURL := fmt.Sprintf("%s?q=%s", e.endpointURL, url.QueryEscape(query))
	if err := collector.Visit(searchURL); err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	e.logger.Debug("search complete", zap.String("query", query), zap.Int("results", len(results)))
	return results, nil
}

// cleanResultURL unwraps DuckDuckGo redirect links of the form
// //duckduckgo.com/l/?uddg=<escaped-target>.
func cleanResultURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if strings.Contains(u.Path, "/l/") {
		if target := u.Query().Get("uddg"); target != "" {
			if unescaped, err := url.QueryUnescape(target); err == nil {
				raw = unescaped
			} else {
				raw = target
			}
		}
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		return ""
	}
	return raw
}

// WebSearchResolver finds documents via a search engine. It runs a ladder of
// queries, first trying results that link a document directly, then scanning
// the leading non-document result pages for document links.
type WebSearchResolver struct {
	engine     SearchEngine
	fetcher    *Fetcher
	scanner    *PageScanner
	maxResults int
	scanPages  int
	logger     *zap.Logger
}

// NewWebSearchResolver wires the resolver.
func NewWebSearchResolver(engine SearchEngine, fetcher *Fetcher, scanner *PageScanner, maxResults, scanPages int, logger *zap.Logger) *WebSearchResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxResults <= 0 {
		maxResults = 10
	}
	if scanPages <= 0 {
		scanPages = 4
	}
	return &WebSearchResolver{
		engine:     engine,
		fetcher:    fetcher,
		scanner:    scanner,
		maxResults: maxResults,
		scanPages:  scanPages,
		logger:     logger,
	}
}

func (r *WebSearchResolver) Name() string { return "web_search" }

// buildQueries returns the query ladder for an identity: a user-manual
// query, a site-scoped (or looser installation-manual) query, and a support
// query. The engine does not honor filetype: operators reliably, so the
// queries lean on plain keywords instead.
func buildQueries(identity manual.ProductIdentity) []string {
	label := strings.TrimSpace(identity.Label())
	queries := []string{fmt.Sprintf("%s user manual PDF", label)}
	if domain := manufacturerDomain(identity.Brand); domain != "" {
		queries = append(queries, fmt.Sprintf("site:%s %s manual", domain, identity.Model))
	} else {
		queries = append(queries, fmt.Sprintf("%s installation manual PDF", identity.Model))
	}
	return append(queries, fmt.Sprintf("%s product support documentation", label))
}

// Resolve walks the query ladder. For each query it downloads direct document
// links first, then scans the leading HTML result pages for document links
// and downloads those. The first download that validates wins.
func (r *WebSearchResolver) Resolve(ctx context.Context, identity manual.ProductIdentity) (manual.Resolution, error) {
	for _, query := range buildQueries(identity) {
		if err := ctx.Err(); err != nil {
			return manual.Resolution{}, err
		}
		results, err := r.engine.Search(ctx, query, r.maxResults)
		if err != nil {
			r.logger.Warn("search query failed",
				zap.String("query", query),
				zap.Error(err))
			continue
		}

		var pages []string
		for _, result := range results {
			if isPDFLink(result) {
				if body, ok := r.fetcher.DownloadPDF(ctx, result); ok {
					return manual.Found(result, body), nil
				}
				continue
			}
			pages = append(pages, result)
		}

		scanned := 0
		for _, page := range pages {
			if scanned >= r.scanPages {
				break
			}
			scanned++
			for _, candidate := range r.scanner.Scan(ctx, page, identity.Model) {
				if body, ok := r.fetcher.DownloadPDF(ctx, candidate); ok {
					return manual.Found(candidate, body), nil
				}
			}
		}
	}
	return manual.NotFound(), nil
}
