package resolver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ati-tools/manualfinder/internal/metrics"
)

// FetchConfig controls the shared download client.
type FetchConfig struct {
	UserAgent       string
	CourtesyDelay   time.Duration
	PageTimeout     time.Duration
	DownloadTimeout time.Duration
}

// Fetcher performs direct HTTP retrievals: document downloads and page-text
// fetches. A single rate limiter paces all outbound calls so bursts against
// third-party services stay within the courtesy delay.
type Fetcher struct {
	cfg     FetchConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewFetcher builds a Fetcher. The courtesy delay is part of the external
// contract, not a tuning knob; a zero delay disables pacing (tests only).
func NewFetcher(cfg FetchConfig, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PageTimeout == 0 {
		cfg.PageTimeout = 15 * time.Second
	}
	if cfg.DownloadTimeout == 0 {
		cfg.DownloadTimeout = 30 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.CourtesyDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.CourtesyDelay), 1)
	}
	return &Fetcher{
		cfg:     cfg,
		client:  &http.Client{},
		limiter: limiter,
		logger:  logger,
	}
}

// DownloadPDF fetches a URL and returns the payload when it validates as a
// PDF. Transport failures and validation failures are equivalent: both mean
// this candidate produced nothing, and the pipeline moves on.
func (f *Fetcher) DownloadPDF(ctx context.Context, url string) ([]byte, bool) {
	body, contentType, err := f.get(ctx, url, f.cfg.DownloadTimeout)
	if err != nil {
		f.logger.Debug("document download failed", zap.String("url", url), zap.Error(err))
		metrics.ObserveDownload("error")
		return nil, false
	}
	if !ValidPDF(body, contentType) {
		f.logger.Debug("payload is not a document", zap.String("url", url), zap.String("content_type", contentType))
		metrics.ObserveDownload("invalid")
		return nil, false
	}
	metrics.ObserveDownload("valid")
	f.logger.Debug("downloaded document", zap.String("url", url), zap.Int("bytes", len(body)))
	return body, true
}

// PageText fetches a page and returns its visible text, truncated to limit
// runes. Script, style and chrome elements are stripped.
func (f *Fetcher) PageText(ctx context.Context, url string, limit int) (string, error) {
	body, _, err := f.get(ctx, url, f.cfg.PageTimeout)
	if err != nil {
		return "", err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return "", fmt.Errorf("parse page: %w", err)
	}
	doc.Find("script, style, nav, footer, header").Remove()
	text := strings.Join(strings.Fields(doc.Text()), " ")
	if limit > 0 {
		if runes := []rune(text); len(runes) > limit {
			text = string(runes[:limit])
		}
	}
	return text, nil
}

func (f *Fetcher) get(ctx context.Context, url string, timeout time.Duration) ([]byte, string, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, "", fmt.Errorf("courtesy delay: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("get %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read body: %w", err)
	}
	return body, resp.Header.Get("Content-Type"), nil
}
