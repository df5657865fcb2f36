package crawl

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xxxsen/docsearch/internal/parse"
)

const maxPageBytes = 4 << 20

// Page is one successfully fetched and text-extracted crawl target.
type Page struct {
	URL  string
	Text string
}

// Fetcher downloads planned URLs under a global rate limit. Per-URL failures
// are logged and skipped; they never fail the batch.
type Fetcher struct {
	client  *http.Client
	timeout time.Duration
}

func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Fetcher{
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// Fetch retrieves every URL in plan, returning the pages that succeeded in
// plan order.
func (f *Fetcher) Fetch(ctx context.Context, plan []string, perSec float64) []Page {
	if perSec <= 0 {
		perSec = 1.0
	}
	limiter := rate.NewLimiter(rate.Limit(perSec), 1)
	logger := logutil.GetLogger(ctx)
	pages := make([]Page, 0, len(plan))
	for _, target := range plan {
		if err := limiter.Wait(ctx); err != nil {
			logger.Warn("crawl aborted", zap.Error(err))
			break
		}
		text, err := f.fetchOne(ctx, target)
		if err != nil {
			logger.Warn("fetch failed, skipping url", zap.String("url", target), zap.Error(err))
			continue
		}
		pages = append(pages, Page{URL: target, Text: text})
	}
	return pages
}

func (f *Fetcher) fetchOne(ctx context.Context, target string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "docsearch-crawler/1.0")
	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status: %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", err
	}
	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "html") || looksLikeHTML(body) {
		return parse.HTMLToText(string(body)), nil
	}
	return string(body), nil
}

func looksLikeHTML(body []byte) bool {
	head := strings.ToLower(string(body[:min(len(body), 512)]))
	return strings.Contains(head, "<html") || strings.Contains(head, "<!doctype html")
}
