package ingestion

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"
)

// CrawlerConfig holds the settings for constructing a Crawler.
type CrawlerConfig struct {
	// HTTPTimeout is the timeout for each page fetch. Defaults to 30s if zero.
	HTTPTimeout time.Duration

	// UserAgent is the HTTP User-Agent header sent with fetch requests.
	UserAgent string

	// RequestsPerSecond caps the fetch rate against the documentation host.
	// Defaults to 2 if zero.
	RequestsPerSecond float64
}

// Crawler discovers and fetches documentation pages. Link discovery is
// restricted to the seed page's origin so the crawl set stays finite. Fetches
// are rate-limited to stay polite to the documentation host.
type Crawler struct {
	// client is the HTTP client used for all fetches.
	client *http.Client

	// limiter throttles outbound requests.
	limiter *rate.Limiter

	// userAgent is sent with every request.
	userAgent string
}

// NewCrawler constructs a Crawler from the given config.
func NewCrawler(cfg *CrawlerConfig) *Crawler {
	if cfg == nil {
		cfg = &CrawlerConfig{}
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "docsqa-go/1.0 (documentation ingestion)"
	}
	return &Crawler{
		client:    &http.Client{Timeout: timeout},
		limiter:   rate.NewLimiter(rate.Limit(rps), 1),
		userAgent: userAgent,
	}
}

// Discover fetches the seed page and returns the seed URL followed by every
// same-origin page it links to, deduplicated and sorted for a deterministic
// crawl order.
func (c *Crawler) Discover(ctx context.Context, seedURL string) ([]string, error) {
	seed, err := url.Parse(seedURL)
	if err != nil {
		return nil, fmt.Errorf("ingestion: invalid seed URL %q: %w", seedURL, err)
	}
	base := seed.Scheme + "://" + seed.Host

	body, err := c.Fetch(ctx, seedURL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ingestion: parse seed page: %w", err)
	}

	links := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		switch {
		case strings.HasPrefix(href, "/"):
			links[base+href] = struct{}{}
		case strings.HasPrefix(href, "http") && strings.HasPrefix(href, base):
			links[href] = struct{}{}
		}
	})
	delete(links, seedURL)

	urls := make([]string, 0, 1+len(links))
	urls = append(urls, seedURL)
	discovered := make([]string, 0, len(links))
	for link := range links {
		discovered = append(discovered, link)
	}
	sort.Strings(discovered)
	return append(urls, discovered...), nil
}

// Fetch retrieves the raw HTML of a URL, waiting on the rate limiter first.
func (c *Crawler) Fetch(ctx context.Context, pageURL string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("ingestion: rate limiter wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("ingestion: creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ingestion: http get %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ingestion: unexpected status %d for %s", resp.StatusCode, pageURL)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("ingestion: reading body: %w", err)
	}
	return string(body), nil
}
