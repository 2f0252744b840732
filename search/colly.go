// Package search fetches marketplace result pages and extracts raw listings.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	"nichescout/config"
	"nichescout/models"
)

// Provider fetches one search result page. An empty slice with a nil error
// means the result set is exhausted at that page.
type Provider interface {
	SearchPage(ctx context.Context, query string, page int, country string) ([]models.RawListing, error)
}

var marketplaceHosts = map[string]string{
	"us": "www.amazon.com",
	"uk": "www.amazon.co.uk",
	"de": "www.amazon.de",
	"fr": "www.amazon.fr",
	"it": "www.amazon.it",
	"es": "www.amazon.es",
	"ca": "www.amazon.ca",
	"jp": "www.amazon.co.jp",
}

// CollyProvider implements Provider on top of a colly collector.
type CollyProvider struct {
	cfg       *config.Config
	collector *colly.Collector
	Metrics   *Metrics
}

// NewCollyProvider builds a provider configured from cfg.
func NewCollyProvider(cfg *config.Config) (*CollyProvider, error) {
	if _, ok := marketplaceHosts[strings.ToLower(cfg.CountryCode)]; !ok {
		return nil, fmt.Errorf("unsupported country code %q", cfg.CountryCode)
	}

	hosts := make([]string, 0, len(marketplaceHosts))
	for _, h := range marketplaceHosts {
		hosts = append(hosts, h)
	}
	collector := colly.NewCollector(
		colly.AllowedDomains(hosts...),
		colly.UserAgent(cfg.UserAgent),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = true
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
		Delay:       cfg.Delay,
		RandomDelay: cfg.RandomDelay,
	}); err != nil {
		return nil, fmt.Errorf("configure rate limits: %w", err)
	}

	return &CollyProvider{
		cfg:       cfg,
		collector: collector,
		Metrics:   NewMetrics(),
	}, nil
}

// WithTransport overrides the HTTP transport, used by tests.
func (p *CollyProvider) WithTransport(rt http.RoundTripper) {
	p.collector.WithTransport(rt)
}

func (p *CollyProvider) searchURL(query string, page int, country string) string {
	if country == "" {
		country = p.cfg.CountryCode
	}
	host, ok := marketplaceHosts[strings.ToLower(country)]
	if !ok {
		host = marketplaceHosts[strings.ToLower(p.cfg.CountryCode)]
	}
	u := url.URL{Scheme: "https", Host: host, Path: "/s"}
	q := u.Query()
	q.Set("k", query)
	if page > 1 {
		q.Set("page", strconv.Itoa(page))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// SearchPage fetches one result page and extracts its listings. Transient
// failures are retried with exponential backoff up to the configured limit.
func (p *CollyProvider) SearchPage(ctx context.Context, query string, page int, country string) ([]models.RawListing, error) {
	pageURL := p.searchURL(query, page, country)

	var lastErr error
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if attempt > 0 {
			p.Metrics.IncRetries()
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(p.backoff(attempt)):
			}
		}

		listings, err := p.fetchPage(pageURL)
		if err == nil {
			p.Metrics.IncPage("ok")
			p.Metrics.AddListings(len(listings))
			return listings, nil
		}

		lastErr = err
		p.Metrics.IncError(errorTypeLabel(err))
		slog.Warn("search page fetch failed",
			slog.String("query", query),
			slog.Int("page", page),
			slog.Int("attempt", attempt+1),
			slog.Any("error", err),
		)
		if !Transient(err) {
			break
		}
	}

	p.Metrics.IncPage("error")
	return nil, fmt.Errorf("search %q page %d: %w", query, page, lastErr)
}

func (p *CollyProvider) backoff(attempt int) time.Duration {
	base := p.cfg.RetryBackoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	delay := base * time.Duration(1<<(attempt-1))
	if max := p.cfg.RetryBackoffMax; max > 0 && delay > max {
		delay = max
	}
	return delay
}

func (p *CollyProvider) fetchPage(pageURL string) ([]models.RawListing, error) {
	c := p.collector.Clone()

	var (
		mu       sync.Mutex
		listings []models.RawListing
		fetchErr error
	)

	start := time.Now()

	c.OnHTML("div[data-asin]", func(e *colly.HTMLElement) {
		l := extractListing(e)
		if l == nil {
			return
		}
		mu.Lock()
		listings = append(listings, *l)
		mu.Unlock()
	})

	c.OnError(func(r *colly.Response, err error) {
		statusCode := 0
		if r != nil {
			statusCode = r.StatusCode
		}
		mu.Lock()
		fetchErr = classifyError(err, statusCode)
		mu.Unlock()
	})

	if err := c.Visit(pageURL); err != nil {
		c.Wait()
		mu.Lock()
		defer mu.Unlock()
		if fetchErr != nil {
			return nil, fetchErr
		}
		return nil, classifyError(err, 0)
	}
	c.Wait()

	p.Metrics.ObserveDuration(time.Since(start))

	mu.Lock()
	defer mu.Unlock()
	if fetchErr != nil {
		return nil, fetchErr
	}
	return listings, nil
}

// extractListing pulls one listing out of a result cell. Cells without an
// identifier or a title are placeholders and are skipped.
func extractListing(e *colly.HTMLElement) *models.RawListing {
	id := strings.TrimSpace(e.Attr("data-asin"))
	if id == "" {
		return nil
	}

	name := strings.TrimSpace(e.ChildText("h2 span"))
	if name == "" {
		return nil
	}

	href := e.ChildAttr("h2 a", "href")
	listingURL := ""
	if href != "" {
		listingURL = e.Request.AbsoluteURL(href)
	}

	l := &models.RawListing{
		ID:        id,
		Name:      name,
		Brand:     strings.TrimSpace(e.ChildText("h5.s-line-clamp-1")),
		PriceText: strings.TrimSpace(e.ChildText("span.a-price span.a-offscreen")),
		URL:       listingURL,
	}

	if ratingText := e.ChildText("span.a-icon-alt"); ratingText != "" {
		l.Rating = parseRating(ratingText)
	}
	if countText := e.ChildText("span.a-size-base.s-underline-text"); countText != "" {
		l.ReviewCount = parseCount(countText)
	}

	e.ForEach("span.a-size-base.a-color-secondary", func(_ int, s *colly.HTMLElement) {
		text := strings.TrimSpace(s.Text)
		if l.SalesMessage == "" && strings.Contains(strings.ToLower(text), "bought") {
			l.SalesMessage = text
		}
	})

	return l
}

// parseRating reads the leading number of marketplace rating text, for
// example "4.5 out of 5 stars".
func parseRating(text string) *float64 {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return nil
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil || v < 0 || v > 5 {
		return nil
	}
	return &v
}

// parseCount reads a grouped integer such as "1,234".
func parseCount(text string) *int {
	cleaned := strings.ReplaceAll(strings.TrimSpace(text), ",", "")
	v, err := strconv.Atoi(cleaned)
	if err != nil || v < 0 {
		return nil
	}
	return &v
}
