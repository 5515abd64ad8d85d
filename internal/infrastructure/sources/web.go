package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"NewsDesk/internal/config"
	"NewsDesk/internal/domain"
	"NewsDesk/internal/ports"
)

// WebSource scrapes an article listing page with configured selectors.
type WebSource struct {
	name      string
	pageURL   string
	selectors config.SelectorConfig
	maxItems  int
	client    *http.Client
}

var _ ports.NewsSource = (*WebSource)(nil)

// NewWebSource wires an HTTP client; a nil client gets a sane default.
func NewWebSource(name, pageURL string, selectors config.SelectorConfig, maxItems int, client *http.Client) *WebSource {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if maxItems <= 0 {
		maxItems = 20
	}
	return &WebSource{
		name:      name,
		pageURL:   pageURL,
		selectors: selectors,
		maxItems:  maxItems,
		client:    client,
	}
}

// Name identifies the source in logs and dedup keys.
func (s *WebSource) Name() string { return s.name }

// Fetch downloads the listing page and extracts one item per entry selector
// match. Entries missing a link or title are skipped individually.
func (s *WebSource) Fetch(ctx context.Context) ([]domain.NewsItem, error) {
	doc, err := s.fetchDocument(ctx)
	if err != nil {
		return nil, err
	}

	var items []domain.NewsItem
	doc.Find(s.selectors.Entry).EachWithBreak(func(_ int, entry *goquery.Selection) bool {
		item, ok := s.parseEntry(entry)
		if ok {
			items = append(items, item)
		}
		return len(items) < s.maxItems
	})

	return items, nil
}

func (s *WebSource) fetchDocument(ctx context.Context) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "NewsDesk/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned %s", s.name, resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

func (s *WebSource) parseEntry(entry *goquery.Selection) (domain.NewsItem, bool) {
	link := entry.Find(s.selectors.Link).First()
	href, _ := link.Attr("href")
	href = s.absoluteURL(href)

	title := strings.TrimSpace(entry.Find(s.selectors.Title).First().Text())
	if title == "" || href == "" {
		return domain.NewsItem{}, false
	}

	body := strings.TrimSpace(entry.Find(s.selectors.Body).First().Text())

	publishedAt := time.Time{}
	if s.selectors.Date != "" && s.selectors.DateLayout != "" {
		dateText := strings.TrimSpace(entry.Find(s.selectors.Date).First().Text())
		if parsed, err := time.Parse(s.selectors.DateLayout, dateText); err == nil {
			publishedAt = parsed
		}
	}

	return domain.NewsItem{
		SourceID:    s.name,
		ExternalID:  href,
		Title:       title,
		Body:        body,
		URL:         href,
		PublishedAt: publishedAt,
	}, true
}

func (s *WebSource) absoluteURL(href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "http") {
		return href
	}
	base, err := url.Parse(s.pageURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
