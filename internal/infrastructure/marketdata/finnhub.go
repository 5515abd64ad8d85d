package marketdata

import (
	"context"
	"fmt"
	"strconv"
	"time"

	finnhub "github.com/Finnhub-Stock-API/finnhub-go/v2"

	"NewsDesk/internal/domain"
	"NewsDesk/internal/ports"
)

// Client wraps the Finnhub API for both market news and quotes.
type Client struct {
	api *finnhub.DefaultApiService
}

var _ ports.PriceFeed = (*Client)(nil)

// NewClient authenticates with an API key.
func NewClient(apiKey string) *Client {
	cfg := finnhub.NewConfiguration()
	cfg.AddDefaultHeader("X-Finnhub-Token", apiKey)
	return &Client{api: finnhub.NewAPIClient(cfg).DefaultApi}
}

// Quote returns the current price for one symbol.
func (c *Client) Quote(ctx context.Context, symbol string) (domain.Quote, error) {
	res, _, err := c.api.Quote(ctx).Symbol(symbol).Execute()
	if err != nil {
		return domain.Quote{}, fmt.Errorf("finnhub quote %s: %w", symbol, err)
	}

	value := float64(res.GetC())
	if value == 0 {
		return domain.Quote{}, fmt.Errorf("finnhub quote %s: no price data", symbol)
	}

	ts := time.Now()
	if res.GetT() > 0 {
		ts = time.Unix(res.GetT(), 0)
	}

	return domain.Quote{Symbol: symbol, Value: value, Timestamp: ts}, nil
}

// NewsSource adapts Finnhub's market-news endpoint as a pipeline source.
type NewsSource struct {
	client   *Client
	name     string
	category string
	maxItems int
}

var _ ports.NewsSource = (*NewsSource)(nil)

// NewNewsSource builds a source over one news category.
func NewNewsSource(client *Client, name, category string, maxItems int) *NewsSource {
	if category == "" {
		category = "general"
	}
	if maxItems <= 0 {
		maxItems = 20
	}
	return &NewsSource{client: client, name: name, category: category, maxItems: maxItems}
}

// Name identifies the source in logs and dedup keys.
func (s *NewsSource) Name() string { return s.name }

// Fetch pulls the latest market news for the configured category.
func (s *NewsSource) Fetch(ctx context.Context) ([]domain.NewsItem, error) {
	res, _, err := s.client.api.MarketNews(ctx).Category(s.category).Execute()
	if err != nil {
		return nil, fmt.Errorf("finnhub market news: %w", err)
	}

	count := min(len(res), s.maxItems)
	items := make([]domain.NewsItem, 0, count)
	for _, news := range res[:count] {
		item := domain.NewsItem{SourceID: s.name}

		if news.Id != nil {
			item.ExternalID = strconv.FormatInt(*news.Id, 10)
		}
		if news.Headline != nil {
			item.Title = *news.Headline
		}
		if news.Summary != nil {
			item.Body = *news.Summary
		}
		if news.Url != nil {
			item.URL = *news.Url
		}
		if news.Datetime != nil {
			item.PublishedAt = time.Unix(*news.Datetime, 0)
		}

		items = append(items, item)
	}

	return items, nil
}
