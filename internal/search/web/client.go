package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/adstrategy/backend/internal/apperr"
	"github.com/adstrategy/backend/internal/metrics"
	"github.com/adstrategy/backend/pkg/circuitbreaker"
	"github.com/adstrategy/backend/pkg/config"
	"github.com/adstrategy/backend/pkg/logger"
	"github.com/adstrategy/backend/pkg/retry"
)

const (
	serpAPIURL    = "https://serpapi.com/search"
	duckDuckGoURL = "https://html.duckduckgo.com/html/"
	userAgent     = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	maxContentLen = 5000
)

type Client struct {
	serpAPIKey  string
	serpURL     string
	ddgURL      string
	httpClient  *http.Client
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

type SearchResult struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Link    string `json:"link"`
}

func NewClient(cfg config.SearchConfig) *Client {
	timeout := config.Seconds(cfg.TimeoutSec)
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	retryConfig := retry.Config{
		MaxAttempts:    cfg.MaxAttempts,
		InitialDelay:   300 * time.Millisecond,
		MaxDelay:       3 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}
	if retryConfig.MaxAttempts <= 0 {
		retryConfig.MaxAttempts = 1
	}

	return &Client{
		serpAPIKey: cfg.SerpAPIKey,
		serpURL:    serpAPIURL,
		ddgURL:     duckDuckGoURL,
		httpClient: &http.Client{Timeout: timeout},
		cb: circuitbreaker.NewCircuitBreaker("web_search", circuitbreaker.Config{
			Timeout:          30 * time.Second,
			FailureThreshold: 5,
			OnStateChange:    metrics.BreakerStateChanged,
			Logger:           logger.GetLogger(),
		}),
		retryConfig: retryConfig,
	}
}

// Search returns at most maxResults hits for query. An empty result set is
// not an error; transport and decoding failures are reported as
// apperr.KindExternalService.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	if maxResults <= 0 {
		maxResults = 5
	}

	logger.Info("Performing web search", zap.String("query", query), zap.Int("max_results", maxResults))

	results, err := retry.DoWithResult(ctx, c.retryConfig, func() ([]SearchResult, error) {
		var found []SearchResult
		err := c.cb.Execute(ctx, func() error {
			var err error
			if c.serpAPIKey != "" {
				found, err = c.searchWithSerpAPI(ctx, query, maxResults)
			} else {
				found, err = c.searchWithDuckDuckGo(ctx, query, maxResults)
			}
			return err
		})
		return found, err
	})
	if err != nil {
		metrics.ExternalCallErrors.WithLabelValues("web_search").Inc()
		return nil, apperr.ExternalService("web search", err)
	}

	logger.Info("Web search completed", zap.String("query", query), zap.Int("results", len(results)))

	return results, nil
}

func (c *Client) searchWithSerpAPI(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	params := url.Values{}
	params.Add("q", query)
	params.Add("api_key", c.serpAPIKey)
	params.Add("num", strconv.Itoa(maxResults))

	body, err := c.get(ctx, fmt.Sprintf("%s?%s", c.serpURL, params.Encode()))
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var searchResp struct {
		OrganicResults []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"organic_results"`
	}

	if err := json.NewDecoder(body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	results := make([]SearchResult, 0, len(searchResp.OrganicResults))
	for _, r := range searchResp.OrganicResults {
		if len(results) >= maxResults {
			break
		}
		results = append(results, SearchResult{
			Title:   r.Title,
			Content: c.contentOrScrape(ctx, r.Snippet, r.Link),
			Link:    r.Link,
		})
	}

	return results, nil
}

func (c *Client) searchWithDuckDuckGo(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	body, err := c.get(ctx, fmt.Sprintf("%s?q=%s", c.ddgURL, url.QueryEscape(query)))
	if err != nil {
		return nil, err
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	results := make([]SearchResult, 0, maxResults)
	doc.Find("div.result").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		anchor := s.Find("a.result__a").First()
		title := strings.TrimSpace(anchor.Text())
		link, _ := anchor.Attr("href")
		snippet := strings.TrimSpace(s.Find(".result__snippet").Text())

		if title == "" {
			return true
		}

		results = append(results, SearchResult{
			Title:   title,
			Content: c.contentOrScrape(ctx, snippet, link),
			Link:    link,
		})
		return len(results) < maxResults
	})

	return results, nil
}

func (c *Client) get(ctx context.Context, target string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	return resp.Body, nil
}

// contentOrScrape prefers the search snippet and only fetches the page when
// the engine returned none.
func (c *Client) contentOrScrape(ctx context.Context, snippet, link string) string {
	if snippet != "" || link == "" {
		return snippet
	}

	content, err := c.scrapeContent(ctx, link)
	if err != nil {
		logger.Warn("Failed to scrape content", zap.String("url", link), zap.Error(err))
		return ""
	}
	return content
}

func (c *Client) scrapeContent(ctx context.Context, link string) (string, error) {
	body, err := c.get(ctx, link)
	if err != nil {
		return "", err
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return "", err
	}

	doc.Find("script, style, nav, footer, header").Remove()
	text := strings.Join(strings.Fields(doc.Find("body").Text()), " ")

	if len(text) > maxContentLen {
		text = text[:maxContentLen]
	}

	return text, nil
}
