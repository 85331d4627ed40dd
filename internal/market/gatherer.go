// Package market collects external market signals for a business domain.
package market

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/adstrategy/backend/internal/search/web"
	"github.com/adstrategy/backend/pkg/logger"
	"github.com/adstrategy/backend/pkg/utils"
)

const (
	DefaultMaxResults = 5

	placeholderTitle   = "No results found"
	placeholderContent = "Try a different query"
)

// Signal is one external market observation.
type Signal struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Source  string `json:"source,omitempty"`
}

type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]web.SearchResult, error)
}

// Cache stores search-derived signals. The redis client satisfies it.
type Cache interface {
	GetSignals(ctx context.Context, queryHash string, out interface{}) (bool, error)
	SetSignals(ctx context.Context, queryHash string, value interface{}) error
}

type Gatherer struct {
	searcher Searcher
	cache    Cache
}

// NewGatherer builds a gatherer. cache may be nil.
func NewGatherer(searcher Searcher, cache Cache) *Gatherer {
	return &Gatherer{searcher: searcher, cache: cache}
}

// Placeholder is the single signal returned when a search finds nothing.
func Placeholder() []Signal {
	return []Signal{{Title: placeholderTitle, Content: placeholderContent}}
}

// IsPlaceholder reports whether signals is the no-results placeholder.
func IsPlaceholder(signals []Signal) bool {
	return len(signals) == 1 && signals[0].Title == placeholderTitle && signals[0].Content == placeholderContent
}

func MarketQuery(domain string) string {
	return fmt.Sprintf("%s market trends latest innovations advertising strategy", domain)
}

// Gather searches for market trends in domain. A search with no hits yields
// the placeholder; a failed search returns the search error unchanged.
func (g *Gatherer) Gather(ctx context.Context, domain string, maxResults int) ([]Signal, error) {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	return g.search(ctx, MarketQuery(domain), maxResults)
}

// TopicSignals searches for recent news about a general topic, used when
// picking a theme for ad copy.
func (g *Gatherer) TopicSignals(ctx context.Context, topic string, maxResults int) ([]Signal, error) {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	query := fmt.Sprintf("%s market trends 2024 OR industry growth OR latest news OR innovations", topic)
	return g.search(ctx, query, maxResults)
}

func (g *Gatherer) search(ctx context.Context, query string, maxResults int) ([]Signal, error) {
	key := utils.HashString(fmt.Sprintf("%s|%d", query, maxResults))

	if g.cache != nil {
		var cached []Signal
		found, err := g.cache.GetSignals(ctx, key, &cached)
		if err != nil {
			logger.Warn("Signal cache read failed", zap.Error(err))
		} else if found && len(cached) > 0 {
			return cached, nil
		}
	}

	results, err := g.searcher.Search(ctx, query, maxResults)
	if err != nil {
		return nil, err
	}

	if len(results) == 0 {
		logger.Info("Market search returned no results", zap.String("query", query))
		return Placeholder(), nil
	}

	signals := make([]Signal, 0, len(results))
	for _, r := range results {
		signals = append(signals, Signal{
			Title:   orDefault(r.Title, "No Title"),
			Content: orDefault(r.Content, "No Content"),
			Source:  orDefault(r.Link, "No Source"),
		})
	}

	if g.cache != nil {
		if err := g.cache.SetSignals(ctx, key, signals); err != nil {
			logger.Warn("Signal cache write failed", zap.Error(err))
		}
	}

	return signals, nil
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
