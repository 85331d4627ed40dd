package market

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adstrategy/backend/internal/search/web"
)

type fakeSearcher struct {
	results []web.SearchResult
	err     error
	queries []string
}

func (f *fakeSearcher) Search(_ context.Context, query string, _ int) ([]web.SearchResult, error) {
	f.queries = append(f.queries, query)
	return f.results, f.err
}

type memoryCache struct {
	data map[string][]byte
}

func (m *memoryCache) GetSignals(_ context.Context, key string, out interface{}) (bool, error) {
	raw, ok := m.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, out)
}

func (m *memoryCache) SetSignals(_ context.Context, key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.data[key] = raw
	return nil
}

func TestGatherBuildsQueryAndSignals(t *testing.T) {
	s := &fakeSearcher{results: []web.SearchResult{
		{Title: "Smart TVs grow", Content: "Shipments up", Link: "https://a"},
		{Title: "", Content: "", Link: ""},
	}}

	signals, err := NewGatherer(s, nil).Gather(context.Background(), "electronics", 5)
	require.NoError(t, err)

	assert.Equal(t, []string{"electronics market trends latest innovations advertising strategy"}, s.queries)
	assert.Equal(t, []Signal{
		{Title: "Smart TVs grow", Content: "Shipments up", Source: "https://a"},
		{Title: "No Title", Content: "No Content", Source: "No Source"},
	}, signals)
}

func TestGatherNoResultsYieldsPlaceholder(t *testing.T) {
	signals, err := NewGatherer(&fakeSearcher{}, nil).Gather(context.Background(), "niche", 5)
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Equal(t, "No results found", signals[0].Title)
	assert.Equal(t, "Try a different query", signals[0].Content)
	assert.True(t, IsPlaceholder(signals))
}

func TestGatherPropagatesSearchFailure(t *testing.T) {
	boom := errors.New("network down")
	_, err := NewGatherer(&fakeSearcher{err: boom}, nil).Gather(context.Background(), "x", 5)
	assert.ErrorIs(t, err, boom)
}

func TestGatherUsesCache(t *testing.T) {
	s := &fakeSearcher{results: []web.SearchResult{{Title: "T", Content: "C", Link: "L"}}}
	cache := &memoryCache{data: map[string][]byte{}}
	g := NewGatherer(s, cache)

	first, err := g.Gather(context.Background(), "retail", 5)
	require.NoError(t, err)
	second, err := g.Gather(context.Background(), "retail", 5)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, s.queries, 1)
}

func TestTopicSignalsQuery(t *testing.T) {
	s := &fakeSearcher{}
	_, err := NewGatherer(s, nil).TopicSignals(context.Background(), "events and celebrations", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"events and celebrations market trends 2024 OR industry growth OR latest news OR innovations",
	}, s.queries)
}

func TestClassifySentiment(t *testing.T) {
	assert.Equal(t, SentimentPositive, ClassifySentiment("Rising demand drives growth"))
	assert.Equal(t, SentimentNegative, ClassifySentiment("Sales decline after price drop"))
	assert.Equal(t, SentimentNeutral, ClassifySentiment("Growth stalls amid decline"))
	assert.Equal(t, SentimentNeutral, ClassifySentiment("Quarterly update"))
}

func TestAnalyzeTrends(t *testing.T) {
	s := &fakeSearcher{results: []web.SearchResult{
		{Title: "Ecommerce growth is rising"},
		{Title: "Store traffic drop"},
		{Title: "Popular new checkout"},
	}}

	got := NewGatherer(s, nil).AnalyzeTrends(context.Background(), "Onida")
	assert.Equal(t, []string{"Onida ecommerce technology trends"}, s.queries)
	require.Len(t, got.Trends, 3)
	assert.Equal(t, SentimentNegative, got.Trends[1].Sentiment)
	assert.Equal(t, "Growing market conditions", got.OverallMarketSentiment)
	assert.Equal(t, []string{"Potential for market expansion", "Opportunity for increased digital presence"}, got.EmergingOpportunities)
}

func TestAnalyzeTrendsSearchFailure(t *testing.T) {
	got := NewGatherer(&fakeSearcher{err: errors.New("x")}, nil).AnalyzeTrends(context.Background(), "Acme")
	assert.Empty(t, got.Trends)
	assert.Equal(t, "Stable market conditions", got.OverallMarketSentiment)
	assert.Empty(t, got.EmergingOpportunities)
}
