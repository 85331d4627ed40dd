package market

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/adstrategy/backend/pkg/logger"
)

type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

const trendResults = 3

var (
	positiveWords = []string{"growth", "increase", "success", "popular", "rising"}
	negativeWords = []string{"decline", "decrease", "fall", "drop", "loss"}
)

type Trend struct {
	Title     string    `json:"title"`
	Sentiment Sentiment `json:"sentiment"`
}

type TrendAnalysis struct {
	Trends                 []Trend  `json:"trends"`
	OverallMarketSentiment string   `json:"overall_market_sentiment"`
	EmergingOpportunities  []string `json:"emerging_opportunities"`
}

// AnalyzeTrends looks up technology trends for a company and labels each
// headline with a keyword sentiment. Search failures yield an empty trend
// list rather than an error.
func (g *Gatherer) AnalyzeTrends(ctx context.Context, company string) TrendAnalysis {
	query := fmt.Sprintf("%s ecommerce technology trends", company)

	var trends []Trend
	results, err := g.searcher.Search(ctx, query, trendResults)
	if err != nil {
		logger.Warn("Trend search failed", zap.String("company", company), zap.Error(err))
	}
	for _, r := range results {
		trends = append(trends, Trend{Title: r.Title, Sentiment: ClassifySentiment(r.Title)})
	}
	if trends == nil {
		trends = []Trend{}
	}

	return TrendAnalysis{
		Trends:                 trends,
		OverallMarketSentiment: overallSentiment(trends),
		EmergingOpportunities:  opportunities(trends),
	}
}

// ClassifySentiment counts occurrences of growth and decline keywords.
func ClassifySentiment(text string) Sentiment {
	text = strings.ToLower(text)

	var pos, neg int
	for _, w := range positiveWords {
		pos += strings.Count(text, w)
	}
	for _, w := range negativeWords {
		neg += strings.Count(text, w)
	}

	switch {
	case pos > neg:
		return SentimentPositive
	case neg > pos:
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}

func overallSentiment(trends []Trend) string {
	var pos, neg int
	for _, t := range trends {
		switch t.Sentiment {
		case SentimentPositive:
			pos++
		case SentimentNegative:
			neg++
		}
	}

	switch {
	case pos > neg:
		return "Growing market conditions"
	case neg > pos:
		return "Competitive market conditions"
	default:
		return "Stable market conditions"
	}
}

func opportunities(trends []Trend) []string {
	for _, t := range trends {
		if t.Sentiment == SentimentPositive {
			return []string{
				"Potential for market expansion",
				"Opportunity for increased digital presence",
			}
		}
	}
	return []string{}
}
