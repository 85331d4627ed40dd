// Package adcopy generates Instagram ad copy themed on an upcoming festival
// or a trending topic.
package adcopy

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/adstrategy/backend/internal/apperr"
	"github.com/adstrategy/backend/internal/calendar"
	"github.com/adstrategy/backend/internal/llm"
	"github.com/adstrategy/backend/internal/market"
	"github.com/adstrategy/backend/internal/metrics"
	"github.com/adstrategy/backend/internal/narrative"
	"github.com/adstrategy/backend/internal/storage/models"
	"github.com/adstrategy/backend/pkg/logger"
)

const (
	trendTopic       = "events and celebrations"
	trendMaxResults  = 5
	historySaveLimit = 5 * time.Second
)

type FestivalSource interface {
	Upcoming(ctx context.Context) []calendar.Festival
}

type TopicSearcher interface {
	TopicSignals(ctx context.Context, topic string, maxResults int) ([]market.Signal, error)
}

type History interface {
	InsertAdCopy(ctx context.Context, a *models.AdCopyRecord) error
}

type Request struct {
	Product     string `json:"product"`
	Company     string `json:"company"`
	Description string `json:"description"`
}

func (r Request) Validate() error {
	if strings.TrimSpace(r.Product) == "" {
		return apperr.MissingParameter("product")
	}
	if strings.TrimSpace(r.Company) == "" {
		return apperr.MissingParameter("company")
	}
	return nil
}

type Result struct {
	ID        string           `json:"id"`
	Topic     string           `json:"topic"`
	Festivals []string         `json:"festivals"`
	Trends    []string         `json:"trends"`
	AdCopy    narrative.AdCopy `json:"ad_copy"`
	RawText   string           `json:"raw_text"`
	Complete  bool             `json:"complete"`
}

type Service struct {
	festivals FestivalSource
	topics    TopicSearcher
	generator narrative.Generator
	parser    narrative.SectionParser
	history   History
}

// NewService wires the generator. history may be nil.
func NewService(festivals FestivalSource, topics TopicSearcher, generator narrative.Generator, history History) *Service {
	return &Service{
		festivals: festivals,
		topics:    topics,
		generator: generator,
		parser:    narrative.LineParser{},
		history:   history,
	}
}

// Generate picks a theme and asks for a four-section ad. Calendar and trend
// lookups degrade to empty lists; generation failures are returned.
func (s *Service) Generate(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	festivals := calendar.Names(s.festivals.Upcoming(ctx))

	signals, err := s.topics.TopicSignals(ctx, trendTopic, trendMaxResults)
	if err != nil {
		logger.Warn("Trend search failed, continuing with placeholder", zap.Error(err))
		signals = market.Placeholder()
	}
	trends := make([]string, 0, len(signals))
	for _, sig := range signals {
		trends = append(trends, sig.Title)
	}

	topicResp, err := s.generator.Complete(ctx, llm.CompletionRequest{UserPrompt: TopicPrompt(festivals, trends)})
	if err != nil {
		return nil, apperr.ExternalService("select ad topic", err)
	}
	topic := strings.TrimSpace(topicResp.Content)

	adResp, err := s.generator.Complete(ctx, llm.CompletionRequest{UserPrompt: AdPrompt(req, topic)})
	if err != nil {
		return nil, apperr.ExternalService("generate ad copy", err)
	}

	parsed := s.parser.Parse(adResp.Content)
	metrics.AdCopiesGenerated.WithLabelValues(strconv.FormatBool(parsed.Complete())).Inc()

	result := &Result{
		ID:        uuid.New().String(),
		Topic:     topic,
		Festivals: festivals,
		Trends:    trends,
		AdCopy:    parsed,
		RawText:   adResp.Content,
		Complete:  parsed.Complete(),
	}

	logger.Info("Ad copy generated",
		zap.String("ad_copy_id", result.ID),
		zap.String("company", req.Company),
		zap.String("topic", topic),
		zap.Bool("complete", result.Complete),
	)

	s.save(ctx, req, result)
	return result, nil
}

func (s *Service) save(ctx context.Context, req Request, result *Result) {
	if s.history == nil {
		return
	}

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), historySaveLimit)
	defer cancel()

	err := s.history.InsertAdCopy(saveCtx, &models.AdCopyRecord{
		ID:                 result.ID,
		Product:            req.Product,
		Company:            req.Company,
		Topic:              result.Topic,
		RawText:            result.RawText,
		Caption:            result.AdCopy.Caption,
		Hashtags:           result.AdCopy.Hashtags,
		TextOnImage:        result.AdCopy.TextOnImage,
		DescriptionOfImage: result.AdCopy.DescriptionOfImage,
		CreatedAt:          time.Now(),
	})
	if err != nil {
		logger.Warn("Failed to store ad copy", zap.String("ad_copy_id", result.ID), zap.Error(err))
	}
}

func TopicPrompt(festivals, trends []string) string {
	return fmt.Sprintf(`Based on the following upcoming festivals and trending topics, choose the most popular one.

Festivals: %s
Trends: %s

Provide only the most relevant one.`, strings.Join(festivals, ", "), strings.Join(trends, ", "))
}

func AdPrompt(req Request, topic string) string {
	return fmt.Sprintf(`Generate a catchy advertisement for an Instagram post for my product/service: %s, which belongs to my company: %s.

**Description:** %s
**Make it related to:** %s.

Format your response exactly as follows:
1. Instagram Caption: [Your caption here]
2. Hashtags: [Your hashtags here]
3. Text on Image: [Your text here]
4. Description of Image: [Your description here]`, req.Product, req.Company, req.Description, topic)
}
