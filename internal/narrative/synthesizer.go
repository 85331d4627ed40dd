// Package narrative turns analysis results into generated prose: the final
// strategy text and social ad copy.
package narrative

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/adstrategy/backend/internal/apperr"
	"github.com/adstrategy/backend/internal/llm"
	"github.com/adstrategy/backend/internal/market"
	"github.com/adstrategy/backend/pkg/logger"
)

const insightPreviewLen = 200

type Generator interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
}

type Synthesizer struct {
	generator Generator
}

func NewSynthesizer(generator Generator) *Synthesizer {
	return &Synthesizer{generator: generator}
}

// Synthesize asks the generator for a strategy combining market signals,
// the interaction analysis and the budget. The response text is returned
// unchanged.
func (s *Synthesizer) Synthesize(ctx context.Context, signals []market.Signal, insight string, budget float64) (string, error) {
	prompt := StrategyPrompt(signals, insight, budget)

	resp, err := s.generator.Complete(ctx, llm.CompletionRequest{UserPrompt: prompt})
	if err != nil {
		return "", apperr.ExternalService("generate strategy", err)
	}

	logger.Debug("Strategy generated", zap.Int("prompt_len", len(prompt)), zap.Int("response_len", len(resp.Content)))

	return resp.Content, nil
}

func StrategyPrompt(signals []market.Signal, insight string, budget float64) string {
	insights := make([]string, 0, len(signals))
	for _, sig := range signals {
		insights = append(insights, "Source: "+sig.Title+"\nInsight: "+preview(sig.Content, insightPreviewLen)+"...")
	}

	var b strings.Builder
	b.WriteString("Create a comprehensive digital marketing strategy based on:\n\n")
	b.WriteString("MARKET RESEARCH:\n")
	b.WriteString(strings.Join(insights, "\n"))
	b.WriteString("\n\nDATA ANALYSIS:\n")
	b.WriteString(insight)
	b.WriteString("\n\nBUDGET: ")
	b.WriteString(FormatBudget(budget))
	b.WriteString(`

Provide a strategic plan that includes:
1. Key Market Opportunities
2. Tactical Recommendations
3. Budget Allocation Strategy
4. Implementation Timeline
5. Expected Outcomes

Format the response in clear sections without special characters.`)

	return b.String()
}

var printer = message.NewPrinter(language.English)

// FormatBudget renders an amount as dollars with thousands separators,
// e.g. $50,000.00.
func FormatBudget(amount float64) string {
	if amount < 0 {
		return "-" + printer.Sprintf("$%.2f", -amount)
	}
	return printer.Sprintf("$%.2f", amount)
}

// preview returns at most n bytes of s without splitting a rune.
func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
