package narrative

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/adstrategy/backend/internal/apperr"
	"github.com/adstrategy/backend/internal/llm"
	"github.com/adstrategy/backend/internal/market"
)

type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	args := m.Called(ctx, req)
	if resp, ok := args.Get(0).(*llm.CompletionResponse); ok {
		return resp, args.Error(1)
	}
	return nil, args.Error(1)
}

func TestParseAdCopyScenario(t *testing.T) {
	text := "1. Instagram Caption: Buy now\n2. Hashtags: #sale #tv\n3. Text on Image: 50% off\n4. Description of Image: A remote on a table"

	got := ParseAdCopy(text)
	assert.Equal(t, AdCopy{
		Caption:            "buy now",
		Hashtags:           "#sale #tv",
		TextOnImage:        "50% off",
		DescriptionOfImage: "a remote on a table",
	}, got)
	assert.True(t, got.Complete())
}

func TestParseAdCopyMultilineAndMissing(t *testing.T) {
	text := `Here is your ad:

Instagram Caption:
Catch every match
with a remote that never quits

Hashtags: #remote
#gameday`

	got := ParseAdCopy(text)
	assert.Equal(t, "catch every match with a remote that never quits", got.Caption)
	assert.Equal(t, "#remote #gameday", got.Hashtags)
	assert.Empty(t, got.TextOnImage)
	assert.Empty(t, got.DescriptionOfImage)
	assert.False(t, got.Complete())
}

func TestParseAdCopyIgnoresPreamble(t *testing.T) {
	got := ParseAdCopy("Sure! Ad below.\n\n")
	assert.Equal(t, AdCopy{}, got)
}

func TestLineParserSatisfiesSectionParser(t *testing.T) {
	var p SectionParser = LineParser{}
	assert.Equal(t, "x", p.Parse("Hashtags: X").Hashtags)
}

func TestFormatBudget(t *testing.T) {
	assert.Equal(t, "$50,000.00", FormatBudget(50000))
	assert.Equal(t, "$1,234,567.89", FormatBudget(1234567.891))
	assert.Equal(t, "$0.50", FormatBudget(0.5))
}

func TestStrategyPrompt(t *testing.T) {
	long := strings.Repeat("a", 250)
	prompt := StrategyPrompt([]market.Signal{
		{Title: "Trend one", Content: "short"},
		{Title: "Trend two", Content: long},
	}, "footer ads underperform", 50000)

	assert.Contains(t, prompt, "Source: Trend one\nInsight: short...")
	assert.Contains(t, prompt, "Source: Trend two\nInsight: "+strings.Repeat("a", 200)+"...")
	assert.NotContains(t, prompt, strings.Repeat("a", 201))
	assert.Contains(t, prompt, "DATA ANALYSIS:\nfooter ads underperform")
	assert.Contains(t, prompt, "BUDGET: $50,000.00")
	for _, section := range []string{
		"Key Market Opportunities",
		"Tactical Recommendations",
		"Budget Allocation Strategy",
		"Implementation Timeline",
		"Expected Outcomes",
	} {
		assert.Contains(t, prompt, section)
	}
	assert.Contains(t, prompt, "without special characters")
}

func TestSynthesizeReturnsResponseVerbatim(t *testing.T) {
	gen := new(mockGenerator)
	gen.On("Complete", mock.Anything, mock.MatchedBy(func(req llm.CompletionRequest) bool {
		return strings.Contains(req.UserPrompt, "BUDGET: $1,000.00")
	})).Return(&llm.CompletionResponse{Content: "  Plan A\n"}, nil)

	out, err := NewSynthesizer(gen).Synthesize(context.Background(), market.Placeholder(), "insight", 1000)
	require.NoError(t, err)
	assert.Equal(t, "  Plan A\n", out)
	gen.AssertExpectations(t)
}

func TestSynthesizeFailure(t *testing.T) {
	gen := new(mockGenerator)
	gen.On("Complete", mock.Anything, mock.Anything).Return(nil, errors.New("rate limited"))

	_, err := NewSynthesizer(gen).Synthesize(context.Background(), nil, "", 1)
	assert.True(t, apperr.Is(err, apperr.KindExternalService))
}
