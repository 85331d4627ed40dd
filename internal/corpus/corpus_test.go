package corpus

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adstrategy/backend/internal/analytics"
)

func derive(t *testing.T, records ...analytics.Record) []analytics.Derived {
	t.Helper()
	d, err := analytics.Derive(records)
	require.NoError(t, err)
	return d
}

func TestBuildRendersRecord(t *testing.T) {
	docs := Build(derive(t, analytics.Record{
		AdID: "a1", CompanyName: "Onida", Domain: "electronics",
		Impressions: 300, Clicks: 7, HoverTime: 5.5, HoverCount: 20, Position: "top",
	}))

	require.Len(t, docs, 1)
	assert.Equal(t, "a1", docs[0].AdID)
	text := docs[0].Text
	assert.Contains(t, text, "Company: Onida")
	assert.Contains(t, text, "Industry: electronics")
	assert.Contains(t, text, "Ad ID: a1")
	assert.Contains(t, text, "Position: top")
	assert.Contains(t, text, "Hover Time (sec): 5.5")
	assert.Contains(t, text, "Hover Count: 20")
	assert.Contains(t, text, "Clicks: 7")
	assert.Contains(t, text, "Impressions: 300")
	assert.Contains(t, text, "Click-Through Rate (CTR): 2.33%")
}

func TestBuildZeroImpressions(t *testing.T) {
	docs := Build(derive(t, analytics.Record{AdID: "z", Impressions: 0, Clicks: 4}))
	assert.Contains(t, docs[0].Text, "Click-Through Rate (CTR): 0.00%")
}

func TestBuildIsIdempotent(t *testing.T) {
	records := []analytics.Record{
		{AdID: "a", Impressions: 10, Clicks: 1, Position: "top"},
		{AdID: "b", Impressions: 20, Clicks: 2, Position: "footer"},
	}
	first := Build(derive(t, records...))
	second := Build(derive(t, records...))
	assert.Equal(t, first, second)
	assert.Equal(t, []string{first[0].Text, first[1].Text}, Texts(first))
}

func TestChunkShortDocumentsStayWhole(t *testing.T) {
	docs := Build(derive(t,
		analytics.Record{AdID: "a", Impressions: 10, Clicks: 1},
		analytics.Record{AdID: "b", Impressions: 10, Clicks: 2},
	))

	chunks := NewChunker(600, 100).Chunk(docs)
	require.Len(t, chunks, 2)
	assert.Equal(t, "a", chunks[0].AdID)
	assert.Equal(t, 1, chunks[1].DocIndex)
	assert.Equal(t, 0, chunks[1].Seq)
}

func TestChunkRespectsSizeAndOverlap(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 60; i++ {
		sb.WriteString("The top banner position drove steady engagement this week. ")
	}
	docs := []Document{{AdID: "long", Text: sb.String()}}

	chunks := NewChunker(200, 40).Chunk(docs)
	require.Greater(t, len(chunks), 5)

	for i, c := range chunks {
		assert.LessOrEqual(t, len(c.Text), 200, "chunk %d too long", i)
		assert.Equal(t, i, c.Seq)
	}

	// Each chunk after the first starts with text from the end of its predecessor.
	for i := 1; i < len(chunks); i++ {
		firstWord := strings.Fields(chunks[i].Text)[0]
		assert.Contains(t, chunks[i-1].Text, firstWord)
	}
}

func TestChunkCutsOversizedWords(t *testing.T) {
	docs := []Document{{AdID: "w", Text: strings.Repeat("x", 500)}}
	chunks := NewChunker(100, 10).Chunk(docs)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c.Text), 100)
	}
}

func TestNewChunkerRejectsBadConfig(t *testing.T) {
	assert.Panics(t, func() { NewChunker(100, 100) })
	assert.Panics(t, func() { NewChunker(0, 0) })
}
