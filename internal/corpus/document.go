// Package corpus turns interaction records into the text documents that
// feed the retrieval index.
package corpus

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/adstrategy/backend/internal/analytics"
)

// Document is the textual projection of one interaction record.
type Document struct {
	AdID string `json:"ad_id"`
	Text string `json:"text"`
}

// Build renders one Document per derived record, in input order. The output
// depends only on the input, so rebuilding an unchanged batch yields the
// same documents.
func Build(derived []analytics.Derived) []Document {
	docs := make([]Document, 0, len(derived))
	for _, d := range derived {
		docs = append(docs, Document{AdID: d.AdID, Text: render(d)})
	}
	return docs
}

func render(d analytics.Derived) string {
	var b strings.Builder
	line := func(label, value string) {
		b.WriteString(label)
		b.WriteString(": ")
		b.WriteString(value)
		b.WriteByte('\n')
	}

	line("Company", d.CompanyName)
	line("Industry", d.Domain)
	line("Ad ID", d.AdID)
	line("Position", d.Position)
	line("Hover Time (sec)", strconv.FormatFloat(d.HoverTime, 'f', -1, 64))
	line("Hover Count", strconv.FormatInt(d.HoverCount, 10))
	line("Clicks", strconv.FormatInt(d.Clicks, 10))
	line("Impressions", strconv.FormatInt(d.Impressions, 10))
	line("Click-Through Rate (CTR)", FormatPercent(d.Metrics.CTR))

	return strings.TrimRight(b.String(), "\n")
}

// FormatPercent renders a ratio as a percentage with two decimals.
func FormatPercent(ratio float64) string {
	return fmt.Sprintf("%.2f%%", ratio*100)
}

func Texts(docs []Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.Text
	}
	return out
}
