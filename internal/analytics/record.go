// Package analytics holds the interaction record model and the metrics
// derived from it.
package analytics

import (
	"fmt"
	"math"
	"strings"
)

// Record is one row of ad interaction telemetry.
type Record struct {
	AdID        string  `json:"adId" bson:"adId"`
	CompanyName string  `json:"companyName" bson:"companyName"`
	Domain      string  `json:"domain" bson:"domain"`
	Impressions int64   `json:"impressions" bson:"impressions"`
	Clicks      int64   `json:"clicks" bson:"clicks"`
	HoverTime   float64 `json:"hoverTime" bson:"hoverTime"`
	HoverCount  int64   `json:"hoverCount" bson:"hoverCount"`
	Position    string  `json:"position" bson:"position"`
}

// Validate checks the fields the derivations depend on. Clicks above
// impressions are tolerated.
func (r Record) Validate() error {
	var problems []string

	if strings.TrimSpace(r.AdID) == "" {
		problems = append(problems, "adId is required")
	}
	if r.Impressions < 0 {
		problems = append(problems, "impressions must be non-negative")
	}
	if r.Clicks < 0 {
		problems = append(problems, "clicks must be non-negative")
	}
	if r.HoverCount < 0 {
		problems = append(problems, "hoverCount must be non-negative")
	}
	if r.HoverTime < 0 || math.IsNaN(r.HoverTime) || math.IsInf(r.HoverTime, 0) {
		problems = append(problems, "hoverTime must be a non-negative number")
	}

	if len(problems) > 0 {
		return fmt.Errorf("record %q: %s", r.AdID, strings.Join(problems, "; "))
	}
	return nil
}

// Rejected is a record that failed validation at ingestion.
type Rejected struct {
	Index  int
	AdID   string
	Reason string
}

// Partition splits records into valid ones and a quarantine list. Duplicate
// ad IDs after the first occurrence are quarantined too.
func Partition(records []Record) ([]Record, []Rejected) {
	valid := make([]Record, 0, len(records))
	var rejected []Rejected
	seen := make(map[string]struct{}, len(records))

	for i, r := range records {
		if err := r.Validate(); err != nil {
			rejected = append(rejected, Rejected{Index: i, AdID: r.AdID, Reason: err.Error()})
			continue
		}
		if _, dup := seen[r.AdID]; dup {
			rejected = append(rejected, Rejected{Index: i, AdID: r.AdID, Reason: "duplicate adId in batch"})
			continue
		}
		seen[r.AdID] = struct{}{}
		valid = append(valid, r)
	}

	return valid, rejected
}
