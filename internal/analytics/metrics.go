package analytics

import (
	"sort"

	"github.com/adstrategy/backend/internal/apperr"
)

// Unit economics used for ROI.
const (
	RevenuePerClick   = 2.5
	CostPerImpression = 0.01
)

// Metrics are the values derived from a single record.
type Metrics struct {
	CTR             float64
	EngagementScore float64
	ROI             float64
	// ROIDefined is false when the record has no impressions; such records
	// are left out of budget allocation.
	ROIDefined bool
}

// Derived pairs a record with its metrics.
type Derived struct {
	Record
	Metrics Metrics
}

func Compute(r Record) Metrics {
	if r.Impressions <= 0 {
		return Metrics{}
	}

	impressions := float64(r.Impressions)
	cost := impressions * CostPerImpression
	revenue := float64(r.Clicks) * RevenuePerClick

	return Metrics{
		CTR:             float64(r.Clicks) / impressions,
		EngagementScore: float64(r.HoverCount) / impressions * r.HoverTime,
		ROI:             (revenue - cost) / cost,
		ROIDefined:      true,
	}
}

// Derive computes metrics for every record. The batch must not be empty.
func Derive(records []Record) ([]Derived, error) {
	if len(records) == 0 {
		return nil, apperr.NoData("analytics.derive", "no interaction records to analyze")
	}

	out := make([]Derived, len(records))
	for i, r := range records {
		out[i] = Derived{Record: r, Metrics: Compute(r)}
	}
	return out, nil
}

// ROIByAd returns the defined ROI per ad and the IDs whose ROI is undefined,
// sorted for stable output.
func ROIByAd(derived []Derived) (map[string]float64, []string) {
	roi := make(map[string]float64, len(derived))
	var excluded []string

	for _, d := range derived {
		if !d.Metrics.ROIDefined {
			excluded = append(excluded, d.AdID)
			continue
		}
		roi[d.AdID] = d.Metrics.ROI
	}

	sort.Strings(excluded)
	return roi, excluded
}
