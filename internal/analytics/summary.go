package analytics

import "sort"

// Summary holds the aggregate figures attached to a strategy report.
type Summary struct {
	AverageCTR       float64 `json:"average_ctr"`
	AverageHoverTime float64 `json:"average_hover_time"`
	TotalImpressions int64   `json:"total_impressions"`
	TotalClicks      int64   `json:"total_clicks"`
}

// Summarize aggregates a batch. AverageCTR is the pooled CTR in percent
// (total clicks over total impressions), not the mean of per-ad CTRs.
func Summarize(records []Record) Summary {
	var s Summary
	if len(records) == 0 {
		return s
	}

	var hover float64
	for _, r := range records {
		s.TotalImpressions += r.Impressions
		s.TotalClicks += r.Clicks
		hover += r.HoverTime
	}

	if s.TotalImpressions > 0 {
		s.AverageCTR = float64(s.TotalClicks) / float64(s.TotalImpressions) * 100
	}
	s.AverageHoverTime = hover / float64(len(records))

	return s
}

// PositionStats are per-position engagement averages.
type PositionStats struct {
	Position      string  `json:"position"`
	Ads           int     `json:"ads"`
	AvgHoverTime  float64 `json:"avg_hover_time"`
	AvgHoverCount float64 `json:"avg_hover_count"`
	AvgCTR        float64 `json:"avg_ctr"`
	AvgEngagement float64 `json:"avg_engagement_score"`
}

// ByPosition groups derived records by ad position. CTR is averaged per ad
// here, matching how the campaign analysis reports it.
func ByPosition(derived []Derived) map[string]PositionStats {
	type acc struct {
		n                         int
		hover, count, ctr, engage float64
	}
	groups := make(map[string]*acc)

	for _, d := range derived {
		a, ok := groups[d.Position]
		if !ok {
			a = &acc{}
			groups[d.Position] = a
		}
		a.n++
		a.hover += d.HoverTime
		a.count += float64(d.HoverCount)
		a.ctr += d.Metrics.CTR
		a.engage += d.Metrics.EngagementScore
	}

	out := make(map[string]PositionStats, len(groups))
	for pos, a := range groups {
		n := float64(a.n)
		out[pos] = PositionStats{
			Position:      pos,
			Ads:           a.n,
			AvgHoverTime:  a.hover / n,
			AvgHoverCount: a.count / n,
			AvgCTR:        a.ctr / n,
			AvgEngagement: a.engage / n,
		}
	}
	return out
}

// RankPositions orders positions by average CTR, best first. Ties fall back
// to engagement and then name.
func RankPositions(stats map[string]PositionStats) []PositionStats {
	ranked := make([]PositionStats, 0, len(stats))
	for _, s := range stats {
		ranked = append(ranked, s)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].AvgCTR != ranked[j].AvgCTR {
			return ranked[i].AvgCTR > ranked[j].AvgCTR
		}
		if ranked[i].AvgEngagement != ranked[j].AvgEngagement {
			return ranked[i].AvgEngagement > ranked[j].AvgEngagement
		}
		return ranked[i].Position < ranked[j].Position
	})
	return ranked
}
