// Package budget splits a campaign budget across ads in proportion to ROI.
package budget

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/adstrategy/backend/internal/analytics"
	"github.com/adstrategy/backend/internal/apperr"
)

type Policy string

const (
	// PolicyProportional gives each ad roi/totalROI of the budget.
	PolicyProportional Policy = "proportional"
	// PolicyEqualSplit is used when the ROIs sum to zero or less.
	PolicyEqualSplit Policy = "equal_split"
	// PolicyNone means no ad had a defined ROI and nothing was allocated.
	PolicyNone Policy = "none"
)

// Shares are rounded to this many decimal places (cents).
const sharePlaces = 2

type Allocation struct {
	Shares   map[string]float64 `json:"shares"`
	Policy   Policy             `json:"policy"`
	TotalROI float64            `json:"total_roi"`
	// Excluded lists ads whose ROI is undefined (no impressions).
	Excluded []string `json:"excluded,omitempty"`
	Warning  string   `json:"warning,omitempty"`
}

// Sum returns the exact decimal sum of the shares.
func (a *Allocation) Sum() decimal.Decimal {
	sum := decimal.Zero
	for _, v := range a.Shares {
		sum = sum.Add(decimal.NewFromFloat(v))
	}
	return sum
}

// Allocate derives ROI per ad and optimizes the budget over the ads that
// have one. A batch where every ad lacks impressions yields an empty
// allocation under PolicyNone rather than an error.
func Allocate(derived []analytics.Derived, totalBudget float64) (*Allocation, error) {
	roi, excluded := analytics.ROIByAd(derived)
	if len(roi) == 0 && len(excluded) > 0 {
		if err := checkBudget(totalBudget); err != nil {
			return nil, err
		}
		return &Allocation{
			Shares:   map[string]float64{},
			Policy:   PolicyNone,
			Excluded: excluded,
			Warning:  "no ad has impressions; budget left unallocated",
		}, nil
	}
	alloc, err := Optimize(roi, totalBudget)
	if err != nil {
		return nil, err
	}
	alloc.Excluded = excluded
	return alloc, nil
}

// Optimize splits totalBudget across perAdROI. Negative ROIs are allowed and
// produce negative shares under the proportional policy. When the ROIs sum
// to zero or less the budget is split equally and Warning is set.
//
// Shares are rounded to cents; whatever rounding leaves over goes to the ad
// with the highest ROI so the shares add up to the budget exactly.
func Optimize(perAdROI map[string]float64, totalBudget float64) (*Allocation, error) {
	if err := checkBudget(totalBudget); err != nil {
		return nil, err
	}
	if len(perAdROI) == 0 {
		return nil, apperr.Computation("budget.optimize", "no ads with a defined ROI to allocate budget across")
	}

	ids := make([]string, 0, len(perAdROI))
	for id, roi := range perAdROI {
		if math.IsNaN(roi) || math.IsInf(roi, 0) {
			return nil, apperr.Computation("budget.optimize", "ROI for ad "+id+" is not a finite number")
		}
		ids = append(ids, id)
	}
	// Highest ROI first; the first entry absorbs the rounding residue.
	sort.Slice(ids, func(i, j int) bool {
		ri, rj := perAdROI[ids[i]], perAdROI[ids[j]]
		if ri != rj {
			return ri > rj
		}
		return ids[i] < ids[j]
	})

	total := decimal.NewFromFloat(totalBudget)
	totalROI := decimal.Zero
	for _, id := range ids {
		totalROI = totalROI.Add(decimal.NewFromFloat(perAdROI[id]))
	}

	alloc := &Allocation{
		Shares:   make(map[string]float64, len(ids)),
		TotalROI: totalROI.InexactFloat64(),
	}

	shares := make([]decimal.Decimal, len(ids))
	if totalROI.IsPositive() {
		alloc.Policy = PolicyProportional
		for i, id := range ids {
			roi := decimal.NewFromFloat(perAdROI[id])
			shares[i] = roi.Mul(total).Div(totalROI).Round(sharePlaces)
		}
	} else {
		alloc.Policy = PolicyEqualSplit
		alloc.Warning = "total ROI is not positive; budget split equally across ads"
		each := total.Div(decimal.NewFromInt(int64(len(ids)))).Round(sharePlaces)
		for i := range ids {
			shares[i] = each
		}
	}

	sum := decimal.Zero
	for _, s := range shares {
		sum = sum.Add(s)
	}
	shares[0] = shares[0].Add(total.Sub(sum))

	for i, id := range ids {
		alloc.Shares[id] = shares[i].InexactFloat64()
	}

	return alloc, nil
}

func checkBudget(total float64) error {
	if math.IsNaN(total) || math.IsInf(total, 0) || total < 0 {
		return apperr.InvalidInput("budget.optimize", "total budget must be a non-negative finite number")
	}
	return nil
}
