// Package tiers holds the commission bracket table and the math applied to
// conversion amounts: direct commission for the selling affiliate and the
// level-2 override paid to their recruiter.
package tiers

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/tierlink/tierlink-backend/pkg/errors"
)

// MaxRows caps the tier table size. Resolution is a linear scan, so the
// table stays small by construction.
const MaxRows = 5

// Tier is one commission bracket. Threshold is the monthly revenue floor
// at which the bracket applies.
type Tier struct {
	Name          string          `json:"name"`
	Threshold     decimal.Decimal `json:"threshold"`
	CommissionPct decimal.Decimal `json:"commission_pct"`
	MLM2Pct       decimal.Decimal `json:"mlm2_pct"`
	// MLM3Pct is persisted and editable but not applied to any payout
	// total. Totals carry Level3Defined so the field is surfaced rather
	// than silently dropped.
	MLM3Pct decimal.Decimal `json:"mlm3_pct"`
}

// Table is an ordered tier list, ascending by threshold.
type Table []Tier

var hundred = decimal.NewFromInt(100)

// DefaultTable is the bracket set used until an operator saves their own.
func DefaultTable() Table {
	return Table{
		{Name: "Bronze", Threshold: decimal.Zero, CommissionPct: decimal.NewFromInt(10), MLM2Pct: decimal.NewFromInt(2)},
		{Name: "Silver", Threshold: decimal.NewFromInt(1000), CommissionPct: decimal.NewFromInt(15), MLM2Pct: decimal.NewFromInt(3)},
		{Name: "Gold", Threshold: decimal.NewFromInt(5000), CommissionPct: decimal.NewFromInt(20), MLM2Pct: decimal.NewFromInt(5)},
	}
}

// ParseTable decodes and validates a JSON-encoded tier table.
func ParseTable(raw []byte) (Table, error) {
	var table Table
	if err := json.Unmarshal(raw, &table); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid tier table JSON")
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}

// Validate enforces table shape: non-empty, at most MaxRows rows, strictly
// ascending thresholds, percentages in [0, 100].
func (t Table) Validate() error {
	if len(t) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "tier table must have at least one row")
	}
	if len(t) > MaxRows {
		return pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("tier table cannot exceed %d rows", MaxRows))
	}
	for i, tier := range t {
		if tier.Name == "" {
			return pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("tier %d is missing a name", i))
		}
		if tier.Threshold.IsNegative() {
			return pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("tier %q has a negative threshold", tier.Name))
		}
		if i > 0 && tier.Threshold.LessThanOrEqual(t[i-1].Threshold) {
			return pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("tier %q threshold must exceed the previous tier", tier.Name))
		}
		for _, pct := range []decimal.Decimal{tier.CommissionPct, tier.MLM2Pct, tier.MLM3Pct} {
			if pct.IsNegative() || pct.GreaterThan(hundred) {
				return pkgerrors.New(pkgerrors.CodeValidation,
					fmt.Sprintf("tier %q has a percentage outside 0-100", tier.Name))
			}
		}
	}
	return nil
}

// ResolveIndex returns the index of the highest tier whose threshold is at
// or below revenue. Last match wins; revenue below every threshold resolves
// to index 0.
func ResolveIndex(revenue decimal.Decimal, table Table) (int, error) {
	if len(table) == 0 {
		return 0, pkgerrors.New(pkgerrors.CodeInternal, "tier table is empty")
	}
	index := 0
	for i, tier := range table {
		if tier.Threshold.LessThanOrEqual(revenue) {
			index = i
		}
	}
	return index, nil
}

// Commission returns the direct commission on amount for the given tier.
func Commission(amount decimal.Decimal, table Table, tierIndex int) (decimal.Decimal, error) {
	tier, err := rowAt(table, tierIndex)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(tier.CommissionPct).Div(hundred).Round(2), nil
}

// Override returns the level-2 override paid to the selling affiliate's
// parent. The percentage comes from the child's tier, not the parent's.
func Override(amount decimal.Decimal, table Table, childTierIndex int) (decimal.Decimal, error) {
	tier, err := rowAt(table, childTierIndex)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(tier.MLM2Pct).Div(hundred).Round(2), nil
}

// Level3Defined reports whether any row carries a non-zero level-3
// percentage. The value is never applied; callers expose the flag so the
// configuration is visible.
func (t Table) Level3Defined() bool {
	for _, tier := range t {
		if !tier.MLM3Pct.IsZero() {
			return true
		}
	}
	return false
}

// NameAt returns the tier name for an index, clamping out-of-range values.
func (t Table) NameAt(index int) string {
	if len(t) == 0 {
		return ""
	}
	if index < 0 {
		index = 0
	}
	if index >= len(t) {
		index = len(t) - 1
	}
	return t[index].Name
}

func rowAt(table Table, index int) (Tier, error) {
	if len(table) == 0 {
		return Tier{}, pkgerrors.New(pkgerrors.CodeInternal, "tier table is empty")
	}
	if index < 0 || index >= len(table) {
		return Tier{}, pkgerrors.New(pkgerrors.CodeInternal,
			fmt.Sprintf("tier index %d out of range", index))
	}
	return table[index], nil
}
