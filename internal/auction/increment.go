package auction

import (
	"fmt"
	"sort"

	"proxy-auction/internal/biddingerrors"

	"github.com/shopspring/decimal"
)

// IncrementStep applies Increment to every price at or above Threshold,
// up to the next step's threshold.
type IncrementStep struct {
	Threshold decimal.Decimal
	Increment decimal.Decimal
}

// IncrementTable maps a price to the minimum legal raise above it.
// The zero value is not usable; build one with NewIncrementTable.
type IncrementTable struct {
	steps []IncrementStep
}

// NewIncrementTable validates and builds an increment table.
//
// Parameters:
//   - steps: (threshold, increment) pairs, in any order
//
// Returns an error wrapping ErrInvalidIncrementTable when the table is empty,
// has duplicate or negative thresholds, has a non-positive increment, or has
// increments that shrink as thresholds grow.
func NewIncrementTable(steps []IncrementStep) (IncrementTable, error) {
	if len(steps) == 0 {
		return IncrementTable{}, fmt.Errorf("auction: %w - no steps", biddingerrors.ErrInvalidIncrementTable)
	}

	sorted := append([]IncrementStep(nil), steps...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Threshold.LessThan(sorted[j].Threshold)
	})

	for i, s := range sorted {
		if s.Threshold.IsNegative() {
			return IncrementTable{}, fmt.Errorf("auction: %w - negative threshold %s", biddingerrors.ErrInvalidIncrementTable, s.Threshold)
		}
		if !s.Increment.IsPositive() {
			return IncrementTable{}, fmt.Errorf("auction: %w - non-positive increment at %s", biddingerrors.ErrInvalidIncrementTable, s.Threshold)
		}
		if i == 0 {
			continue
		}
		prev := sorted[i-1]
		if s.Threshold.Equal(prev.Threshold) {
			return IncrementTable{}, fmt.Errorf("auction: %w - duplicate threshold %s", biddingerrors.ErrInvalidIncrementTable, s.Threshold)
		}
		if s.Increment.LessThan(prev.Increment) {
			return IncrementTable{}, fmt.Errorf("auction: %w - increment decreases at %s", biddingerrors.ErrInvalidIncrementTable, s.Threshold)
		}
	}

	return IncrementTable{steps: sorted}, nil
}

// DefaultIncrementTable is a conventional marketplace schedule.
func DefaultIncrementTable() IncrementTable {
	d := decimal.RequireFromString
	t, err := NewIncrementTable([]IncrementStep{
		{Threshold: d("0"), Increment: d("0.05")},
		{Threshold: d("1"), Increment: d("0.25")},
		{Threshold: d("5"), Increment: d("0.50")},
		{Threshold: d("25"), Increment: d("1")},
		{Threshold: d("100"), Increment: d("2.50")},
		{Threshold: d("250"), Increment: d("5")},
		{Threshold: d("500"), Increment: d("10")},
		{Threshold: d("1000"), Increment: d("25")},
		{Threshold: d("2500"), Increment: d("50")},
		{Threshold: d("5000"), Increment: d("100")},
	})
	if err != nil {
		panic(err)
	}
	return t
}

// MinIncrement returns the increment of the highest threshold not exceeding
// amount. Prices below the first threshold use the first step.
func (t IncrementTable) MinIncrement(amount decimal.Decimal) decimal.Decimal {
	if len(t.steps) == 0 {
		return decimal.Zero
	}
	// first index whose threshold is above amount
	i := sort.Search(len(t.steps), func(i int) bool {
		return t.steps[i].Threshold.GreaterThan(amount)
	})
	if i == 0 {
		return t.steps[0].Increment
	}
	return t.steps[i-1].Increment
}

// Steps returns a copy of the table in ascending threshold order.
func (t IncrementTable) Steps() []IncrementStep {
	return append([]IncrementStep(nil), t.steps...)
}
