package auction

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Standing is the derived leader/price snapshot of an auction. It holds the
// true leading maximum and must never be handed to a public surface as is;
// use Public on the owning actor instead.
type Standing struct {
	LeaderID            string
	LeaderMax           decimal.Decimal
	SecondHighestMax    decimal.Decimal
	DisplayedCurrentBid decimal.Decimal
	Bidders             int
}

// HasLeader reports whether any bid has been accepted.
func (s Standing) HasLeader() bool {
	return s.LeaderID != ""
}

// Resolve computes the Standing from each bidder's current maximum.
//
// Bidders are ranked by maximum descending; equal maxima are ranked by who
// reached that maximum first. The displayed current bid is the second-highest
// maximum plus one increment, capped at the leader's maximum. With a single
// bidder the displayed bid stays at the starting bid.
//
// Parameters:
//   - maxima: one entry per bidder, any order
//   - startingBid: the auction's opening price
//   - table: increment schedule
func Resolve(maxima []BidderMax, startingBid decimal.Decimal, table IncrementTable) Standing {
	if len(maxima) == 0 {
		return Standing{
			SecondHighestMax:    startingBid,
			DisplayedCurrentBid: startingBid,
		}
	}

	ranked := append([]BidderMax(nil), maxima...)
	sort.SliceStable(ranked, func(i, j int) bool {
		if c := ranked[i].Max.Cmp(ranked[j].Max); c != 0 {
			return c > 0
		}
		if !ranked[i].ReachedAt.Equal(ranked[j].ReachedAt) {
			return ranked[i].ReachedAt.Before(ranked[j].ReachedAt)
		}
		return ranked[i].Seq < ranked[j].Seq
	})

	leader := ranked[0]
	s := Standing{
		LeaderID:  leader.BidderID,
		LeaderMax: leader.Max,
		Bidders:   len(ranked),
	}

	if len(ranked) == 1 {
		s.SecondHighestMax = startingBid
		s.DisplayedCurrentBid = startingBid
		return s
	}

	second := ranked[1].Max
	s.SecondHighestMax = second
	s.DisplayedCurrentBid = decimal.Min(leader.Max, second.Add(table.MinIncrement(second)))
	return s
}

// RequiredMinimum returns the lowest proxy maximum bidderID may submit
// against s, and whether that bound is exclusive.
//
// Opening bids must reach the starting bid. The current leader may only raise
// their own ceiling. Everyone else must beat the displayed bid by one increment
// and, in any case, exceed their own previous maximum.
func RequiredMinimum(s Standing, startingBid decimal.Decimal, table IncrementTable, bidderID string, ownMax decimal.Decimal, hasOwn bool) (decimal.Decimal, bool) {
	if !s.HasLeader() {
		return startingBid, false
	}
	if s.LeaderID == bidderID {
		return s.LeaderMax, true
	}
	required := s.DisplayedCurrentBid.Add(table.MinIncrement(s.DisplayedCurrentBid))
	if hasOwn && ownMax.GreaterThanOrEqual(required) {
		return ownMax, true
	}
	return required, false
}

// Meets reports whether amount satisfies a bound returned by RequiredMinimum.
func Meets(amount, bound decimal.Decimal, exclusive bool) bool {
	if exclusive {
		return amount.GreaterThan(bound)
	}
	return amount.GreaterThanOrEqual(bound)
}
