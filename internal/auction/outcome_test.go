package auction

import (
	"testing"
	"time"

	model "proxy-auction/internal/models"

	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"
)

func TestDecideOutcome(t *testing.T) {
	table := DefaultIncrementTable()
	start := dec("100")
	reserve := func(s string) *decimal.Decimal {
		d := dec(s)
		return &d
	}
	twoBidders := Resolve([]BidderMax{
		bidderMax("alice", "500", 0, 1),
		bidderMax("bob", "300", time.Minute, 2),
	}, start, table)

	tests := []struct {
		name      string
		standing  Standing
		reserve   *decimal.Decimal
		wantKind  model.OutcomeKind
		wantWin   string
		wantPrice string
	}{
		{
			name:     "no_bids",
			standing: Resolve(nil, start, table),
			wantKind: model.OutcomeUnsold,
		},
		{
			name:      "no_reserve",
			standing:  twoBidders,
			wantKind:  model.OutcomeSold,
			wantWin:   "alice",
			wantPrice: "305",
		},
		{
			name:      "reserve_below_displayed",
			standing:  twoBidders,
			reserve:   reserve("200"),
			wantKind:  model.OutcomeSold,
			wantWin:   "alice",
			wantPrice: "305",
		},
		{
			name:      "reserve_lifts_price",
			standing:  twoBidders,
			reserve:   reserve("450"),
			wantKind:  model.OutcomeSold,
			wantWin:   "alice",
			wantPrice: "450",
		},
		{
			name:      "reserve_equal_leader_max",
			standing:  twoBidders,
			reserve:   reserve("500"),
			wantKind:  model.OutcomeSold,
			wantWin:   "alice",
			wantPrice: "500",
		},
		{
			name:     "reserve_unmet_with_leader",
			standing: twoBidders,
			reserve:  reserve("500.01"),
			wantKind: model.OutcomeUnsold,
		},
		{
			name:      "single_bidder_sells_at_start",
			standing:  Resolve([]BidderMax{bidderMax("alice", "900", 0, 1)}, start, table),
			wantKind:  model.OutcomeSold,
			wantWin:   "alice",
			wantPrice: "100",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := DecideOutcome(tc.standing, tc.reserve)

			check.Equal(t, tc.wantKind, got.Kind)
			check.Equal(t, tc.wantWin, got.WinnerID)
			if tc.wantPrice != "" {
				check.Equal(t, tc.wantPrice, got.Price.String())
				check.True(t, got.Price.LessThanOrEqual(tc.standing.LeaderMax))
			}
			check.Equal(t, got.Kind == model.OutcomeSold, ReserveMet(tc.standing, tc.reserve))
		})
	}
}
