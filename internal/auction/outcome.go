package auction

import (
	model "proxy-auction/internal/models"

	"github.com/shopspring/decimal"
)

// DecideOutcome is the close decision. It depends only on the final Standing
// and the reserve, so replaying a ledger always reproduces it.
//
// A leader whose maximum meets the reserve wins at the displayed bid, lifted
// to the reserve when the displayed bid sits below it.
func DecideOutcome(s Standing, reserve *decimal.Decimal) model.Outcome {
	if !ReserveMet(s, reserve) {
		return model.Outcome{Kind: model.OutcomeUnsold}
	}

	price := s.DisplayedCurrentBid
	if reserve != nil && price.LessThan(*reserve) {
		price = *reserve
	}
	return model.Outcome{
		Kind:     model.OutcomeSold,
		WinnerID: s.LeaderID,
		Price:    price,
	}
}

// ReserveMet reports whether the standing leader clears the reserve.
func ReserveMet(s Standing, reserve *decimal.Decimal) bool {
	return s.HasLeader() && (reserve == nil || s.LeaderMax.GreaterThanOrEqual(*reserve))
}
