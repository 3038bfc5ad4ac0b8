package helpers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"proxy-auction/internal/biddingerrors"
	"proxy-auction/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestMapRejectionToHTTP(t *testing.T) {
	tests := map[biddingerrors.RejectReason]int{
		biddingerrors.ReasonAuctionNotBiddable: http.StatusConflict,
		biddingerrors.ReasonBidTooLow:          http.StatusConflict,
		biddingerrors.ReasonSelfBidForbidden:   http.StatusForbidden,
		biddingerrors.ReasonIdentityIneligible: http.StatusForbidden,
		biddingerrors.ReasonPaymentHoldFailed:  http.StatusPaymentRequired,
		"something_new":                        http.StatusUnprocessableEntity,
	}
	for reason, want := range tests {
		require.Equal(t, want, MapRejectionToHTTP(string(reason)), reason)
	}
}

func TestMapErrorToHTTP(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("registry: listing a1: %w", biddingerrors.ErrAuctionNotFound), http.StatusNotFound},
		{fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrInvalidBid), http.StatusBadRequest},
		{fmt.Errorf("registry: %w", biddingerrors.ErrActorRetired), http.StatusServiceUnavailable},
		{biddingerrors.ErrStoreUnavailable, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		status, _ := MapErrorToHTTP(tc.err)
		require.Equal(t, tc.want, status, tc.err.Error())
	}
}

func TestParseAmount(t *testing.T) {
	amount, err := ParseAmount("102.50")
	require.NoError(t, err)
	require.True(t, decimal.RequireFromString("102.5").Equal(amount))

	for _, bad := range []string{"", "abc", "0", "-5", "1e"} {
		_, err := ParseAmount(bad)
		require.ErrorIs(t, err, biddingerrors.ErrInvalidBid, bad)
	}
}

func TestToBidResponse(t *testing.T) {
	ends := time.Date(2026, 3, 14, 18, 15, 0, 0, time.UTC)
	resp := ToBidResponse(models.BidResult{
		Status:   models.BidAccepted,
		BidID:    "b1",
		BidderID: "alice",
		Leading:  true,
		Standing: models.PublicStanding{
			AuctionID:           "a1",
			DisplayedCurrentBid: decimal.RequireFromString("202.50"),
			BidCount:            3,
			Phase:               models.PhaseExtendedBidding,
			EndsAt:              ends,
		},
	})

	require.Equal(t, "accepted", resp.Status)
	require.Equal(t, "202.5", resp.Standing.DisplayedCurrentBid)
	require.Equal(t, "extended_bidding", resp.Standing.Phase)
	require.Equal(t, "2026-03-14T18:15:00Z", resp.Standing.EndsAt)
}
