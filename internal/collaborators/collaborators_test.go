package collaborators

import (
	"context"
	"testing"
	"time"

	"proxy-auction/internal/biddingerrors"
	"proxy-auction/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestStaticCatalog_GetListing(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 14, 17, 0, 0, 0, time.UTC)
	catalog := NewStaticCatalog(models.Listing{
		AuctionID:   "a1",
		SellerID:    "seller",
		StartingBid: decimal.RequireFromString("100"),
		StartAt:     start,
		EndAt:       start.Add(time.Hour),
	})

	got, err := catalog.GetListing(context.Background(), "a1")
	require.NoError(t, err)
	require.Equal(t, "seller", got.SellerID)

	_, err = catalog.GetListing(context.Background(), "a2")
	require.ErrorIs(t, err, biddingerrors.ErrAuctionNotFound)

	catalog.Add(models.Listing{AuctionID: "a2", SellerID: "other"})
	got, err = catalog.GetListing(context.Background(), "a2")
	require.NoError(t, err)
	require.Equal(t, "other", got.SellerID)
}

func TestAllowAllIdentity(t *testing.T) {
	t.Parallel()

	ok, err := AllowAllIdentity{}.IsEligible(context.Background(), "anyone")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestNoopPayments_HoldAndRelease(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := NewNoopPayments()

	first, err := p.HoldFunds(ctx, "alice", "a1", decimal.RequireFromString("150"))
	require.NoError(t, err)
	second, err := p.HoldFunds(ctx, "bob", "a1", decimal.RequireFromString("200"))
	require.NoError(t, err)
	require.NotEqual(t, first, second)
	require.Equal(t, 2, p.Open())

	require.NoError(t, p.ReleaseHold(ctx, first))
	require.NoError(t, p.ReleaseHold(ctx, "unknown"))
	require.Equal(t, 1, p.Open())
}
