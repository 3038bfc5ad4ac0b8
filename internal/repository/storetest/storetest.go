// Package storetest is a behavioural suite every AuctionStore implementation
// must pass. Backend test files call Run with a constructor for a fresh store.
package storetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"proxy-auction/internal/biddingerrors"
	model "proxy-auction/internal/models"
	"proxy-auction/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// Base is the reference instant of every fixture. It carries microseconds,
// the finest resolution the engine assigns, so truncating backends fail.
var Base = time.Date(2026, 3, 14, 17, 0, 0, 123456000, time.UTC)

// NewStore returns an empty store owned by the test.
type NewStore func(t *testing.T) repository.AuctionStore

// Run executes the whole suite. Each subtest gets its own store.
func Run(t *testing.T, newStore NewStore) {
	t.Run("create_and_get_auction", func(t *testing.T) { testCreateAndGet(t, newStore(t)) })
	t.Run("auction_not_found", func(t *testing.T) { testNotFound(t, newStore(t)) })
	t.Run("append_and_list_bids", func(t *testing.T) { testAppendAndList(t, newStore(t)) })
	t.Run("duplicate_idempotency_key", func(t *testing.T) { testDuplicateKey(t, newStore(t)) })
	t.Run("update_auction_with_events", func(t *testing.T) { testUpdateAuction(t, newStore(t)) })
	t.Run("outbox_order_and_delivery", func(t *testing.T) { testOutbox(t, newStore(t)) })
}

// Auction builds a scheduled auction fixture.
func Auction(id string, reserve string) model.Auction {
	var r *decimal.Decimal
	if reserve != "" {
		d := decimal.RequireFromString(reserve)
		r = &d
	}
	return model.NewAuctionFromListing(model.Listing{
		AuctionID:   id,
		SellerID:    "seller-" + id,
		StartingBid: decimal.RequireFromString("100"),
		Reserve:     r,
		StartAt:     Base,
		EndAt:       Base.Add(time.Hour),
	})
}

// Bid builds a ledger entry fixture.
func Bid(auctionID string, seq int64, bidder, amount string) model.Bid {
	return model.Bid{
		BidID:          fmt.Sprintf("%s-bid-%d", auctionID, seq),
		AuctionID:      auctionID,
		BidderID:       bidder,
		ProxyMax:       decimal.RequireFromString(amount),
		Seq:            seq,
		SubmittedAt:    Base.Add(time.Duration(seq) * time.Minute),
		IdempotencyKey: fmt.Sprintf("key-%d", seq),
	}
}

// Event builds an outbox fixture.
func Event(auctionID, id string, kind model.EventKind) model.Event {
	return model.Event{
		EventID:     id,
		AuctionID:   auctionID,
		Kind:        kind,
		RecipientID: "bidder-1",
		Amount:      decimal.RequireFromString("102.50"),
		BidCount:    2,
		Phase:       model.PhaseOpenBidding,
		EndsAt:      Base.Add(time.Hour),
		CreatedAt:   Base,
	}
}

// RequireAuctionEqual compares auction rows by value.
func RequireAuctionEqual(t *testing.T, want, got model.Auction) {
	t.Helper()
	require.Equal(t, want.AuctionID, got.AuctionID)
	require.Equal(t, want.SellerID, got.SellerID)
	require.True(t, want.StartingBid.Equal(got.StartingBid), "starting bid %s != %s", want.StartingBid, got.StartingBid)
	if want.Reserve == nil {
		require.Nil(t, got.Reserve)
	} else {
		require.NotNil(t, got.Reserve)
		require.True(t, want.Reserve.Equal(*got.Reserve))
	}
	require.True(t, want.StartAt.Equal(got.StartAt))
	require.True(t, want.EndAt.Equal(got.EndAt))
	require.Equal(t, want.Phase, got.Phase)
	require.True(t, want.EndsAt.Equal(got.EndsAt), "ends at %s != %s", want.EndsAt, got.EndsAt)
	require.Equal(t, want.ExtensionCount, got.ExtensionCount)
	require.Equal(t, want.Outcome.Kind, got.Outcome.Kind)
	require.Equal(t, want.Outcome.WinnerID, got.Outcome.WinnerID)
	require.True(t, want.Outcome.Price.Equal(got.Outcome.Price))
	if want.ClosedAt == nil {
		require.Nil(t, got.ClosedAt)
	} else {
		require.NotNil(t, got.ClosedAt)
		require.True(t, want.ClosedAt.Equal(*got.ClosedAt))
	}
}

func requireBidEqual(t *testing.T, want, got model.Bid) {
	t.Helper()
	require.Equal(t, want.BidID, got.BidID)
	require.Equal(t, want.AuctionID, got.AuctionID)
	require.Equal(t, want.BidderID, got.BidderID)
	require.True(t, want.ProxyMax.Equal(got.ProxyMax))
	require.Equal(t, want.Seq, got.Seq)
	require.True(t, want.SubmittedAt.Equal(got.SubmittedAt))
	require.Equal(t, want.IdempotencyKey, got.IdempotencyKey)
}

func testCreateAndGet(t *testing.T, store repository.AuctionStore) {
	ctx := context.Background()

	withReserve := Auction("a1", "250.75")
	noReserve := Auction("a2", "")
	require.NoError(t, store.CreateAuction(ctx, withReserve))
	require.NoError(t, store.CreateAuction(ctx, noReserve))

	got, err := store.GetAuction(ctx, "a1")
	require.NoError(t, err)
	RequireAuctionEqual(t, withReserve, got)

	got, err = store.GetAuction(ctx, "a2")
	require.NoError(t, err)
	RequireAuctionEqual(t, noReserve, got)

	err = store.CreateAuction(ctx, withReserve)
	require.ErrorIs(t, err, biddingerrors.ErrAuctionExists)
}

func testNotFound(t *testing.T, store repository.AuctionStore) {
	ctx := context.Background()

	_, err := store.GetAuction(ctx, "missing")
	require.ErrorIs(t, err, biddingerrors.ErrAuctionNotFound)

	err = store.UpdateAuction(ctx, Auction("missing", ""), nil)
	require.ErrorIs(t, err, biddingerrors.ErrAuctionNotFound)

	bids, err := store.ListBids(ctx, "missing")
	require.NoError(t, err)
	require.Empty(t, bids)
}

func testAppendAndList(t *testing.T, store repository.AuctionStore) {
	ctx := context.Background()
	a := Auction("a1", "")
	require.NoError(t, store.CreateAuction(ctx, a))

	a.Phase = model.PhaseOpenBidding
	want := []model.Bid{
		Bid("a1", 1, "alice", "500"),
		Bid("a1", 2, "bob", "300"),
		Bid("a1", 3, "bob", "310.25"),
	}
	for _, b := range want {
		require.NoError(t, store.AppendBid(ctx, b, a, nil))
	}

	got, err := store.ListBids(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, got, len(want))
	for i := range want {
		requireBidEqual(t, want[i], got[i])
	}

	row, err := store.GetAuction(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, model.PhaseOpenBidding, row.Phase)
}

func testDuplicateKey(t *testing.T, store repository.AuctionStore) {
	ctx := context.Background()
	a := Auction("a1", "")
	require.NoError(t, store.CreateAuction(ctx, a))

	first := Bid("a1", 1, "alice", "150")
	require.NoError(t, store.AppendBid(ctx, first, a, []model.Event{Event("a1", "e1", model.EventStandingChanged)}))

	again := Bid("a1", 2, "alice", "175")
	again.IdempotencyKey = first.IdempotencyKey
	a.ExtensionCount = 9
	err := store.AppendBid(ctx, again, a, []model.Event{Event("a1", "e2", model.EventStandingChanged)})
	require.ErrorIs(t, err, biddingerrors.ErrDuplicateBid)

	// nothing from the failed append is visible
	bids, err := store.ListBids(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, bids, 1)

	row, err := store.GetAuction(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, 0, row.ExtensionCount)

	pending, err := store.PendingEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "e1", pending[0].EventID)

	// the same key from another bidder is a different submission
	other := Bid("a1", 2, "bob", "200")
	other.IdempotencyKey = first.IdempotencyKey
	require.NoError(t, store.AppendBid(ctx, other, Auction("a1", ""), nil))
}

func testUpdateAuction(t *testing.T, store repository.AuctionStore) {
	ctx := context.Background()
	a := Auction("a1", "400")
	require.NoError(t, store.CreateAuction(ctx, a))

	closedAt := Base.Add(78 * time.Minute)
	a.Phase = model.PhaseClosed
	a.EndsAt = closedAt
	a.ExtensionCount = 3
	a.Outcome = model.Outcome{Kind: model.OutcomeSold, WinnerID: "alice", Price: decimal.RequireFromString("412.50")}
	a.ClosedAt = &closedAt

	require.NoError(t, store.UpdateAuction(ctx, a, []model.Event{
		Event("a1", "e1", model.EventWon),
		Event("a1", "e2", model.EventAuctionClosed),
	}))

	got, err := store.GetAuction(ctx, "a1")
	require.NoError(t, err)
	RequireAuctionEqual(t, a, got)

	pending, err := store.PendingEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
}

func testOutbox(t *testing.T, store repository.AuctionStore) {
	ctx := context.Background()
	a := Auction("a1", "")
	require.NoError(t, store.CreateAuction(ctx, a))

	for i := 1; i <= 5; i++ {
		e := Event("a1", fmt.Sprintf("e%d", i), model.EventStandingChanged)
		e.CreatedAt = Base.Add(time.Duration(i) * time.Second)
		require.NoError(t, store.UpdateAuction(ctx, a, []model.Event{e}))
	}

	page, err := store.PendingEvents(ctx, 3)
	require.NoError(t, err)
	require.Len(t, page, 3)
	require.Equal(t, "e1", page[0].EventID)
	require.Equal(t, "e3", page[2].EventID)

	got := page[0]
	want := Event("a1", "e1", model.EventStandingChanged)
	require.Equal(t, want.Kind, got.Kind)
	require.Equal(t, want.RecipientID, got.RecipientID)
	require.True(t, want.Amount.Equal(got.Amount))
	require.Equal(t, want.BidCount, got.BidCount)
	require.Equal(t, want.Phase, got.Phase)
	require.True(t, want.EndsAt.Equal(got.EndsAt))

	// delivering out of order leaves the gap pending
	require.NoError(t, store.MarkEventsDelivered(ctx, []string{"e1", "e3", "unknown"}))
	page, err = store.PendingEvents(ctx, 10)
	require.NoError(t, err)
	ids := make([]string, 0, len(page))
	for _, e := range page {
		ids = append(ids, e.EventID)
	}
	require.Equal(t, []string{"e2", "e4", "e5"}, ids)

	require.NoError(t, store.MarkEventsDelivered(ctx, ids))
	page, err = store.PendingEvents(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, page)
}
