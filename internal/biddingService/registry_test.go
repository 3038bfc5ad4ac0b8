package bidding

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"proxy-auction/internal/biddingerrors"
	"proxy-auction/internal/collaborators"
	"proxy-auction/internal/models"
	"proxy-auction/internal/repository"

	"github.com/golang/mock/gomock"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

// A fresh registry over the same store rebuilds standing, idempotency
// outcomes and the clock from the persisted ledger alone.
func TestRegistry_HydrationReplay(t *testing.T) {
	t.Parallel()
	f := newFixture(t, tLive, listing("a1", ""))

	first := f.submit(t, "a1", "alice", "500", "k1")
	f.submit(t, "a1", "bob", "300", "k1")
	f.at(tEnd.Add(2 * time.Minute))
	extended := f.submit(t, "a1", "bob", "520", "k2")
	require.Equal(t, models.PhaseExtendedBidding, extended.Standing.Phase)
	before := f.standing(t, "a1")
	require.NoError(t, f.registry.Close(context.Background()))

	registry := NewRegistry(f.store, f.catalog, DefaultSettings(), WithClock(f.clock))
	t.Cleanup(func() { _ = registry.Close(context.Background()) })
	svc := NewBiddingService(registry, collaborators.AllowAllIdentity{}, f.payments)

	after, err := svc.GetStanding(context.Background(), "a1")
	require.NoError(t, err)
	want, err := json.Marshal(before)
	require.NoError(t, err)
	got, err := json.Marshal(after)
	require.NoError(t, err)
	require.JSONEq(t, string(want), string(got))

	// replayed keys answer exactly what the first submission answered,
	// including the phase and deadline of that moment
	for _, tc := range []struct {
		req  models.BidRequest
		want models.BidResult
	}{
		{req: request("a1", "alice", "500", "k1"), want: first},
		{req: request("a1", "bob", "520", "k2"), want: extended},
	} {
		replay, err := svc.SubmitBid(context.Background(), tc.req)
		require.NoError(t, err)
		require.True(t, replay.Accepted())
		require.Equal(t, tc.want.BidID, replay.BidID)
		want, err := json.Marshal(tc.want)
		require.NoError(t, err)
		got, err := json.Marshal(replay)
		require.NoError(t, err)
		require.JSONEq(t, string(want), string(got))
	}
	require.Equal(t, models.PhaseOpenBidding, first.Standing.Phase)
	require.True(t, first.Standing.EndsAt.Equal(tEnd))

	next, err := svc.SubmitBid(context.Background(), request("a1", "alice", "600", "k3"))
	require.NoError(t, err)
	require.True(t, next.Accepted())

	bids, err := f.store.ListBids(context.Background(), "a1")
	require.NoError(t, err)
	require.Len(t, bids, 4)
	require.Equal(t, int64(4), bids[3].Seq)
	require.True(t, bids[3].SubmittedAt.After(bids[2].SubmittedAt))
}

// An auction whose deadline passed while nothing was running closes during
// hydration with the same outcome it would have had on time.
func TestRegistry_HydrationCatchesUpClock(t *testing.T) {
	t.Parallel()
	f := newFixture(t, tLive, listing("a1", ""))
	f.submit(t, "a1", "alice", "500", "k1")
	f.submit(t, "a1", "bob", "300", "k1")
	require.NoError(t, f.registry.Close(context.Background()))

	clk := clockwork.NewFakeClockAt(tEnd.Add(3 * time.Hour))
	registry := NewRegistry(f.store, f.catalog, DefaultSettings(), WithClock(clk))
	t.Cleanup(func() { _ = registry.Close(context.Background()) })
	svc := NewBiddingService(registry, collaborators.AllowAllIdentity{}, f.payments)

	standing, err := svc.GetStanding(context.Background(), "a1")
	require.NoError(t, err)
	require.Equal(t, models.PhaseClosed, standing.Phase)

	row, err := f.store.GetAuction(context.Background(), "a1")
	require.NoError(t, err)
	require.Equal(t, "alice", row.Outcome.WinnerID)
	requireAmount(t, "305", row.Outcome.Price)
	require.True(t, tEnd.Add(15*time.Minute).Equal(*row.ClosedAt))
}

func TestRegistry_RetiresAndArchivesClosedAuction(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	archiver := NewMockArchiver(ctrl)

	clk := clockwork.NewFakeClockAt(tLive)
	store := repository.NewMemoryRepo()
	registry := NewRegistry(store, collaborators.NewStaticCatalog(listing("a1", "")), DefaultSettings(),
		WithClock(clk), WithArchiver(archiver))
	t.Cleanup(func() { _ = registry.Close(context.Background()) })
	svc := NewBiddingService(registry, collaborators.AllowAllIdentity{}, collaborators.NewNoopPayments())

	archived := make(chan models.LedgerSnapshot, 1)
	archiver.EXPECT().Archive(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, s models.LedgerSnapshot) error {
		archived <- s
		return nil
	})

	_, err := svc.SubmitBid(context.Background(), request("a1", "alice", "150", "k1"))
	require.NoError(t, err)
	clk.Advance(tEnd.Sub(clk.Now()))
	standing, err := svc.GetStanding(context.Background(), "a1")
	require.NoError(t, err)
	require.Equal(t, models.PhaseClosed, standing.Phase)
	require.Equal(t, 1, registry.Live())

	clk.Advance(DefaultRetireAfter)
	require.Eventually(t, func() bool { return registry.Live() == 0 }, time.Second, 5*time.Millisecond)

	select {
	case s := <-archived:
		require.Equal(t, "a1", s.Auction.AuctionID)
		require.Equal(t, models.PhaseClosed, s.Auction.Phase)
		require.Len(t, s.Bids, 1)
	case <-time.After(time.Second):
		t.Fatal("snapshot was not archived")
	}

	// a retired auction is still readable; it is hydrated again on demand
	standing, err = svc.GetStanding(context.Background(), "a1")
	require.NoError(t, err)
	require.Equal(t, models.PhaseClosed, standing.Phase)
	require.Equal(t, 1, standing.BidCount)
}

// Concurrent first references share one hydration and one actor.
func TestRegistry_SingleActorPerAuction(t *testing.T) {
	t.Parallel()
	f := newFixture(t, tLive, listing("a1", ""))

	const callers = 16
	actors := make([]*actor, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			actors[i], errs[i] = f.registry.actor(context.Background(), "a1")
		}(i)
	}
	wg.Wait()

	for i, a := range actors {
		require.NoError(t, errs[i])
		require.Same(t, actors[0], a)
	}
	require.Equal(t, 1, f.registry.Live())
}

func TestRegistry_StoreFailures(t *testing.T) {
	t.Parallel()

	newService := func(t *testing.T, store repository.AuctionStore) *BiddingService {
		registry := NewRegistry(store, collaborators.NewStaticCatalog(listing("a1", "")), DefaultSettings(),
			WithClock(clockwork.NewFakeClockAt(tLive)))
		t.Cleanup(func() { _ = registry.Close(context.Background()) })
		return NewBiddingService(registry, collaborators.AllowAllIdentity{}, collaborators.NewNoopPayments())
	}

	t.Run("load_fails", func(t *testing.T) {
		t.Parallel()
		ctrl := gomock.NewController(t)
		store := repository.NewMockAuctionStore(ctrl)
		svc := newService(t, store)

		store.EXPECT().GetAuction(gomock.Any(), "a1").Return(models.Auction{}, biddingerrors.ErrStoreUnavailable)

		_, err := svc.SubmitBid(context.Background(), request("a1", "alice", "150", "k1"))
		require.ErrorIs(t, err, biddingerrors.ErrStoreUnavailable)
	})

	// a failed append is not recorded, so retrying the key succeeds later
	t.Run("append_fails_then_retry", func(t *testing.T) {
		t.Parallel()
		ctrl := gomock.NewController(t)
		store := repository.NewMockAuctionStore(ctrl)
		svc := newService(t, store)

		row := models.NewAuctionFromListing(listing("a1", ""))
		store.EXPECT().GetAuction(gomock.Any(), "a1").Return(row, nil)
		store.EXPECT().ListBids(gomock.Any(), "a1").Return(nil, nil)
		store.EXPECT().UpdateAuction(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, a models.Auction, events []models.Event) error {
				require.Equal(t, models.PhaseOpenBidding, a.Phase)
				require.Empty(t, events)
				return nil
			})
		gomock.InOrder(
			store.EXPECT().AppendBid(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("disk full")),
			store.EXPECT().AppendBid(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
				func(_ context.Context, b models.Bid, a models.Auction, events []models.Event) error {
					require.Equal(t, int64(1), b.Seq)
					require.Equal(t, "k1", b.IdempotencyKey)
					require.Len(t, events, 1)
					require.Equal(t, models.EventStandingChanged, events[0].Kind)
					return nil
				}),
		)

		_, err := svc.SubmitBid(context.Background(), request("a1", "alice", "150", "k1"))
		require.Error(t, err)

		res, err := svc.SubmitBid(context.Background(), request("a1", "alice", "150", "k1"))
		require.NoError(t, err)
		require.True(t, res.Accepted())
		require.Equal(t, 1, res.Standing.BidCount)
	})

	t.Run("creates_row_from_catalog", func(t *testing.T) {
		t.Parallel()
		ctrl := gomock.NewController(t)
		store := repository.NewMockAuctionStore(ctrl)
		svc := newService(t, store)

		store.EXPECT().GetAuction(gomock.Any(), "a1").Return(models.Auction{}, biddingerrors.ErrAuctionNotFound)
		store.EXPECT().CreateAuction(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, a models.Auction) error {
			require.Equal(t, models.PhaseScheduled, a.Phase)
			require.Equal(t, "seller", a.SellerID)
			return nil
		})
		store.EXPECT().ListBids(gomock.Any(), "a1").Return(nil, nil)
		store.EXPECT().UpdateAuction(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

		standing, err := svc.GetStanding(context.Background(), "a1")
		require.NoError(t, err)
		require.Equal(t, models.PhaseOpenBidding, standing.Phase)
		requireAmount(t, "100", standing.DisplayedCurrentBid)
	})
}

func TestRegistry_CloseRejectsNewWork(t *testing.T) {
	t.Parallel()
	f := newFixture(t, tLive, listing("a1", ""))
	f.submit(t, "a1", "alice", "150", "k1")

	require.NoError(t, f.registry.Close(context.Background()))
	require.Equal(t, 0, f.registry.Live())

	_, err := f.service.SubmitBid(context.Background(), request("a1", "bob", "200", "k1"))
	require.ErrorIs(t, err, biddingerrors.ErrActorRetired)
}
