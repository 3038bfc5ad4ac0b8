package repository_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"proxy-auction/internal/biddingerrors"
	model "proxy-auction/internal/models"
	"proxy-auction/internal/repository"
	"proxy-auction/internal/repository/storetest"

	"github.com/stretchr/testify/require"
)

func TestMemoryRepo_Store(t *testing.T) {
	t.Parallel()

	storetest.Run(t, func(t *testing.T) repository.AuctionStore {
		return repository.NewMemoryRepo()
	})
}

// Concurrent appends with distinct keys all land; a racing duplicate key lands once.
func TestMemoryRepo_ConcurrentAppend(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := repository.NewMemoryRepo()
	a := storetest.Auction("a1", "")
	require.NoError(t, repo.CreateAuction(ctx, a))

	const workers = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted, duplicates := 0, 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b := storetest.Bid("a1", int64(i+1), fmt.Sprintf("bidder-%d", i), "150")
			b.IdempotencyKey = "shared"
			b.BidderID = "same-bidder"
			err := repo.AppendBid(ctx, b, a, nil)

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				accepted++
				return
			}
			require.ErrorIs(t, err, biddingerrors.ErrDuplicateBid)
			duplicates++
		}(i)
	}
	wg.Wait()

	require.Equal(t, 1, accepted)
	require.Equal(t, workers-1, duplicates)

	bids, err := repo.ListBids(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, bids, 1)
}

func TestMemoryRepo_PendingEventsIsolation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := repository.NewMemoryRepo()
	a := storetest.Auction("a1", "")
	require.NoError(t, repo.CreateAuction(ctx, a))
	require.NoError(t, repo.UpdateAuction(ctx, a, []model.Event{storetest.Event("a1", "e1", model.EventOutbid)}))

	page, err := repo.PendingEvents(ctx, 0)
	require.NoError(t, err)
	require.Len(t, page, 1)
	page[0].RecipientID = "mallory"

	again, err := repo.PendingEvents(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, "bidder-1", again[0].RecipientID)
}
