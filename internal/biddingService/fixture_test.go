package bidding

import (
	"context"
	"testing"
	"time"

	"proxy-auction/internal/collaborators"
	"proxy-auction/internal/models"
	"proxy-auction/internal/repository"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// Auctions open at 17:00 and open bidding ends at 18:00.
var (
	t0    = time.Date(2026, 3, 14, 17, 0, 0, 0, time.UTC)
	tEnd  = t0.Add(time.Hour)
	tLive = t0.Add(time.Minute)
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func listing(id, reserve string) models.Listing {
	l := models.Listing{
		AuctionID:   id,
		SellerID:    "seller",
		StartingBid: d("100"),
		StartAt:     t0,
		EndAt:       tEnd,
	}
	if reserve != "" {
		r := d(reserve)
		l.Reserve = &r
	}
	return l
}

type fixture struct {
	clock    *clockwork.FakeClock
	store    *repository.MemoryRepo
	catalog  *collaborators.StaticCatalog
	payments *collaborators.NoopPayments
	registry *Registry
	service  *BiddingService
}

// newFixture wires a service over the memory store with a fake clock at start.
func newFixture(t *testing.T, start time.Time, listings ...models.Listing) *fixture {
	t.Helper()

	f := &fixture{
		clock:    clockwork.NewFakeClockAt(start),
		store:    repository.NewMemoryRepo(),
		catalog:  collaborators.NewStaticCatalog(listings...),
		payments: collaborators.NewNoopPayments(),
	}
	f.registry = NewRegistry(f.store, f.catalog, DefaultSettings(), WithClock(f.clock))
	f.service = NewBiddingService(f.registry, collaborators.AllowAllIdentity{}, f.payments)
	t.Cleanup(func() { _ = f.registry.Close(context.Background()) })
	return f
}

func request(auctionID, bidder, amount, key string) models.BidRequest {
	return models.BidRequest{
		AuctionID:      auctionID,
		BidderID:       bidder,
		ProxyMax:       d(amount),
		IdempotencyKey: key,
	}
}

func (f *fixture) submit(t *testing.T, auctionID, bidder, amount, key string) models.BidResult {
	t.Helper()
	res, err := f.service.SubmitBid(context.Background(), request(auctionID, bidder, amount, key))
	require.NoError(t, err)
	return res
}

func (f *fixture) standing(t *testing.T, auctionID string) models.PublicStanding {
	t.Helper()
	s, err := f.service.GetStanding(context.Background(), auctionID)
	require.NoError(t, err)
	return s
}

// at moves the fake clock forward to target.
func (f *fixture) at(target time.Time) {
	f.clock.Advance(target.Sub(f.clock.Now()))
}

func (f *fixture) events(t *testing.T) []models.Event {
	t.Helper()
	events, err := f.store.PendingEvents(context.Background(), 0)
	require.NoError(t, err)
	return events
}

func eventsOf(events []models.Event, kind models.EventKind) []models.Event {
	var out []models.Event
	for _, e := range events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func requireAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, d(want).Equal(got), "want %s, got %s", want, got)
}
