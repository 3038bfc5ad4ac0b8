// Package collaborators holds the in-process defaults for the engine's external
// dependencies: a static catalog, an identity provider that admits everyone,
// and a payment authorizer that grants every hold.
package collaborators

import (
	"context"
	"fmt"
	"sync"

	"proxy-auction/internal/biddingerrors"
	"proxy-auction/internal/models"
	"proxy-auction/utils"

	"github.com/shopspring/decimal"
)

// StaticCatalog serves listings from memory, seeded from configuration.
type StaticCatalog struct {
	mu       sync.RWMutex
	listings map[string]models.Listing
}

// NewStaticCatalog creates a catalog holding listings.
func NewStaticCatalog(listings ...models.Listing) *StaticCatalog {
	c := &StaticCatalog{listings: make(map[string]models.Listing, len(listings))}
	for _, l := range listings {
		c.listings[l.AuctionID] = l
	}
	return c
}

// Add registers or replaces a listing.
func (c *StaticCatalog) Add(l models.Listing) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listings[l.AuctionID] = l
}

// GetListing returns the listing for auctionID.
func (c *StaticCatalog) GetListing(_ context.Context, auctionID string) (models.Listing, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	l, ok := c.listings[auctionID]
	if !ok {
		return models.Listing{}, fmt.Errorf("catalog: listing %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	return l, nil
}

// AllowAllIdentity treats every bidder as eligible.
type AllowAllIdentity struct{}

// IsEligible always reports true.
func (AllowAllIdentity) IsEligible(context.Context, string) (bool, error) {
	return true, nil
}

// NoopPayments grants every hold and remembers which are still open.
type NoopPayments struct {
	mu    sync.Mutex
	holds map[string]decimal.Decimal
}

// NewNoopPayments creates an authorizer with no open holds.
func NewNoopPayments() *NoopPayments {
	return &NoopPayments{holds: make(map[string]decimal.Decimal)}
}

// HoldFunds records a hold and returns its id.
func (p *NoopPayments) HoldFunds(_ context.Context, bidderID, auctionID string, amount decimal.Decimal) (string, error) {
	id := utils.GenerateID()

	p.mu.Lock()
	p.holds[id] = amount
	p.mu.Unlock()

	utils.Debug("payment hold granted", map[string]any{
		"hold_id":    id,
		"bidder_id":  bidderID,
		"auction_id": auctionID,
	})
	return id, nil
}

// ReleaseHold forgets a hold. Releasing an unknown hold is not an error.
func (p *NoopPayments) ReleaseHold(_ context.Context, holdID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.holds, holdID)
	return nil
}

// Open returns the number of holds not yet released.
func (p *NoopPayments) Open() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.holds)
}
