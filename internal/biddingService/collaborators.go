package bidding

import (
	"context"

	"proxy-auction/internal/models"

	"github.com/shopspring/decimal"
)

// IdentityProvider answers whether a bidder may take part in auctions.
// An error means the provider could not answer, not that the bidder is ineligible.
type IdentityProvider interface {
	IsEligible(ctx context.Context, bidderID string) (bool, error)
}

// PaymentAuthorizer places and releases holds on a bidder's funds.
// Any HoldFunds error is treated as a failed hold.
type PaymentAuthorizer interface {
	HoldFunds(ctx context.Context, bidderID, auctionID string, amount decimal.Decimal) (holdID string, err error)
	ReleaseHold(ctx context.Context, holdID string) error
}

// CatalogStore serves listing metadata for auctions the engine has not seen yet.
// Unknown auctions return an error wrapping biddingerrors.ErrAuctionNotFound.
type CatalogStore interface {
	GetListing(ctx context.Context, auctionID string) (models.Listing, error)
}

// Archiver receives the frozen ledger of a retired auction.
type Archiver interface {
	Archive(ctx context.Context, snapshot models.LedgerSnapshot) error
}

// Notifier is woken after outbox events are committed.
type Notifier interface {
	Nudge()
}
