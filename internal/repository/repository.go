package repository

import (
	"context"
	"fmt"
	"sync"

	"proxy-auction/internal/biddingerrors"
	model "proxy-auction/internal/models"
)

// AuctionStore is the durable state of the engine: auction rows, the ordered
// bid ledger of each auction, and the notification outbox.
//
// AppendBid and UpdateAuction are atomic: the bid (or phase change), the new
// auction row and the outbox events are written together or not at all.
type AuctionStore interface {
	GetAuction(ctx context.Context, auctionID string) (model.Auction, error)
	CreateAuction(ctx context.Context, auction model.Auction) error
	ListBids(ctx context.Context, auctionID string) ([]model.Bid, error)
	AppendBid(ctx context.Context, bid model.Bid, auction model.Auction, events []model.Event) error
	UpdateAuction(ctx context.Context, auction model.Auction, events []model.Event) error
	PendingEvents(ctx context.Context, limit int) ([]model.Event, error)
	MarkEventsDelivered(ctx context.Context, eventIDs []string) error
	Close() error
}

var _ AuctionStore = (*MemoryRepo)(nil)

type outboxEntry struct {
	event     model.Event
	delivered bool
}

// MemoryRepo is a concurrency-safe in-memory implementation of AuctionStore
type MemoryRepo struct {
	mu       sync.RWMutex
	auctions map[string]model.Auction // key: auctionID
	bids     map[string][]model.Bid   // key: auctionID -> ledger in seq order
	keys     map[string]struct{}      // key: auctionID|bidderID|idempotencyKey
	outbox   []outboxEntry
}

// NewMemoryRepo creates a new in-memory repository instance
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		auctions: make(map[string]model.Auction),
		bids:     make(map[string][]model.Bid),
		keys:     make(map[string]struct{}),
	}
}

func idempotencyIndex(b model.Bid) string {
	return b.AuctionID + "|" + b.BidderID + "|" + b.IdempotencyKey
}

// GetAuction returns the auction row
func (r *MemoryRepo) GetAuction(_ context.Context, auctionID string) (model.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.auctions[auctionID]
	if !ok {
		return model.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	return a, nil
}

// CreateAuction inserts a new auction row
func (r *MemoryRepo) CreateAuction(_ context.Context, auction model.Auction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.auctions[auction.AuctionID]; ok {
		return fmt.Errorf("create auction %s: %w", auction.AuctionID, biddingerrors.ErrAuctionExists)
	}
	r.auctions[auction.AuctionID] = auction
	return nil
}

// ListBids returns the auction's ledger in append order
func (r *MemoryRepo) ListBids(_ context.Context, auctionID string) ([]model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]model.Bid(nil), r.bids[auctionID]...), nil
}

// AppendBid records an accepted bid together with the updated auction row and its events
func (r *MemoryRepo) AppendBid(_ context.Context, bid model.Bid, auction model.Auction, events []model.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if bid.AuctionID != auction.AuctionID {
		return fmt.Errorf("append bid %s: %w - auction mismatch", bid.BidID, biddingerrors.ErrInvalidBid)
	}
	if _, ok := r.auctions[auction.AuctionID]; !ok {
		return fmt.Errorf("append bid %s: %w", bid.BidID, biddingerrors.ErrAuctionNotFound)
	}
	if _, dup := r.keys[idempotencyIndex(bid)]; dup {
		return fmt.Errorf("append bid %s: %w", bid.BidID, biddingerrors.ErrDuplicateBid)
	}
	ledger := r.bids[bid.AuctionID]
	if n := len(ledger); n > 0 && ledger[n-1].Seq >= bid.Seq {
		return fmt.Errorf("append bid %s: %w - seq %d", bid.BidID, biddingerrors.ErrDuplicateBid, bid.Seq)
	}

	r.bids[bid.AuctionID] = append(ledger, bid)
	r.keys[idempotencyIndex(bid)] = struct{}{}
	r.auctions[auction.AuctionID] = auction
	r.enqueue(events)
	return nil
}

// UpdateAuction replaces the auction row and enqueues its events
func (r *MemoryRepo) UpdateAuction(_ context.Context, auction model.Auction, events []model.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.auctions[auction.AuctionID]; !ok {
		return fmt.Errorf("update auction %s: %w", auction.AuctionID, biddingerrors.ErrAuctionNotFound)
	}
	r.auctions[auction.AuctionID] = auction
	r.enqueue(events)
	return nil
}

func (r *MemoryRepo) enqueue(events []model.Event) {
	for _, e := range events {
		r.outbox = append(r.outbox, outboxEntry{event: e})
	}
}

// PendingEvents returns up to limit undelivered events in insertion order
func (r *MemoryRepo) PendingEvents(_ context.Context, limit int) ([]model.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []model.Event
	for _, e := range r.outbox {
		if limit > 0 && len(out) == limit {
			break
		}
		if !e.delivered {
			out = append(out, e.event)
		}
	}
	return out, nil
}

// MarkEventsDelivered flags events as delivered. Unknown ids are ignored.
func (r *MemoryRepo) MarkEventsDelivered(_ context.Context, eventIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make(map[string]struct{}, len(eventIDs))
	for _, id := range eventIDs {
		ids[id] = struct{}{}
	}
	for i := range r.outbox {
		if _, ok := ids[r.outbox[i].event.EventID]; ok {
			r.outbox[i].delivered = true
		}
	}

	// drop the delivered prefix
	n := 0
	for n < len(r.outbox) && r.outbox[n].delivered {
		n++
	}
	r.outbox = r.outbox[n:]
	return nil
}

// Close is a no-op for the memory store
func (r *MemoryRepo) Close() error {
	return nil
}
