package auction

import (
	"fmt"
	"time"

	"proxy-auction/internal/biddingerrors"
	model "proxy-auction/internal/models"

	"github.com/shopspring/decimal"
)

// BidderMax is one bidder's current proxy ceiling and when it was reached.
type BidderMax struct {
	BidderID  string
	Max       decimal.Decimal
	ReachedAt time.Time
	Seq       int64
}

// Ledger is the append-only bid log of a single auction. It is not safe for
// concurrent use; the owning actor is its only writer.
type Ledger struct {
	auctionID string
	bids      []model.Bid
	maxima    map[string]int // bidderID -> index into order
	order     []BidderMax    // first-seen order of bidders
	frozen    bool
}

// NewLedger creates an empty ledger for auctionID.
func NewLedger(auctionID string) *Ledger {
	return &Ledger{
		auctionID: auctionID,
		maxima:    make(map[string]int),
	}
}

// Validate checks that bid could be appended: it must belong to this auction,
// be ordered after the last entry, and strictly raise the bidder's own maximum.
func (l *Ledger) Validate(bid model.Bid) error {
	if l.frozen {
		return fmt.Errorf("ledger %s: %w", l.auctionID, biddingerrors.ErrLedgerFrozen)
	}
	if bid.AuctionID != l.auctionID {
		return fmt.Errorf("ledger %s: %w - bid for auction %s", l.auctionID, biddingerrors.ErrInvalidBid, bid.AuctionID)
	}
	if n := len(l.bids); n > 0 {
		last := l.bids[n-1]
		if bid.Seq <= last.Seq || bid.SubmittedAt.Before(last.SubmittedAt) {
			return fmt.Errorf("ledger %s: %w - out of order bid %s", l.auctionID, biddingerrors.ErrInvalidBid, bid.BidID)
		}
	}
	if prev, ok := l.MaxOf(bid.BidderID); ok && !bid.ProxyMax.GreaterThan(prev) {
		return fmt.Errorf("ledger %s: %w - %s <= %s", l.auctionID, biddingerrors.ErrNonMonotonicBid, bid.ProxyMax, prev)
	}
	return nil
}

// Append records an accepted bid after Validate.
func (l *Ledger) Append(bid model.Bid) error {
	if err := l.Validate(bid); err != nil {
		return err
	}

	l.bids = append(l.bids, bid)
	entry := BidderMax{
		BidderID:  bid.BidderID,
		Max:       bid.ProxyMax,
		ReachedAt: bid.SubmittedAt,
		Seq:       bid.Seq,
	}
	if i, ok := l.maxima[bid.BidderID]; ok {
		l.order[i] = entry
	} else {
		l.maxima[bid.BidderID] = len(l.order)
		l.order = append(l.order, entry)
	}
	return nil
}

// Freeze makes the ledger read-only. Freezing twice is a no-op.
func (l *Ledger) Freeze() {
	l.frozen = true
}

// Frozen reports whether the ledger still accepts appends.
func (l *Ledger) Frozen() bool {
	return l.frozen
}

// MaxOf returns the bidder's stored maximum.
func (l *Ledger) MaxOf(bidderID string) (decimal.Decimal, bool) {
	i, ok := l.maxima[bidderID]
	if !ok {
		return decimal.Zero, false
	}
	return l.order[i].Max, true
}

// Maxima returns each bidder's current maximum in first-seen order.
func (l *Ledger) Maxima() []BidderMax {
	return append([]BidderMax(nil), l.order...)
}

// MaximaWith returns the maxima as they would be after appending bid,
// without changing the ledger.
func (l *Ledger) MaximaWith(bid model.Bid) []BidderMax {
	out := l.Maxima()
	entry := BidderMax{
		BidderID:  bid.BidderID,
		Max:       bid.ProxyMax,
		ReachedAt: bid.SubmittedAt,
		Seq:       bid.Seq,
	}
	if i, ok := l.maxima[bid.BidderID]; ok {
		out[i] = entry
		return out
	}
	return append(out, entry)
}

// DistinctBidders counts bidders with at least one accepted bid.
func (l *Ledger) DistinctBidders() int {
	return len(l.order)
}

// Len is the number of accepted bids.
func (l *Ledger) Len() int {
	return len(l.bids)
}

// Bids returns a copy of the log in append order.
func (l *Ledger) Bids() []model.Bid {
	return append([]model.Bid(nil), l.bids...)
}

// Bidders returns bidder ids in first-seen order.
func (l *Ledger) Bidders() []string {
	ids := make([]string, 0, len(l.order))
	for _, m := range l.order {
		ids = append(ids, m.BidderID)
	}
	return ids
}
