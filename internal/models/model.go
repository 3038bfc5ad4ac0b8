package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Phase is the lifecycle stage of an auction. Phases only move forward.
type Phase string

const (
	PhaseScheduled       Phase = "scheduled"
	PhaseOpenBidding     Phase = "open_bidding"
	PhaseExtendedBidding Phase = "extended_bidding"
	PhaseClosed          Phase = "closed"
)

// Biddable reports whether bids may be appended in this phase.
func (p Phase) Biddable() bool {
	return p == PhaseOpenBidding || p == PhaseExtendedBidding
}

// OutcomeKind is the closing result of an auction.
type OutcomeKind string

const (
	OutcomeUnsold OutcomeKind = "unsold"
	OutcomeSold   OutcomeKind = "sold"
)

// Outcome is set once, when the auction reaches PhaseClosed.
type Outcome struct {
	Kind     OutcomeKind     `json:"kind"`
	WinnerID string          `json:"winner_id,omitempty"`
	Price    decimal.Decimal `json:"price"`
}

// Listing is the catalog metadata an auction is scheduled from.
type Listing struct {
	AuctionID   string           `json:"auction_id"`
	SellerID    string           `json:"seller_id"`
	StartingBid decimal.Decimal  `json:"starting_bid"`
	Reserve     *decimal.Decimal `json:"-"`
	StartAt     time.Time        `json:"start_at"`
	EndAt       time.Time        `json:"end_at"`
}

// Auction is the persisted row for one listed item.
type Auction struct {
	AuctionID      string           `json:"auction_id"`
	SellerID       string           `json:"seller_id"`
	StartingBid    decimal.Decimal  `json:"starting_bid"`
	Reserve        *decimal.Decimal `json:"-"` // hidden from every public surface
	StartAt        time.Time        `json:"start_at"`
	EndAt          time.Time        `json:"end_at"` // scheduled end of open bidding
	Phase          Phase            `json:"phase"`
	EndsAt         time.Time        `json:"ends_at"` // current close deadline, only moves forward
	ExtensionCount int              `json:"extension_count"`
	Outcome        Outcome          `json:"outcome"`
	ClosedAt       *time.Time       `json:"closed_at,omitempty"`
}

// NewAuctionFromListing schedules an auction for a catalog listing.
func NewAuctionFromListing(l Listing) Auction {
	return Auction{
		AuctionID:   l.AuctionID,
		SellerID:    l.SellerID,
		StartingBid: l.StartingBid,
		Reserve:     l.Reserve,
		StartAt:     l.StartAt,
		EndAt:       l.EndAt,
		Phase:       PhaseScheduled,
		EndsAt:      l.EndAt,
	}
}

// Bid is an immutable accepted ledger entry.
type Bid struct {
	BidID          string          `json:"bid_id"`
	AuctionID      string          `json:"auction_id"`
	BidderID       string          `json:"bidder_id"`
	ProxyMax       decimal.Decimal `json:"proxy_max"`
	Seq            int64           `json:"seq"`
	SubmittedAt    time.Time       `json:"submitted_at"`
	IdempotencyKey string          `json:"idempotency_key"`
}

// BidRequest is a submission entering the engine.
type BidRequest struct {
	AuctionID      string
	BidderID       string
	ProxyMax       decimal.Decimal
	IdempotencyKey string
}

// PublicStanding is the only view of an auction's price that leaves the engine.
// It deliberately has no field for the leading or second-highest maximum.
type PublicStanding struct {
	AuctionID           string          `json:"auction_id"`
	DisplayedCurrentBid decimal.Decimal `json:"displayed_current_bid"`
	BidCount            int             `json:"bid_count"`
	Phase               Phase           `json:"phase"`
	EndsAt              time.Time       `json:"ends_at"`
}

// BidStatus is the top-level result of a submission.
type BidStatus string

const (
	BidAccepted BidStatus = "accepted"
	BidRejected BidStatus = "rejected"
)

// BidResult is returned for every submission, including idempotent replays.
type BidResult struct {
	Status   BidStatus      `json:"status"`
	Reason   string         `json:"reason,omitempty"`
	BidID    string         `json:"bid_id,omitempty"`
	BidderID string         `json:"bidder_id"`
	Leading  bool           `json:"leading"`
	Standing PublicStanding `json:"standing"`
}

// Accepted reports whether the submission was appended to the ledger.
func (r BidResult) Accepted() bool {
	return r.Status == BidAccepted
}

// EventKind names a notification emitted through the outbox.
type EventKind string

const (
	EventStandingChanged        EventKind = "standing_changed"
	EventOutbid                 EventKind = "outbid"
	EventBidExtended            EventKind = "bid_extended"
	EventExtendedBiddingStarted EventKind = "extended_bidding_started"
	EventEndingSoon             EventKind = "ending_soon"
	EventWon                    EventKind = "won"
	EventLost                   EventKind = "lost"
	EventReserveNotMet          EventKind = "reserve_not_met"
	EventAuctionClosed          EventKind = "auction_closed"
)

// Public reports whether the event is broadcast rather than addressed to one user.
func (k EventKind) Public() bool {
	switch k {
	case EventStandingChanged, EventBidExtended, EventExtendedBiddingStarted, EventAuctionClosed:
		return true
	}
	return false
}

// Event is an outbox row. Amount is always a publicly displayable figure.
type Event struct {
	EventID     string          `json:"event_id"`
	AuctionID   string          `json:"auction_id"`
	Kind        EventKind       `json:"kind"`
	RecipientID string          `json:"recipient_id,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	BidCount    int             `json:"bid_count"`
	Phase       Phase           `json:"phase"`
	EndsAt      time.Time       `json:"ends_at"`
	CreatedAt   time.Time       `json:"created_at"`
}

// LedgerSnapshot is the frozen state of a closed auction handed to archivers.
type LedgerSnapshot struct {
	Auction Auction `json:"auction"`
	Bids    []Bid   `json:"bids"`
}
