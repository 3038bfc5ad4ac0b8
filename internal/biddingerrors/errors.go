package biddingerrors

import "errors"

// Repository-level errors
var (
	ErrAuctionNotFound  = errors.New("auction not found")
	ErrAuctionExists    = errors.New("auction already exists")
	ErrDuplicateBid     = errors.New("bid already recorded")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// Ledger and clock errors
var (
	ErrLedgerFrozen      = errors.New("ledger is frozen")
	ErrNonMonotonicBid   = errors.New("bid does not raise bidder maximum")
	ErrIllegalTransition = errors.New("illegal phase transition")
)

// business logic errors
var (
	ErrInvalidBid            = errors.New("invalid bid")
	ErrInvalidIncrementTable = errors.New("invalid increment table")
	ErrActorRetired          = errors.New("auction actor retired")
)

// RejectReason is the typed reason carried by a rejected submission.
// Rejections are results, not errors.
type RejectReason string

const (
	ReasonAuctionNotBiddable RejectReason = "auction_not_biddable"
	ReasonSelfBidForbidden   RejectReason = "self_bid_forbidden"
	ReasonBidTooLow          RejectReason = "bid_too_low"
	ReasonIdentityIneligible RejectReason = "identity_ineligible"
	ReasonPaymentHoldFailed  RejectReason = "payment_hold_failed"
)

// Retryable reports whether a client may usefully resubmit after re-quoting.
func (r RejectReason) Retryable() bool {
	return r == ReasonBidTooLow
}
