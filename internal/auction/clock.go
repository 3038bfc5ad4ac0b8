package auction

import (
	"fmt"
	"time"

	"proxy-auction/internal/biddingerrors"
	model "proxy-auction/internal/models"
)

// DefaultQuietPeriod is how long extended bidding waits for a new bid.
const DefaultQuietPeriod = 15 * time.Minute

// Clock is the phase state machine of one auction:
//
//	Scheduled -> OpenBidding -> ExtendedBidding -> Closed
//	                        \-------------------> Closed
//
// It is a plain value so the owner can stage a transition on a copy and only
// keep it once the new state has been persisted.
type Clock struct {
	phase      model.Phase
	startAt    time.Time
	endAt      time.Time
	endsAt     time.Time
	extensions int
	quiet      time.Duration
}

// NewClock restores the clock of a persisted auction.
func NewClock(a model.Auction, quiet time.Duration) Clock {
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}
	endsAt := a.EndsAt
	if endsAt.IsZero() {
		endsAt = a.EndAt
	}
	phase := a.Phase
	if phase == "" {
		phase = model.PhaseScheduled
	}
	return Clock{
		phase:      phase,
		startAt:    a.StartAt,
		endAt:      a.EndAt,
		endsAt:     endsAt,
		extensions: a.ExtensionCount,
		quiet:      quiet,
	}
}

func (c Clock) Phase() model.Phase { return c.phase }

func (c Clock) EndsAt() time.Time { return c.endsAt }

func (c Clock) Extensions() int { return c.extensions }

// NextDeadline is the instant the current phase is scheduled to end.
// Closed auctions have none.
func (c Clock) NextDeadline() (time.Time, bool) {
	switch c.phase {
	case model.PhaseScheduled:
		return c.startAt, true
	case model.PhaseOpenBidding:
		return c.endAt, true
	case model.PhaseExtendedBidding:
		return c.endsAt, true
	default:
		return time.Time{}, false
	}
}

// Due reports whether a timed transition should fire at now.
func (c Clock) Due(now time.Time) bool {
	deadline, ok := c.NextDeadline()
	return ok && !now.Before(deadline)
}

// Open moves a scheduled auction into open bidding.
func (c *Clock) Open(now time.Time) error {
	if c.phase != model.PhaseScheduled || now.Before(c.startAt) {
		return c.illegal(model.PhaseOpenBidding)
	}
	c.phase = model.PhaseOpenBidding
	c.endsAt = c.endAt
	return nil
}

// EndOpenBidding applies the end-of-open rule: two or more distinct bidders
// start a quiet period measured from the scheduled end, anything less closes.
func (c *Clock) EndOpenBidding(now time.Time, distinctBidders int) (model.Phase, error) {
	if c.phase != model.PhaseOpenBidding || now.Before(c.endAt) {
		return c.phase, c.illegal(model.PhaseExtendedBidding)
	}
	if distinctBidders >= 2 {
		c.phase = model.PhaseExtendedBidding
		c.endsAt = c.endAt.Add(c.quiet)
		return c.phase, nil
	}
	c.phase = model.PhaseClosed
	return c.phase, nil
}

// Extend re-arms the quiet period after a bid accepted at bidAt. Outside
// extended bidding it does nothing and returns false.
func (c *Clock) Extend(bidAt time.Time) bool {
	if c.phase != model.PhaseExtendedBidding {
		return false
	}
	next := bidAt.Add(c.quiet)
	if next.After(c.endsAt) {
		c.endsAt = next
	}
	c.extensions++
	return true
}

// Expire closes extended bidding once the quiet period has elapsed.
func (c *Clock) Expire(now time.Time) error {
	if c.phase != model.PhaseExtendedBidding || now.Before(c.endsAt) {
		return c.illegal(model.PhaseClosed)
	}
	c.phase = model.PhaseClosed
	return nil
}

// ApplyTo copies the clock state into the persisted auction row.
func (c Clock) ApplyTo(a *model.Auction) {
	a.Phase = c.phase
	a.EndsAt = c.endsAt
	a.ExtensionCount = c.extensions
}

func (c Clock) illegal(to model.Phase) error {
	return fmt.Errorf("auction: %w - %s -> %s", biddingerrors.ErrIllegalTransition, c.phase, to)
}
