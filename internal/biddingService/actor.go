package bidding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"proxy-auction/internal/auction"
	"proxy-auction/internal/biddingerrors"
	"proxy-auction/internal/models"
	"proxy-auction/internal/repository"
	"proxy-auction/utils"

	"github.com/jonboulle/clockwork"
)

// transitionRetry is how long a failed timed transition waits before retrying.
const transitionRetry = time.Second

// actor is the single writer of one auction. Every read and write of its
// ledger, clock and standing runs on the run goroutine, one mailbox message
// at a time. Timer expiry is delivered through the same mailbox.
type actor struct {
	id       string
	store    repository.AuctionStore
	clock    clockwork.Clock
	settings Settings
	notifier Notifier
	onClosed func(*actor)

	// owned by the run goroutine
	auction  models.Auction
	ledger   *auction.Ledger
	phase    auction.Clock
	standing auction.Standing
	outcomes map[string]models.BidResult // bidderID|idempotencyKey
	seq      int64
	lastAt   time.Time
	timer    clockwork.Timer

	mailbox chan func()
	quit    chan struct{}
	done    chan struct{}
}

func newActor(row models.Auction, store repository.AuctionStore, clk clockwork.Clock, settings Settings, notifier Notifier, onClosed func(*actor)) *actor {
	return &actor{
		id:       row.AuctionID,
		store:    store,
		clock:    clk,
		settings: settings,
		notifier: notifier,
		onClosed: onClosed,
		auction:  row,
		ledger:   auction.NewLedger(row.AuctionID),
		phase:    auction.NewClock(row, settings.QuietPeriod),
		standing: auction.Resolve(nil, row.StartingBid, settings.Increments),
		outcomes: make(map[string]models.BidResult),
		mailbox:  make(chan func()),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func outcomeKey(bidderID, idempotencyKey string) string {
	return bidderID + "|" + idempotencyKey
}

// replay rebuilds in-memory state from the persisted ledger. It runs before
// the actor starts, so it needs no serialization.
//
// Stored outcomes carry the phase and deadline each bid saw when it was
// accepted: open bidding before the scheduled end, extended bidding with a
// quiet period re-armed from the bid after it.
func (a *actor) replay(bids []models.Bid) error {
	quiet := a.settings.QuietPeriod
	if quiet <= 0 {
		quiet = auction.DefaultQuietPeriod
	}
	endsAt := a.auction.EndAt

	for _, b := range bids {
		if err := a.ledger.Append(b); err != nil {
			return fmt.Errorf("actor %s: replay bid %s: %w", a.id, b.BidID, err)
		}
		a.standing = auction.Resolve(a.ledger.Maxima(), a.auction.StartingBid, a.settings.Increments)
		a.seq = b.Seq
		a.lastAt = b.SubmittedAt

		phase := models.PhaseOpenBidding
		if !b.SubmittedAt.Before(a.auction.EndAt) {
			phase = models.PhaseExtendedBidding
			if next := b.SubmittedAt.Add(quiet); next.After(endsAt) {
				endsAt = next
			}
		}
		res := a.accepted(b)
		res.Standing.Phase = phase
		res.Standing.EndsAt = endsAt
		a.outcomes[outcomeKey(b.BidderID, b.IdempotencyKey)] = res
	}
	if a.phase.Phase() == models.PhaseClosed {
		a.ledger.Freeze()
	}
	return nil
}

func (a *actor) start() {
	go a.run()
}

func (a *actor) run() {
	defer close(a.done)
	for {
		select {
		case fn := <-a.mailbox:
			fn()
		case <-a.quit:
			if a.timer != nil {
				a.timer.Stop()
			}
			return
		}
	}
}

// stop ends the run loop and waits for it. Safe to call more than once.
func (a *actor) stop() {
	select {
	case <-a.quit:
	default:
		close(a.quit)
	}
	<-a.done
}

func (a *actor) retired() bool {
	select {
	case <-a.done:
		return true
	default:
		return false
	}
}

// do runs fn on the actor goroutine and waits for it to finish. Once fn is
// accepted into the mailbox it always runs to completion.
func (a *actor) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	msg := func() {
		defer close(finished)
		fn()
	}
	select {
	case a.mailbox <- msg:
	case <-a.done:
		return fmt.Errorf("actor %s: %w", a.id, biddingerrors.ErrActorRetired)
	case <-ctx.Done():
		return ctx.Err()
	}
	<-finished
	return nil
}

// --- run goroutine only below this line ---

func (a *actor) public() models.PublicStanding {
	return models.PublicStanding{
		AuctionID:           a.id,
		DisplayedCurrentBid: a.standing.DisplayedCurrentBid,
		BidCount:            a.ledger.Len(),
		Phase:               a.phase.Phase(),
		EndsAt:              a.phase.EndsAt(),
	}
}

func (a *actor) accepted(b models.Bid) models.BidResult {
	return models.BidResult{
		Status:   models.BidAccepted,
		BidID:    b.BidID,
		BidderID: b.BidderID,
		Leading:  a.standing.LeaderID == b.BidderID,
		Standing: a.public(),
	}
}

func (a *actor) rejected(bidderID string, reason biddingerrors.RejectReason) models.BidResult {
	return models.BidResult{
		Status:   models.BidRejected,
		Reason:   string(reason),
		BidderID: bidderID,
		Leading:  a.standing.LeaderID == bidderID,
		Standing: a.public(),
	}
}

// validate applies the serialized submission checks in order: phase,
// idempotent replay, self-bid, minimum amount. A nil result means the bid
// may proceed.
func (a *actor) validate(req models.BidRequest) *models.BidResult {
	if !a.phase.Phase().Biddable() {
		res := a.rejected(req.BidderID, biddingerrors.ReasonAuctionNotBiddable)
		return &res
	}

	key := outcomeKey(req.BidderID, req.IdempotencyKey)
	if prev, ok := a.outcomes[key]; ok {
		return &prev
	}

	if req.BidderID == a.auction.SellerID {
		res := a.record(key, a.rejected(req.BidderID, biddingerrors.ReasonSelfBidForbidden))
		return &res
	}

	ownMax, hasOwn := a.ledger.MaxOf(req.BidderID)
	bound, exclusive := auction.RequiredMinimum(a.standing, a.auction.StartingBid, a.settings.Increments, req.BidderID, ownMax, hasOwn)
	if !auction.Meets(req.ProxyMax, bound, exclusive) {
		res := a.record(key, a.rejected(req.BidderID, biddingerrors.ReasonBidTooLow))
		return &res
	}
	return nil
}

func (a *actor) record(key string, res models.BidResult) models.BidResult {
	a.outcomes[key] = res
	return res
}

// precheck runs the serialized checks ahead of the collaborator calls.
// final is true when res is the answer to return.
func (a *actor) precheck(ctx context.Context, req models.BidRequest) (res models.BidResult, final bool) {
	a.advance(ctx)
	if r := a.validate(req); r != nil {
		return *r, true
	}
	return models.BidResult{}, false
}

// commit re-validates against the current standing and appends the bid.
// A non-empty denied reason records that rejection instead. appended reports
// whether this call wrote to the ledger.
func (a *actor) commit(ctx context.Context, req models.BidRequest, denied biddingerrors.RejectReason) (res models.BidResult, appended bool, err error) {
	a.advance(ctx)
	if r := a.validate(req); r != nil {
		return *r, false, nil
	}
	key := outcomeKey(req.BidderID, req.IdempotencyKey)
	if denied != "" {
		return a.record(key, a.rejected(req.BidderID, denied)), false, nil
	}

	at := a.stamp()
	bid := models.Bid{
		BidID:          utils.GenerateID(),
		AuctionID:      a.id,
		BidderID:       req.BidderID,
		ProxyMax:       req.ProxyMax,
		Seq:            a.seq + 1,
		SubmittedAt:    at,
		IdempotencyKey: req.IdempotencyKey,
	}
	if err := a.ledger.Validate(bid); err != nil {
		return models.BidResult{}, false, err
	}

	// stage everything on copies, persist, then apply
	standing := auction.Resolve(a.ledger.MaximaWith(bid), a.auction.StartingBid, a.settings.Increments)
	clock := a.phase
	extended := clock.Extend(at)
	row := a.auction
	clock.ApplyTo(&row)

	events := a.bidEvents(bid, standing, clock, extended)
	if err := a.store.AppendBid(ctx, bid, row, events); err != nil {
		return models.BidResult{}, false, fmt.Errorf("actor %s: persist bid: %w", a.id, err)
	}

	if err := a.ledger.Append(bid); err != nil {
		// Validate passed on the same state, so this is a programming error
		utils.Error("ledger rejected a persisted bid", map[string]any{"auction_id": a.id, "bid_id": bid.BidID, "error": err.Error()})
		return models.BidResult{}, false, err
	}
	prevLeader := a.standing.LeaderID
	a.standing = standing
	a.phase = clock
	a.auction = row
	a.seq = bid.Seq
	a.lastAt = at
	if extended {
		a.arm()
	}
	a.nudge()

	utils.Debug("bid appended", map[string]any{
		"auction_id":     a.id,
		"bid_id":         bid.BidID,
		"bidder_id":      bid.BidderID,
		"seq":            bid.Seq,
		"leader_changed": prevLeader != standing.LeaderID,
		"displayed":      standing.DisplayedCurrentBid.String(),
		"ends_at":        clock.EndsAt(),
	})
	return a.record(key, a.accepted(bid)), true, nil
}

// stamp assigns a server timestamp at microsecond resolution that is strictly
// after the previous bid.
func (a *actor) stamp() time.Time {
	now := a.clock.Now().UTC().Truncate(time.Microsecond)
	if !now.After(a.lastAt) {
		now = a.lastAt.Add(time.Microsecond)
	}
	return now
}

// advance fires every timed transition that is due, persisting each before
// applying it, then re-arms the timer for the next deadline.
func (a *actor) advance(ctx context.Context) {
	now := a.clock.Now()
	for a.phase.Due(now) {
		if err := a.transition(ctx, now); err != nil {
			utils.Error("auction transition failed", map[string]any{
				"auction_id": a.id,
				"phase":      a.phase.Phase(),
				"error":      err.Error(),
			})
			a.armAfter(transitionRetry)
			return
		}
	}
	a.arm()
}

func (a *actor) transition(ctx context.Context, now time.Time) error {
	clock := a.phase
	row := a.auction
	var events []models.Event

	switch clock.Phase() {
	case models.PhaseScheduled:
		if err := clock.Open(now); err != nil {
			return err
		}
	case models.PhaseOpenBidding:
		next, err := clock.EndOpenBidding(now, a.ledger.DistinctBidders())
		if err != nil {
			return err
		}
		if next == models.PhaseExtendedBidding {
			events = a.extendedEvents(clock)
		}
	case models.PhaseExtendedBidding:
		if err := clock.Expire(now); err != nil {
			return err
		}
	default:
		return fmt.Errorf("actor %s: %w - no transition from %s", a.id, biddingerrors.ErrIllegalTransition, clock.Phase())
	}

	closing := clock.Phase() == models.PhaseClosed
	if closing {
		// the close instant is the deadline that elapsed, not when we noticed
		closedAt := a.phase.EndsAt()
		if a.phase.Phase() == models.PhaseOpenBidding {
			closedAt = a.auction.EndAt
		}
		row.Outcome = auction.DecideOutcome(a.standing, a.auction.Reserve)
		row.ClosedAt = &closedAt
		events = a.closeEvents(clock, row.Outcome)
	}
	clock.ApplyTo(&row)

	if err := a.store.UpdateAuction(ctx, row, events); err != nil {
		return fmt.Errorf("actor %s: persist %s: %w", a.id, clock.Phase(), err)
	}

	from := a.phase.Phase()
	a.phase = clock
	a.auction = row
	utils.Info("auction phase changed", map[string]any{
		"auction_id": a.id,
		"from":       from,
		"to":         clock.Phase(),
		"ends_at":    clock.EndsAt(),
		"extensions": clock.Extensions(),
	})

	if len(events) > 0 {
		a.nudge()
	}
	if closing {
		a.ledger.Freeze()
		utils.Info("auction closed", map[string]any{
			"auction_id": a.id,
			"outcome":    row.Outcome.Kind,
			"winner_id":  row.Outcome.WinnerID,
			"price":      row.Outcome.Price.String(),
			"bids":       a.ledger.Len(),
		})
		if a.onClosed != nil {
			a.onClosed(a)
		}
	}
	return nil
}

// arm schedules a tick at the next deadline, replacing any pending one.
func (a *actor) arm() {
	deadline, ok := a.phase.NextDeadline()
	if !ok {
		if a.timer != nil {
			a.timer.Stop()
			a.timer = nil
		}
		return
	}
	a.armAfter(deadline.Sub(a.clock.Now()))
}

func (a *actor) armAfter(d time.Duration) {
	if a.timer != nil {
		a.timer.Stop()
	}
	if d < 0 {
		d = 0
	}
	a.timer = a.clock.AfterFunc(d, a.tick)
}

// tick runs on the timer goroutine. A tick that is no longer due is a no-op
// once it reaches the mailbox.
func (a *actor) tick() {
	if err := a.do(context.Background(), func() { a.advance(context.Background()) }); err != nil && !errors.Is(err, biddingerrors.ErrActorRetired) {
		utils.Warn("auction tick dropped", map[string]any{"auction_id": a.id, "error": err.Error()})
	}
}

func (a *actor) nudge() {
	if a.notifier != nil {
		a.notifier.Nudge()
	}
}

func (a *actor) event(kind models.EventKind, recipient string, clock auction.Clock, standing auction.Standing, bidCount int) models.Event {
	return models.Event{
		EventID:     utils.GenerateID(),
		AuctionID:   a.id,
		Kind:        kind,
		RecipientID: recipient,
		Amount:      standing.DisplayedCurrentBid,
		BidCount:    bidCount,
		Phase:       clock.Phase(),
		EndsAt:      clock.EndsAt(),
		CreatedAt:   a.clock.Now().UTC(),
	}
}

func (a *actor) bidEvents(bid models.Bid, standing auction.Standing, clock auction.Clock, extended bool) []models.Event {
	count := a.ledger.Len() + 1
	events := []models.Event{a.event(models.EventStandingChanged, "", clock, standing, count)}
	if prev := a.standing.LeaderID; prev != "" && prev != standing.LeaderID {
		events = append(events, a.event(models.EventOutbid, prev, clock, standing, count))
	}
	if extended {
		events = append(events, a.event(models.EventBidExtended, "", clock, standing, count))
	}
	return events
}

func (a *actor) extendedEvents(clock auction.Clock) []models.Event {
	count := a.ledger.Len()
	events := []models.Event{a.event(models.EventExtendedBiddingStarted, "", clock, a.standing, count)}
	for _, bidder := range a.ledger.Bidders() {
		events = append(events, a.event(models.EventEndingSoon, bidder, clock, a.standing, count))
	}
	return events
}

func (a *actor) closeEvents(clock auction.Clock, outcome models.Outcome) []models.Event {
	count := a.ledger.Len()
	final := a.standing
	if outcome.Kind == models.OutcomeSold {
		final.DisplayedCurrentBid = outcome.Price
	}

	var events []models.Event
	for _, bidder := range a.ledger.Bidders() {
		kind := models.EventLost
		switch {
		case outcome.Kind == models.OutcomeSold && bidder == outcome.WinnerID:
			kind = models.EventWon
		case outcome.Kind == models.OutcomeUnsold && bidder == a.standing.LeaderID:
			kind = models.EventReserveNotMet
		}
		events = append(events, a.event(kind, bidder, clock, final, count))
	}
	return append(events, a.event(models.EventAuctionClosed, a.auction.SellerID, clock, final, count))
}

// snapshot is only safe once the actor has stopped.
func (a *actor) snapshot() models.LedgerSnapshot {
	return models.LedgerSnapshot{
		Auction: a.auction,
		Bids:    a.ledger.Bids(),
	}
}
