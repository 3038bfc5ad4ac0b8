package bidding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"proxy-auction/internal/auction"
	"proxy-auction/internal/biddingerrors"
	"proxy-auction/internal/models"
	"proxy-auction/internal/repository"
	"proxy-auction/utils"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultRetireAfter is how long a closed auction's actor stays resident.
	DefaultRetireAfter = 10 * time.Minute

	archiveTimeout = 30 * time.Second
	// routing retries when an actor retires between lookup and send
	maxRouteAttempts = 3
)

// Settings are the per-deployment auction rules.
type Settings struct {
	QuietPeriod        time.Duration
	RetireAfter        time.Duration
	RequirePaymentHold bool
	Increments         auction.IncrementTable
}

// DefaultSettings returns the standard rules: a 15 minute quiet period,
// payment holds required, and the default increment table.
func DefaultSettings() Settings {
	return Settings{
		QuietPeriod:        auction.DefaultQuietPeriod,
		RetireAfter:        DefaultRetireAfter,
		RequirePaymentHold: true,
		Increments:         auction.DefaultIncrementTable(),
	}
}

// RegistryOption configures optional Registry collaborators.
type RegistryOption func(*Registry)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(clk clockwork.Clock) RegistryOption {
	return func(r *Registry) { r.clock = clk }
}

// WithNotifier wakes n whenever an actor commits outbox events.
func WithNotifier(n Notifier) RegistryOption {
	return func(r *Registry) { r.notifier = n }
}

// WithArchiver hands every retired auction's frozen ledger to a.
func WithArchiver(a Archiver) RegistryOption {
	return func(r *Registry) { r.archiver = a }
}

// Registry routes work to the one live actor of each auction. Actors are
// hydrated from the store on first use and retired some time after they close.
// The map lock is only held for lookups, never while an actor is working.
type Registry struct {
	store    repository.AuctionStore
	catalog  CatalogStore
	settings Settings
	clock    clockwork.Clock
	notifier Notifier
	archiver Archiver

	mu       sync.RWMutex
	actors   map[string]*actor
	retiring map[*actor]clockwork.Timer
	closed   bool
	group    singleflight.Group
	pending  sync.WaitGroup // retire timers and archive uploads
}

// NewRegistry creates a Registry over store. catalog supplies listings for
// auctions that have no row yet.
func NewRegistry(store repository.AuctionStore, catalog CatalogStore, settings Settings, opts ...RegistryOption) *Registry {
	if settings.QuietPeriod <= 0 {
		settings.QuietPeriod = auction.DefaultQuietPeriod
	}
	if settings.RetireAfter <= 0 {
		settings.RetireAfter = DefaultRetireAfter
	}
	if len(settings.Increments.Steps()) == 0 {
		settings.Increments = auction.DefaultIncrementTable()
	}
	r := &Registry{
		store:    store,
		catalog:  catalog,
		settings: settings,
		clock:    clockwork.NewRealClock(),
		actors:   make(map[string]*actor),
		retiring: make(map[*actor]clockwork.Timer),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Settings returns the effective rules.
func (r *Registry) Settings() Settings {
	return r.settings
}

// Live reports how many actors are resident.
func (r *Registry) Live() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.actors)
}

// withActor runs fn against the live actor for auctionID, hydrating it if
// needed. If the actor retires underneath fn, the call is routed again.
func (r *Registry) withActor(ctx context.Context, auctionID string, fn func(a *actor) error) error {
	var err error
	for attempt := 0; attempt < maxRouteAttempts; attempt++ {
		var a *actor
		a, err = r.actor(ctx, auctionID)
		if err != nil {
			return err
		}
		err = fn(a)
		if !errors.Is(err, biddingerrors.ErrActorRetired) {
			return err
		}
	}
	return err
}

func (r *Registry) actor(ctx context.Context, auctionID string) (*actor, error) {
	r.mu.RLock()
	a, ok := r.actors[auctionID]
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("registry: %w", biddingerrors.ErrActorRetired)
	}
	if ok && !a.retired() {
		return a, nil
	}

	v, err, _ := r.group.Do(auctionID, func() (any, error) {
		return r.hydrate(ctx, auctionID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*actor), nil
}

// hydrate builds the actor from the persisted row and ledger, creating the
// row from the catalog on first reference, and catches its clock up to now.
func (r *Registry) hydrate(ctx context.Context, auctionID string) (*actor, error) {
	r.mu.RLock()
	if a, ok := r.actors[auctionID]; ok && !a.retired() {
		r.mu.RUnlock()
		return a, nil
	}
	r.mu.RUnlock()

	row, err := r.loadOrCreate(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	bids, err := r.store.ListBids(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("registry: load ledger %s: %w", auctionID, err)
	}

	a := newActor(row, r.store, r.clock, r.settings, r.notifier, r.scheduleRetire)
	if err := a.replay(bids); err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, fmt.Errorf("registry: %w", biddingerrors.ErrActorRetired)
	}
	r.actors[auctionID] = a
	r.mu.Unlock()

	a.start()
	if err := a.do(ctx, func() { a.advance(ctx) }); err != nil {
		return nil, err
	}
	if row.Phase == models.PhaseClosed {
		r.scheduleRetire(a)
	}

	utils.Info("auction actor hydrated", map[string]any{
		"auction_id": auctionID,
		"phase":      row.Phase,
		"bids":       len(bids),
	})
	return a, nil
}

func (r *Registry) loadOrCreate(ctx context.Context, auctionID string) (models.Auction, error) {
	row, err := r.store.GetAuction(ctx, auctionID)
	if err == nil {
		return row, nil
	}
	if !errors.Is(err, biddingerrors.ErrAuctionNotFound) {
		return models.Auction{}, fmt.Errorf("registry: load auction %s: %w", auctionID, err)
	}

	listing, err := r.catalog.GetListing(ctx, auctionID)
	if err != nil {
		return models.Auction{}, fmt.Errorf("registry: listing %s: %w", auctionID, err)
	}
	row = models.NewAuctionFromListing(listing)
	if err := r.store.CreateAuction(ctx, row); err != nil {
		if errors.Is(err, biddingerrors.ErrAuctionExists) {
			return r.store.GetAuction(ctx, auctionID)
		}
		return models.Auction{}, fmt.Errorf("registry: create auction %s: %w", auctionID, err)
	}
	return row, nil
}

// scheduleRetire runs on the actor goroutine when the auction closes, so it
// must not wait on the actor.
func (r *Registry) scheduleRetire(a *actor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if _, ok := r.retiring[a]; ok {
		return
	}
	r.pending.Add(1)
	r.retiring[a] = r.clock.AfterFunc(r.settings.RetireAfter, func() {
		defer r.pending.Done()
		r.mu.Lock()
		delete(r.retiring, a)
		r.mu.Unlock()
		r.retire(a)
	})
}

// retire stops the actor before removing it, so no second actor for the
// same auction can be created while this one still runs.
func (r *Registry) retire(a *actor) {
	a.stop()

	r.mu.Lock()
	if cur, ok := r.actors[a.id]; ok && cur == a {
		delete(r.actors, a.id)
	}
	closed := r.closed
	r.mu.Unlock()

	utils.Info("auction actor retired", map[string]any{"auction_id": a.id})

	if r.archiver == nil || closed {
		return
	}
	snapshot := a.snapshot()
	r.pending.Add(1)
	go func() {
		defer r.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		if err := r.archiver.Archive(ctx, snapshot); err != nil {
			utils.Error("archive ledger failed", map[string]any{"auction_id": a.id, "error": err.Error()})
		}
	}()
}

// Close stops every live actor and cancels pending retirements. Retirements
// and archive uploads already running are awaited until ctx expires.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	actors := make([]*actor, 0, len(r.actors))
	for _, a := range r.actors {
		actors = append(actors, a)
	}
	timers := r.retiring
	r.actors = make(map[string]*actor)
	r.retiring = make(map[*actor]clockwork.Timer)
	r.mu.Unlock()

	for _, t := range timers {
		if t.Stop() {
			r.pending.Done()
		}
	}
	for _, a := range actors {
		a.stop()
	}

	waited := make(chan struct{})
	go func() {
		r.pending.Wait()
		close(waited)
	}()
	select {
	case <-waited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
