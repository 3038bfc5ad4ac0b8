package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"proxy-auction/internal/biddingerrors"
	model "proxy-auction/internal/models"
	"proxy-auction/internal/repository"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var _ repository.AuctionStore = (*AuctionStore)(nil)

const uniqueViolation = "23505"

// AuctionStore implements repository.AuctionStore using PostgreSQL.
// Amounts travel as text and are cast to NUMERIC in SQL.
type AuctionStore struct {
	client *Client
	pool   *pgxpool.Pool
}

// NewAuctionStore creates a store over a migrated client. The store owns the
// client and closes it on Close.
func NewAuctionStore(client *Client) *AuctionStore {
	return &AuctionStore{client: client, pool: client.Pool()}
}

// Open connects, migrates and returns the store.
func Open(ctx context.Context, cfg ClientConfig) (*AuctionStore, error) {
	client, err := New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := client.RunMigrations(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return NewAuctionStore(client), nil
}

// Close shuts down the pool.
func (s *AuctionStore) Close() error {
	s.client.Close()
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// unavailable marks connection-level failures with ErrStoreUnavailable.
func unavailable(err error) error {
	if err == nil {
		return nil
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || pgconn.SafeToRetry(err) || strings.Contains(err.Error(), "closed pool") {
		return fmt.Errorf("%w: %w", biddingerrors.ErrStoreUnavailable, err)
	}
	return err
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func decimalText(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

// GetAuction returns the auction row.
func (s *AuctionStore) GetAuction(ctx context.Context, auctionID string) (model.Auction, error) {
	var (
		a               model.Auction
		starting, price string
		reserve         *string
		phase, kind     string
		closedAt        *time.Time
	)
	err := s.pool.QueryRow(ctx, `
		SELECT auction_id, seller_id, starting_bid::text, reserve::text, start_at, end_at, phase,
			ends_at, extension_count, outcome_kind, winner_id, sale_price::text, closed_at
		FROM auctions WHERE auction_id = $1`,
		auctionID,
	).Scan(&a.AuctionID, &a.SellerID, &starting, &reserve, &a.StartAt, &a.EndAt, &phase,
		&a.EndsAt, &a.ExtensionCount, &kind, &a.Outcome.WinnerID, &price, &closedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Auction{}, fmt.Errorf("postgres: get auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
		}
		return model.Auction{}, fmt.Errorf("postgres: get auction %s: %w", auctionID, unavailable(err))
	}

	if a.StartingBid, err = decimal.NewFromString(starting); err != nil {
		return model.Auction{}, fmt.Errorf("postgres: auction %s starting bid: %w", auctionID, err)
	}
	if a.Outcome.Price, err = decimal.NewFromString(price); err != nil {
		return model.Auction{}, fmt.Errorf("postgres: auction %s sale price: %w", auctionID, err)
	}
	if reserve != nil {
		r, err := decimal.NewFromString(*reserve)
		if err != nil {
			return model.Auction{}, fmt.Errorf("postgres: auction %s reserve: %w", auctionID, err)
		}
		a.Reserve = &r
	}
	a.StartAt = a.StartAt.UTC()
	a.EndAt = a.EndAt.UTC()
	a.EndsAt = a.EndsAt.UTC()
	a.Phase = model.Phase(phase)
	a.Outcome.Kind = model.OutcomeKind(kind)
	a.ClosedAt = utcPtr(closedAt)
	return a, nil
}

// CreateAuction inserts a new auction row.
func (s *AuctionStore) CreateAuction(ctx context.Context, a model.Auction) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO auctions (auction_id, seller_id, starting_bid, reserve, start_at, end_at, phase,
			ends_at, extension_count, outcome_kind, winner_id, sale_price, closed_at)
		VALUES ($1, $2, $3::numeric, $4::numeric, $5, $6, $7, $8, $9, $10, $11, $12::numeric, $13)`,
		a.AuctionID, a.SellerID, a.StartingBid.String(), decimalText(a.Reserve), a.StartAt, a.EndAt,
		string(a.Phase), a.EndsAt, a.ExtensionCount, string(a.Outcome.Kind), a.Outcome.WinnerID,
		a.Outcome.Price.String(), a.ClosedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("postgres: create auction %s: %w", a.AuctionID, biddingerrors.ErrAuctionExists)
		}
		return fmt.Errorf("postgres: create auction %s: %w", a.AuctionID, unavailable(err))
	}
	return nil
}

// ListBids returns the ledger in seq order.
func (s *AuctionStore) ListBids(ctx context.Context, auctionID string) ([]model.Bid, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT bid_id, auction_id, bidder_id, proxy_max::text, seq, submitted_at, idempotency_key
		FROM bids WHERE auction_id = $1 ORDER BY seq`,
		auctionID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bids %s: %w", auctionID, unavailable(err))
	}
	defer rows.Close()

	var bids []model.Bid
	for rows.Next() {
		var b model.Bid
		var proxyMax string
		if err := rows.Scan(&b.BidID, &b.AuctionID, &b.BidderID, &proxyMax, &b.Seq, &b.SubmittedAt, &b.IdempotencyKey); err != nil {
			return nil, fmt.Errorf("postgres: scan bid: %w", err)
		}
		if b.ProxyMax, err = decimal.NewFromString(proxyMax); err != nil {
			return nil, fmt.Errorf("postgres: bid %s proxy max: %w", b.BidID, err)
		}
		b.SubmittedAt = b.SubmittedAt.UTC()
		bids = append(bids, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list bids %s: %w", auctionID, err)
	}
	return bids, nil
}

// AppendBid writes the bid, the updated auction row and the outbox events in one transaction.
func (s *AuctionStore) AppendBid(ctx context.Context, bid model.Bid, a model.Auction, events []model.Event) error {
	if bid.AuctionID != a.AuctionID {
		return fmt.Errorf("postgres: append bid %s: %w - auction mismatch", bid.BidID, biddingerrors.ErrInvalidBid)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", unavailable(err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := updateAuction(ctx, tx, a); err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO bids (bid_id, auction_id, bidder_id, proxy_max, seq, submitted_at, idempotency_key)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7)`,
		bid.BidID, bid.AuctionID, bid.BidderID, bid.ProxyMax.String(), bid.Seq, bid.SubmittedAt, bid.IdempotencyKey,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("postgres: append bid %s: %w", bid.BidID, biddingerrors.ErrDuplicateBid)
		}
		return fmt.Errorf("postgres: insert bid %s: %w", bid.BidID, err)
	}
	if err := insertEvents(ctx, tx, events); err != nil {
		return err
	}
	return unavailable(tx.Commit(ctx))
}

// UpdateAuction replaces the auction row and enqueues its events in one transaction.
func (s *AuctionStore) UpdateAuction(ctx context.Context, a model.Auction, events []model.Event) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", unavailable(err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := updateAuction(ctx, tx, a); err != nil {
		return err
	}
	if err := insertEvents(ctx, tx, events); err != nil {
		return err
	}
	return unavailable(tx.Commit(ctx))
}

// PendingEvents returns up to limit undelivered events in insertion order.
func (s *AuctionStore) PendingEvents(ctx context.Context, limit int) ([]model.Event, error) {
	var limitArg *int
	if limit > 0 {
		limitArg = &limit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT event_id, auction_id, kind, recipient_id, amount::text, bid_count, phase, ends_at, created_at
		FROM outbox WHERE delivered_at IS NULL ORDER BY id LIMIT $1`,
		limitArg,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: pending events: %w", unavailable(err))
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var e model.Event
		var kind, phase, amount string
		if err := rows.Scan(&e.EventID, &e.AuctionID, &kind, &e.RecipientID, &amount, &e.BidCount, &phase, &e.EndsAt, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("postgres: event %s amount: %w", e.EventID, err)
		}
		e.Kind = model.EventKind(kind)
		e.Phase = model.Phase(phase)
		e.EndsAt = e.EndsAt.UTC()
		e.CreatedAt = e.CreatedAt.UTC()
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: pending events: %w", err)
	}
	return events, nil
}

// MarkEventsDelivered stamps the given events as delivered.
func (s *AuctionStore) MarkEventsDelivered(ctx context.Context, eventIDs []string) error {
	if len(eventIDs) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE outbox SET delivered_at = NOW() WHERE event_id = ANY($1) AND delivered_at IS NULL`,
		eventIDs,
	)
	if err != nil {
		return fmt.Errorf("postgres: mark delivered: %w", unavailable(err))
	}
	return nil
}

func updateAuction(ctx context.Context, tx pgx.Tx, a model.Auction) error {
	tag, err := tx.Exec(ctx, `
		UPDATE auctions SET
			seller_id = $2, starting_bid = $3::numeric, reserve = $4::numeric, start_at = $5,
			end_at = $6, phase = $7, ends_at = $8, extension_count = $9, outcome_kind = $10,
			winner_id = $11, sale_price = $12::numeric, closed_at = $13
		WHERE auction_id = $1`,
		a.AuctionID, a.SellerID, a.StartingBid.String(), decimalText(a.Reserve), a.StartAt,
		a.EndAt, string(a.Phase), a.EndsAt, a.ExtensionCount, string(a.Outcome.Kind),
		a.Outcome.WinnerID, a.Outcome.Price.String(), a.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update auction %s: %w", a.AuctionID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: update auction %s: %w", a.AuctionID, biddingerrors.ErrAuctionNotFound)
	}
	return nil
}

func insertEvents(ctx context.Context, tx pgx.Tx, events []model.Event) error {
	for _, e := range events {
		_, err := tx.Exec(ctx, `
			INSERT INTO outbox (event_id, auction_id, kind, recipient_id, amount, bid_count, phase, ends_at, created_at)
			VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9)`,
			e.EventID, e.AuctionID, string(e.Kind), e.RecipientID, e.Amount.String(),
			e.BidCount, string(e.Phase), e.EndsAt, e.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("postgres: insert event %s: %w", e.EventID, err)
		}
	}
	return nil
}
