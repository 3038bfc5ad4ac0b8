package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"proxy-auction/internal/biddingerrors"
	model "proxy-auction/internal/models"
	"proxy-auction/internal/repository"

	"github.com/jmoiron/sqlx"
)

var _ repository.AuctionStore = (*Repository)(nil)

const auctionColumns = `auction_id, seller_id, starting_bid, reserve, start_at, end_at, phase,
	ends_at, extension_count, outcome_kind, winner_id, sale_price, closed_at`

// GetAuction returns the auction row.
func (repo *Repository) GetAuction(ctx context.Context, auctionID string) (model.Auction, error) {
	var row dbAuction
	err := repo.dbConn.GetContext(ctx, &row, `SELECT `+auctionColumns+` FROM auctions WHERE auction_id = ?`, auctionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
		}
		return model.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, unavailable(err))
	}
	return row.toDomain()
}

// CreateAuction inserts a new auction row.
func (repo *Repository) CreateAuction(ctx context.Context, auction model.Auction) error {
	query := `INSERT INTO auctions (` + auctionColumns + `)
		VALUES (:auction_id, :seller_id, :starting_bid, :reserve, :start_at, :end_at, :phase,
			:ends_at, :extension_count, :outcome_kind, :winner_id, :sale_price, :closed_at)`
	if _, err := repo.dbConn.NamedExecContext(ctx, query, fromDomainAuction(auction)); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create auction %s: %w", auction.AuctionID, biddingerrors.ErrAuctionExists)
		}
		return fmt.Errorf("create auction %s: %w", auction.AuctionID, unavailable(err))
	}
	return nil
}

// ListBids returns the ledger in seq order.
func (repo *Repository) ListBids(ctx context.Context, auctionID string) ([]model.Bid, error) {
	var rows []dbBid
	err := repo.dbConn.SelectContext(ctx, &rows, `
		SELECT bid_id, auction_id, bidder_id, proxy_max, seq, submitted_at, idempotency_key
		FROM bids WHERE auction_id = ? ORDER BY seq`, auctionID)
	if err != nil {
		return nil, fmt.Errorf("list bids %s: %w", auctionID, unavailable(err))
	}

	bids := make([]model.Bid, 0, len(rows))
	for _, row := range rows {
		b, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		bids = append(bids, b)
	}
	return bids, nil
}

// AppendBid writes the bid, the updated auction row and the outbox events in one transaction.
func (repo *Repository) AppendBid(ctx context.Context, bid model.Bid, auction model.Auction, events []model.Event) error {
	if bid.AuctionID != auction.AuctionID {
		return fmt.Errorf("append bid %s: %w - auction mismatch", bid.BidID, biddingerrors.ErrInvalidBid)
	}
	return repo.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := updateAuction(ctx, tx, auction); err != nil {
			return fmt.Errorf("append bid %s: %w", bid.BidID, err)
		}
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO bids (bid_id, auction_id, bidder_id, proxy_max, seq, submitted_at, idempotency_key)
			VALUES (:bid_id, :auction_id, :bidder_id, :proxy_max, :seq, :submitted_at, :idempotency_key)`,
			fromDomainBid(bid))
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("append bid %s: %w", bid.BidID, biddingerrors.ErrDuplicateBid)
			}
			return fmt.Errorf("append bid %s: %w", bid.BidID, err)
		}
		return insertEvents(ctx, tx, events)
	})
}

// UpdateAuction replaces the auction row and enqueues its events in one transaction.
func (repo *Repository) UpdateAuction(ctx context.Context, auction model.Auction, events []model.Event) error {
	return repo.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := updateAuction(ctx, tx, auction); err != nil {
			return err
		}
		return insertEvents(ctx, tx, events)
	})
}

// PendingEvents returns up to limit undelivered events in insertion order.
// A non-positive limit returns all of them.
func (repo *Repository) PendingEvents(ctx context.Context, limit int) ([]model.Event, error) {
	if limit <= 0 {
		limit = -1
	}
	var rows []dbEvent
	err := repo.dbConn.SelectContext(ctx, &rows, `
		SELECT event_id, auction_id, kind, recipient_id, amount, bid_count, phase, ends_at, created_at
		FROM outbox WHERE delivered_at IS NULL ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("pending events: %w", unavailable(err))
	}

	events := make([]model.Event, 0, len(rows))
	for _, row := range rows {
		e, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}

// MarkEventsDelivered stamps the given events as delivered.
func (repo *Repository) MarkEventsDelivered(ctx context.Context, eventIDs []string) error {
	if len(eventIDs) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`UPDATE outbox SET delivered_at = ? WHERE event_id IN (?) AND delivered_at IS NULL`,
		time.Now().UTC().UnixNano(), eventIDs)
	if err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	if _, err := repo.dbConn.ExecContext(ctx, repo.dbConn.Rebind(query), args...); err != nil {
		return fmt.Errorf("mark delivered: %w", unavailable(err))
	}
	return nil
}

func (repo *Repository) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := repo.dbConn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", unavailable(err))
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", unavailable(err))
	}
	return nil
}

func updateAuction(ctx context.Context, tx *sqlx.Tx, auction model.Auction) error {
	res, err := tx.NamedExecContext(ctx, `
		UPDATE auctions SET
			seller_id = :seller_id, starting_bid = :starting_bid, reserve = :reserve,
			start_at = :start_at, end_at = :end_at, phase = :phase, ends_at = :ends_at,
			extension_count = :extension_count, outcome_kind = :outcome_kind,
			winner_id = :winner_id, sale_price = :sale_price, closed_at = :closed_at
		WHERE auction_id = :auction_id`, fromDomainAuction(auction))
	if err != nil {
		return fmt.Errorf("update auction %s: %w", auction.AuctionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update auction %s: %w", auction.AuctionID, err)
	}
	if n == 0 {
		return fmt.Errorf("update auction %s: %w", auction.AuctionID, biddingerrors.ErrAuctionNotFound)
	}
	return nil
}

func insertEvents(ctx context.Context, tx *sqlx.Tx, events []model.Event) error {
	for _, e := range events {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO outbox (event_id, auction_id, kind, recipient_id, amount, bid_count, phase, ends_at, created_at)
			VALUES (:event_id, :auction_id, :kind, :recipient_id, :amount, :bid_count, :phase, :ends_at, :created_at)`,
			fromDomainEvent(e))
		if err != nil {
			return fmt.Errorf("insert event %s: %w", e.EventID, err)
		}
	}
	return nil
}
