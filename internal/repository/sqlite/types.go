package sqlite

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"proxy-auction/internal/biddingerrors"
	model "proxy-auction/internal/models"

	"github.com/shopspring/decimal"
)

// Timestamps are stored as unix nanoseconds and amounts as decimal text, so
// both survive the round trip exactly.

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// unavailable marks connection-level failures with ErrStoreUnavailable so
// callers can tell an outage from a bad query.
func unavailable(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, driver.ErrBadConn) ||
		strings.Contains(msg, "database is closed") || strings.Contains(msg, "database is locked") {
		return fmt.Errorf("%w: %w", biddingerrors.ErrStoreUnavailable, err)
	}
	return err
}

type dbAuction struct {
	AuctionID      string         `db:"auction_id"`
	SellerID       string         `db:"seller_id"`
	StartingBid    string         `db:"starting_bid"`
	Reserve        sql.NullString `db:"reserve"`
	StartAt        int64          `db:"start_at"`
	EndAt          int64          `db:"end_at"`
	Phase          string         `db:"phase"`
	EndsAt         int64          `db:"ends_at"`
	ExtensionCount int            `db:"extension_count"`
	OutcomeKind    string         `db:"outcome_kind"`
	WinnerID       string         `db:"winner_id"`
	SalePrice      string         `db:"sale_price"`
	ClosedAt       sql.NullInt64  `db:"closed_at"`
}

func fromDomainAuction(a model.Auction) dbAuction {
	row := dbAuction{
		AuctionID:      a.AuctionID,
		SellerID:       a.SellerID,
		StartingBid:    a.StartingBid.String(),
		StartAt:        toNanos(a.StartAt),
		EndAt:          toNanos(a.EndAt),
		Phase:          string(a.Phase),
		EndsAt:         toNanos(a.EndsAt),
		ExtensionCount: a.ExtensionCount,
		OutcomeKind:    string(a.Outcome.Kind),
		WinnerID:       a.Outcome.WinnerID,
		SalePrice:      a.Outcome.Price.String(),
	}
	if a.Reserve != nil {
		row.Reserve = sql.NullString{String: a.Reserve.String(), Valid: true}
	}
	if a.ClosedAt != nil {
		row.ClosedAt = sql.NullInt64{Int64: toNanos(*a.ClosedAt), Valid: true}
	}
	return row
}

func (row dbAuction) toDomain() (model.Auction, error) {
	starting, err := decimal.NewFromString(row.StartingBid)
	if err != nil {
		return model.Auction{}, fmt.Errorf("auction %s starting bid: %w", row.AuctionID, err)
	}
	price, err := decimal.NewFromString(row.SalePrice)
	if err != nil {
		return model.Auction{}, fmt.Errorf("auction %s sale price: %w", row.AuctionID, err)
	}
	a := model.Auction{
		AuctionID:      row.AuctionID,
		SellerID:       row.SellerID,
		StartingBid:    starting,
		StartAt:        fromNanos(row.StartAt),
		EndAt:          fromNanos(row.EndAt),
		Phase:          model.Phase(row.Phase),
		EndsAt:         fromNanos(row.EndsAt),
		ExtensionCount: row.ExtensionCount,
		Outcome: model.Outcome{
			Kind:     model.OutcomeKind(row.OutcomeKind),
			WinnerID: row.WinnerID,
			Price:    price,
		},
	}
	if row.Reserve.Valid {
		reserve, err := decimal.NewFromString(row.Reserve.String)
		if err != nil {
			return model.Auction{}, fmt.Errorf("auction %s reserve: %w", row.AuctionID, err)
		}
		a.Reserve = &reserve
	}
	if row.ClosedAt.Valid {
		closedAt := fromNanos(row.ClosedAt.Int64)
		a.ClosedAt = &closedAt
	}
	return a, nil
}

type dbBid struct {
	BidID          string `db:"bid_id"`
	AuctionID      string `db:"auction_id"`
	BidderID       string `db:"bidder_id"`
	ProxyMax       string `db:"proxy_max"`
	Seq            int64  `db:"seq"`
	SubmittedAt    int64  `db:"submitted_at"`
	IdempotencyKey string `db:"idempotency_key"`
}

func fromDomainBid(b model.Bid) dbBid {
	return dbBid{
		BidID:          b.BidID,
		AuctionID:      b.AuctionID,
		BidderID:       b.BidderID,
		ProxyMax:       b.ProxyMax.String(),
		Seq:            b.Seq,
		SubmittedAt:    toNanos(b.SubmittedAt),
		IdempotencyKey: b.IdempotencyKey,
	}
}

func (row dbBid) toDomain() (model.Bid, error) {
	proxyMax, err := decimal.NewFromString(row.ProxyMax)
	if err != nil {
		return model.Bid{}, fmt.Errorf("bid %s proxy max: %w", row.BidID, err)
	}
	return model.Bid{
		BidID:          row.BidID,
		AuctionID:      row.AuctionID,
		BidderID:       row.BidderID,
		ProxyMax:       proxyMax,
		Seq:            row.Seq,
		SubmittedAt:    fromNanos(row.SubmittedAt),
		IdempotencyKey: row.IdempotencyKey,
	}, nil
}

type dbEvent struct {
	EventID     string `db:"event_id"`
	AuctionID   string `db:"auction_id"`
	Kind        string `db:"kind"`
	RecipientID string `db:"recipient_id"`
	Amount      string `db:"amount"`
	BidCount    int    `db:"bid_count"`
	Phase       string `db:"phase"`
	EndsAt      int64  `db:"ends_at"`
	CreatedAt   int64  `db:"created_at"`
}

func fromDomainEvent(e model.Event) dbEvent {
	return dbEvent{
		EventID:     e.EventID,
		AuctionID:   e.AuctionID,
		Kind:        string(e.Kind),
		RecipientID: e.RecipientID,
		Amount:      e.Amount.String(),
		BidCount:    e.BidCount,
		Phase:       string(e.Phase),
		EndsAt:      toNanos(e.EndsAt),
		CreatedAt:   toNanos(e.CreatedAt),
	}
}

func (row dbEvent) toDomain() (model.Event, error) {
	amount, err := decimal.NewFromString(row.Amount)
	if err != nil {
		return model.Event{}, fmt.Errorf("event %s amount: %w", row.EventID, err)
	}
	return model.Event{
		EventID:     row.EventID,
		AuctionID:   row.AuctionID,
		Kind:        model.EventKind(row.Kind),
		RecipientID: row.RecipientID,
		Amount:      amount,
		BidCount:    row.BidCount,
		Phase:       model.Phase(row.Phase),
		EndsAt:      fromNanos(row.EndsAt),
		CreatedAt:   fromNanos(row.CreatedAt),
	}, nil
}
