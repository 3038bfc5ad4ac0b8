package auction

import (
	"errors"
	"testing"
	"time"

	"proxy-auction/internal/biddingerrors"
	model "proxy-auction/internal/models"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

func ledgerBid(seq int64, bidder, amount string) model.Bid {
	return model.Bid{
		BidID:          bidder + "-" + amount,
		AuctionID:      "auction-1",
		BidderID:       bidder,
		ProxyMax:       dec(amount),
		Seq:            seq,
		SubmittedAt:    t0.Add(time.Duration(seq) * time.Second),
		IdempotencyKey: bidder + "-" + amount,
	}
}

func TestLedger_AppendTracksMaxima(t *testing.T) {
	l := NewLedger("auction-1")

	assert.NoError(t, l.Append(ledgerBid(1, "alice", "150")))
	assert.NoError(t, l.Append(ledgerBid(2, "bob", "200")))
	assert.NoError(t, l.Append(ledgerBid(3, "alice", "300")))

	check.Equal(t, 3, l.Len())
	check.Equal(t, 2, l.DistinctBidders())
	check.Equal(t, []string{"alice", "bob"}, l.Bidders())

	aliceMax, ok := l.MaxOf("alice")
	check.True(t, ok)
	check.Equal(t, "300", aliceMax.String())

	maxima := l.Maxima()
	check.Equal(t, "alice", maxima[0].BidderID)
	check.Equal(t, int64(3), maxima[0].Seq)
	check.Equal(t, t0.Add(3*time.Second), maxima[0].ReachedAt)

	bids := l.Bids()
	check.Equal(t, 3, len(bids))
	check.Equal(t, int64(3), bids[2].Seq)
}

func TestLedger_RejectsNonIncreasingOwnMax(t *testing.T) {
	l := NewLedger("auction-1")
	assert.NoError(t, l.Append(ledgerBid(1, "alice", "150")))

	err := l.Append(ledgerBid(2, "alice", "150"))
	check.True(t, errors.Is(err, biddingerrors.ErrNonMonotonicBid))

	err = l.Append(ledgerBid(3, "alice", "120"))
	check.True(t, errors.Is(err, biddingerrors.ErrNonMonotonicBid))

	check.Equal(t, 1, l.Len())
}

func TestLedger_RejectsOutOfOrderAndForeignBids(t *testing.T) {
	l := NewLedger("auction-1")
	assert.NoError(t, l.Append(ledgerBid(5, "alice", "150")))

	err := l.Append(ledgerBid(4, "bob", "200"))
	check.True(t, errors.Is(err, biddingerrors.ErrInvalidBid))

	foreign := ledgerBid(6, "bob", "200")
	foreign.AuctionID = "auction-2"
	err = l.Append(foreign)
	check.True(t, errors.Is(err, biddingerrors.ErrInvalidBid))
}

func TestLedger_FrozenRejectsAppends(t *testing.T) {
	l := NewLedger("auction-1")
	assert.NoError(t, l.Append(ledgerBid(1, "alice", "150")))

	l.Freeze()
	l.Freeze()

	check.True(t, l.Frozen())
	err := l.Append(ledgerBid(2, "bob", "200"))
	check.True(t, errors.Is(err, biddingerrors.ErrLedgerFrozen))
	check.Equal(t, 1, len(l.Bids()))
}

func TestLedger_BidsIsACopy(t *testing.T) {
	l := NewLedger("auction-1")
	assert.NoError(t, l.Append(ledgerBid(1, "alice", "150")))

	bids := l.Bids()
	bids[0].BidderID = "mallory"

	check.Equal(t, "alice", l.Bids()[0].BidderID)
}

func TestLedger_MaximaWithDoesNotMutate(t *testing.T) {
	l := NewLedger("auction-1")
	assert.NoError(t, l.Append(ledgerBid(1, "alice", "150")))

	next := ledgerBid(2, "alice", "400")
	assert.NoError(t, l.Validate(next))

	staged := l.MaximaWith(next)
	check.Equal(t, 1, len(staged))
	check.Equal(t, "400", staged[0].Max.String())

	staged = l.MaximaWith(ledgerBid(2, "bob", "200"))
	check.Equal(t, 2, len(staged))

	current, _ := l.MaxOf("alice")
	check.Equal(t, "150", current.String())
	check.Equal(t, 1, l.Len())
}
