package bidding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"proxy-auction/internal/biddingerrors"
	"proxy-auction/internal/models"
	"proxy-auction/utils"
)

// BiddingService is the engine boundary used by the HTTP layer. Bids are
// checked and appended by the auction's actor; identity and payment calls
// happen between the two serialized steps, never inside them.
type BiddingService struct {
	registry *Registry
	identity IdentityProvider
	payments PaymentAuthorizer
}

// NewBiddingService creates a new BiddingService instance
func NewBiddingService(registry *Registry, identity IdentityProvider, payments PaymentAuthorizer) *BiddingService {
	return &BiddingService{
		registry: registry,
		identity: identity,
		payments: payments,
	}
}

// SubmitBid places a proxy bid. Business rejections come back as a rejected
// BidResult; a non-nil error means the request was malformed or the
// infrastructure failed, and nothing was recorded.
//
// Submitting the same idempotency key again returns the first result. A bid
// for an auction that does not exist is rejected as not biddable.
func (s *BiddingService) SubmitBid(ctx context.Context, req models.BidRequest) (models.BidResult, error) {
	if err := validateRequest(req); err != nil {
		return models.BidResult{}, err
	}

	var (
		res   models.BidResult
		final bool
	)
	err := s.registry.withActor(ctx, req.AuctionID, func(a *actor) error {
		return a.do(ctx, func() { res, final = a.precheck(ctx, req) })
	})
	if errors.Is(err, biddingerrors.ErrAuctionNotFound) {
		utils.Info("bid for unknown auction", map[string]any{"auction_id": req.AuctionID, "bidder_id": req.BidderID})
		return models.BidResult{
			Status:   models.BidRejected,
			Reason:   string(biddingerrors.ReasonAuctionNotBiddable),
			BidderID: req.BidderID,
			Standing: models.PublicStanding{AuctionID: req.AuctionID},
		}, nil
	}
	if err != nil {
		return models.BidResult{}, fmt.Errorf("service: route bid for auction %s: %w", req.AuctionID, err)
	}
	if final {
		return res, nil
	}

	denied, holdID, err := s.authorize(ctx, req)
	if err != nil {
		return models.BidResult{}, err
	}

	var appended bool
	var commitErr error
	err = s.registry.withActor(ctx, req.AuctionID, func(a *actor) error {
		return a.do(ctx, func() { res, appended, commitErr = a.commit(ctx, req, denied) })
	})
	if err == nil {
		err = commitErr
	}
	if !appended && holdID != "" {
		s.release(ctx, req, holdID)
	}
	if err != nil {
		return models.BidResult{}, fmt.Errorf("service: commit bid for auction %s: %w", req.AuctionID, err)
	}

	fields := map[string]any{
		"auction_id": req.AuctionID,
		"bidder_id":  req.BidderID,
		"status":     res.Status,
	}
	if res.Reason != "" {
		fields["reason"] = res.Reason
	}
	utils.Debug("bid processed", fields)
	return res, nil
}

// authorize runs the collaborator checks outside the auction's critical
// section. It returns the rejection reason to record, if any.
func (s *BiddingService) authorize(ctx context.Context, req models.BidRequest) (biddingerrors.RejectReason, string, error) {
	ok, err := s.identity.IsEligible(ctx, req.BidderID)
	if err != nil {
		return "", "", fmt.Errorf("service: identity check for bidder %s: %w", req.BidderID, err)
	}
	if !ok {
		return biddingerrors.ReasonIdentityIneligible, "", nil
	}

	if !s.registry.Settings().RequirePaymentHold {
		return "", "", nil
	}
	holdID, err := s.payments.HoldFunds(ctx, req.BidderID, req.AuctionID, req.ProxyMax)
	if err != nil {
		utils.Warn("payment hold failed", map[string]any{
			"auction_id": req.AuctionID,
			"bidder_id":  req.BidderID,
			"error":      err.Error(),
		})
		return biddingerrors.ReasonPaymentHoldFailed, "", nil
	}
	return "", holdID, nil
}

func (s *BiddingService) release(ctx context.Context, req models.BidRequest, holdID string) {
	if err := s.payments.ReleaseHold(context.WithoutCancel(ctx), holdID); err != nil {
		utils.Error("release hold failed", map[string]any{
			"auction_id": req.AuctionID,
			"bidder_id":  req.BidderID,
			"hold_id":    holdID,
			"error":      err.Error(),
		})
	}
}

// GetStanding returns the public view of an auction. It never exposes the
// leading or second-highest maximum.
func (s *BiddingService) GetStanding(ctx context.Context, auctionID string) (models.PublicStanding, error) {
	if strings.TrimSpace(auctionID) == "" {
		return models.PublicStanding{}, fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrInvalidBid)
	}

	var standing models.PublicStanding
	err := s.registry.withActor(ctx, auctionID, func(a *actor) error {
		return a.do(ctx, func() {
			a.advance(ctx)
			standing = a.public()
		})
	})
	if err != nil {
		return models.PublicStanding{}, fmt.Errorf("service: standing for auction %s: %w", auctionID, err)
	}
	return standing, nil
}

// validateRequest checks input validity before any routing
func validateRequest(req models.BidRequest) error {
	if strings.TrimSpace(req.AuctionID) == "" || strings.TrimSpace(req.BidderID) == "" {
		return fmt.Errorf("service: %w - missing auctionID or bidderID", biddingerrors.ErrInvalidBid)
	}
	if strings.TrimSpace(req.IdempotencyKey) == "" {
		return fmt.Errorf("service: %w - missing idempotency key", biddingerrors.ErrInvalidBid)
	}
	if !req.ProxyMax.IsPositive() {
		return fmt.Errorf("service: %w - non-positive proxy maximum", biddingerrors.ErrInvalidBid)
	}
	return nil
}
