package helpers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"proxy-auction/internal/biddingerrors"
	"proxy-auction/internal/models"
	"proxy-auction/utils"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// HandleBindError sends a standardized JSON error for binding failures
func HandleBindError(c *gin.Context, handlerName string, err error) {
	wrappedErr := fmt.Errorf("invalid request payload: %w", err)
	utils.JSONError(c, http.StatusBadRequest, wrappedErr, "invalid request payload")
	utils.Warn(handlerName+": binding error", map[string]any{"error": err.Error()})
}

// ParseAmount parses a positive decimal amount such as "102.50".
func ParseAmount(s string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w - proxy_max %q is not a decimal", biddingerrors.ErrInvalidBid, s)
	}
	if !amount.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("%w - proxy_max must be positive", biddingerrors.ErrInvalidBid)
	}
	return amount, nil
}

// MapErrorToHTTP maps domain/service errors to HTTP status code and message
func MapErrorToHTTP(err error) (int, string) {
	switch {
	case errors.Is(err, biddingerrors.ErrAuctionNotFound):
		return http.StatusNotFound, "auction not found"
	case errors.Is(err, biddingerrors.ErrInvalidBid):
		return http.StatusBadRequest, "invalid bid details"
	case errors.Is(err, biddingerrors.ErrActorRetired), errors.Is(err, biddingerrors.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "auction temporarily unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "request timed out"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// MapRejectionToHTTP maps a bid rejection reason to its HTTP status
func MapRejectionToHTTP(reason string) int {
	switch biddingerrors.RejectReason(reason) {
	case biddingerrors.ReasonAuctionNotBiddable, biddingerrors.ReasonBidTooLow:
		return http.StatusConflict
	case biddingerrors.ReasonSelfBidForbidden, biddingerrors.ReasonIdentityIneligible:
		return http.StatusForbidden
	case biddingerrors.ReasonPaymentHoldFailed:
		return http.StatusPaymentRequired
	default:
		return http.StatusUnprocessableEntity
	}
}

func ToStandingResponse(s models.PublicStanding) StandingResponse {
	return StandingResponse{
		AuctionID:           s.AuctionID,
		DisplayedCurrentBid: s.DisplayedCurrentBid.String(),
		BidCount:            s.BidCount,
		Phase:               string(s.Phase),
		EndsAt:              s.EndsAt.UTC().Format(time.RFC3339),
	}
}

func ToBidResponse(r models.BidResult) BidResponse {
	return BidResponse{
		Status:   string(r.Status),
		BidID:    r.BidID,
		BidderID: r.BidderID,
		Leading:  r.Leading,
		Standing: ToStandingResponse(r.Standing),
	}
}

// LogSuccess is a small helper to standardize logging of successful operations
func LogSuccess(handlerName, message string, ctx map[string]any) {
	utils.Info(handlerName+": "+message, ctx)
}
