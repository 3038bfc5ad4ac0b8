package handler

import (
	"context"
	"fmt"
	"net/http"

	"proxy-auction/internal/models"
	"proxy-auction/services/bidding/helpers"
	"proxy-auction/utils"

	"github.com/gin-gonic/gin"
)

type BiddingServiceInterface interface {
	SubmitBid(ctx context.Context, req models.BidRequest) (models.BidResult, error)
	GetStanding(ctx context.Context, auctionID string) (models.PublicStanding, error)
}

// StandingStreamer serves a live stream of one auction's public events.
type StandingStreamer interface {
	Serve(w http.ResponseWriter, r *http.Request, current models.PublicStanding)
}

type BiddingHandler struct {
	service  BiddingServiceInterface
	streamer StandingStreamer
}

// NewBiddingHandler creates the handler. streamer may be nil, in which case
// the stream endpoint answers 404.
func NewBiddingHandler(service BiddingServiceInterface, streamer StandingStreamer) *BiddingHandler {
	return &BiddingHandler{service: service, streamer: streamer}
}

// SubmitBidHandler handles POST /bids
func (h *BiddingHandler) SubmitBidHandler(c *gin.Context) {
	var req helpers.PlaceBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "SubmitBidHandler", err)
		return
	}
	amount, err := helpers.ParseAmount(req.ProxyMax)
	if err != nil {
		helpers.HandleBindError(c, "SubmitBidHandler", err)
		return
	}

	res, err := h.service.SubmitBid(c.Request.Context(), models.BidRequest{
		AuctionID:      req.AuctionID,
		BidderID:       req.BidderID,
		ProxyMax:       amount,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Error("SubmitBidHandler: failed to submit bid", map[string]any{
			"handler":    "SubmitBidHandler",
			"auction_id": req.AuctionID,
			"bidder_id":  req.BidderID,
			"error":      err.Error(),
		})
		return
	}

	resp := helpers.ToBidResponse(res)
	if !res.Accepted() {
		utils.JSONRejection(c, helpers.MapRejectionToHTTP(res.Reason), res.Reason, resp)
		utils.Info("SubmitBidHandler: bid rejected", map[string]any{
			"auction_id": req.AuctionID,
			"bidder_id":  req.BidderID,
			"reason":     res.Reason,
		})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, resp, "bid accepted")
	helpers.LogSuccess("SubmitBidHandler", "bid accepted", map[string]any{
		"bid_id":     res.BidID,
		"auction_id": req.AuctionID,
		"bidder_id":  req.BidderID,
		"leading":    res.Leading,
		"displayed":  resp.Standing.DisplayedCurrentBid,
	})
}

// GetStandingHandler handles GET /auctions/:auction_id/standing
func (h *BiddingHandler) GetStandingHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	standing, err := h.service.GetStanding(c.Request.Context(), auctionID)
	if err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Warn("GetStandingHandler: error retrieving standing", map[string]any{"auction_id": auctionID, "error": err.Error()})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToStandingResponse(standing), "standing retrieved successfully")
	helpers.LogSuccess("GetStandingHandler", "standing retrieved successfully", map[string]any{
		"auction_id": auctionID,
		"bid_count":  standing.BidCount,
		"phase":      standing.Phase,
	})
}

// StreamStandingHandler handles GET /auctions/:auction_id/stream
func (h *BiddingHandler) StreamStandingHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	if h.streamer == nil {
		utils.JSONError(c, http.StatusNotFound, fmt.Errorf("streaming disabled"), "streaming disabled")
		return
	}
	standing, err := h.service.GetStanding(c.Request.Context(), auctionID)
	if err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Warn("StreamStandingHandler: error retrieving standing", map[string]any{"auction_id": auctionID, "error": err.Error()})
		return
	}
	h.streamer.Serve(c.Writer, c.Request, standing)
}
