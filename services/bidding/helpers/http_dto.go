package helpers

// Request/Response DTOs

// PlaceBidRequest is the POST /bids payload. ProxyMax is a decimal string
// so amounts never pass through a float.
type PlaceBidRequest struct {
	AuctionID      string `json:"auction_id" binding:"required"`
	BidderID       string `json:"bidder_id" binding:"required"`
	ProxyMax       string `json:"proxy_max" binding:"required"`
	IdempotencyKey string `json:"idempotency_key" binding:"required"`
}

type StandingResponse struct {
	AuctionID           string `json:"auction_id"`
	DisplayedCurrentBid string `json:"displayed_current_bid"`
	BidCount            int    `json:"bid_count"`
	Phase               string `json:"phase"`
	EndsAt              string `json:"ends_at"`
}

type BidResponse struct {
	Status   string           `json:"status"`
	BidID    string           `json:"bid_id,omitempty"`
	BidderID string           `json:"bidder_id"`
	Leading  bool             `json:"leading"`
	Standing StandingResponse `json:"standing"`
}
