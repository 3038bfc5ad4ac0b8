package server

import (
	"net/http"

	handler "proxy-auction/services/bidding/handler"
	"proxy-auction/utils"

	"github.com/gin-gonic/gin"
)

// SetupRouter configures all Gin routes for the application. streamer may be
// nil to disable the websocket endpoint.
func SetupRouter(biddingService handler.BiddingServiceInterface, streamer handler.StandingStreamer) *gin.Engine {
	router := gin.New() // New router without default middleware for full control over middleware and logging

	router.Use(gin.Recovery())          // recover from panics
	router.Use(RequestLoggerMiddleware) // custom request logging

	biddingHandler := handler.NewBiddingHandler(biddingService, streamer)

	router.GET("/healthz", func(c *gin.Context) {
		utils.JSONResponse(c, http.StatusOK, gin.H{"status": "ok"}, "healthy")
	})

	bids := router.Group("/bids")
	{
		bids.POST("", biddingHandler.SubmitBidHandler)
	}

	auctions := router.Group("/auctions")
	{
		auctions.GET("/:auction_id/standing", biddingHandler.GetStandingHandler)
		auctions.GET("/:auction_id/stream", biddingHandler.StreamStandingHandler)
	}

	return router
}
