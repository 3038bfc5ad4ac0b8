package integrationtests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	bidding "proxy-auction/internal/biddingService"
	"proxy-auction/internal/collaborators"
	model "proxy-auction/internal/models"
	"proxy-auction/internal/notify"
	"proxy-auction/internal/repository"
	"proxy-auction/internal/server"
	"proxy-auction/internal/server/ws"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
)

// Every listing opens at 17:00 and open bidding ends at 18:00. The test clock
// starts one minute after opening.
var (
	t0    = time.Date(2026, 3, 14, 17, 0, 0, 0, time.UTC)
	tEnd  = t0.Add(time.Hour)
	tLive = t0.Add(time.Minute)
)

// testEnv is a fully wired server over the memory store.
type testEnv struct {
	router     *gin.Engine
	clock      *clockwork.FakeClock
	store      repository.AuctionStore
	registry   *bidding.Registry
	hub        *ws.Hub
	dispatcher *notify.Dispatcher
}

// Listing builds a catalog entry sold by "seller". An empty reserve means none.
func Listing(auctionID, reserve string) model.Listing {
	l := model.Listing{
		AuctionID:   auctionID,
		SellerID:    "seller",
		StartingBid: decimal.RequireFromString("100"),
		StartAt:     t0,
		EndAt:       tEnd,
	}
	if reserve != "" {
		r := decimal.RequireFromString(reserve)
		l.Reserve = &r
	}
	return l
}

// SetupTestRouterWithListings initializes the router over an in-memory store
// and a catalog seeded with listings.
func SetupTestRouterWithListings(t *testing.T, listings ...model.Listing) *testEnv {
	t.Helper()
	return setupWithStore(t, repository.NewMemoryRepo(), listings...)
}

func setupWithStore(t *testing.T, store repository.AuctionStore, listings ...model.Listing) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := &testEnv{
		clock: clockwork.NewFakeClockAt(tLive),
		store: store,
		hub:   ws.NewHub(),
	}
	env.dispatcher = notify.NewDispatcher(store, env.hub, notify.DispatcherConfig{}, env.clock)
	env.registry = bidding.NewRegistry(store, collaborators.NewStaticCatalog(listings...), bidding.DefaultSettings(),
		bidding.WithClock(env.clock),
		bidding.WithNotifier(env.dispatcher),
	)
	service := bidding.NewBiddingService(env.registry, collaborators.AllowAllIdentity{}, collaborators.NewNoopPayments())
	env.router = server.SetupRouter(service, env.hub)

	t.Cleanup(func() { _ = env.registry.Close(context.Background()) })
	return env
}

// StartBackground runs the hub and the outbox dispatcher until the test ends.
func (env *testEnv) StartBackground(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{}, 2)
	go func() { _ = env.hub.Run(ctx); done <- struct{}{} }()
	go func() { _ = env.dispatcher.Run(ctx); done <- struct{}{} }()
	t.Cleanup(func() {
		cancel()
		<-done
		<-done
	})
}

// ExecuteRequest executes an HTTP request and returns the response recorder.
func ExecuteRequest(t *testing.T, router *gin.Engine, method, url string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, url, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// ExecuteRequestAndParse executes an HTTP request on the given router and
// parses the response envelope.
func ExecuteRequestAndParse(t *testing.T, router *gin.Engine, method, url string, body any) (map[string]any, *httptest.ResponseRecorder) {
	var reqBody []byte
	var err error

	switch v := body.(type) {
	case nil:
	case []byte:
		reqBody = v
	case string:
		reqBody = []byte(v)
	default:
		reqBody, err = json.Marshal(v)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
	}

	w := ExecuteRequest(t, router, method, url, reqBody)

	var resp map[string]any
	if len(w.Body.Bytes()) > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}
	}
	return resp, w
}

// Data returns the "data" object of a response envelope.
func Data(t *testing.T, resp map[string]any) map[string]any {
	t.Helper()
	data, ok := resp["data"].(map[string]any)
	if !ok {
		t.Fatalf("response has no data object: %v", resp)
	}
	return data
}

// Standing returns the standing object of a bid response envelope.
func Standing(t *testing.T, resp map[string]any) map[string]any {
	t.Helper()
	standing, ok := Data(t, resp)["standing"].(map[string]any)
	if !ok {
		t.Fatalf("response has no standing: %v", resp)
	}
	return standing
}
