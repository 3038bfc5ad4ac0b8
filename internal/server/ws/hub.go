// Package ws streams public auction events to websocket clients. Each
// connection follows exactly one auction.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"proxy-auction/internal/models"
	"proxy-auction/utils"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 512
	sendBufferSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message is the frame sent to clients. It carries only public fields.
type Message struct {
	Type                string          `json:"type"`
	AuctionID           string          `json:"auction_id"`
	DisplayedCurrentBid decimal.Decimal `json:"displayed_current_bid"`
	BidCount            int             `json:"bid_count"`
	Phase               models.Phase    `json:"phase"`
	EndsAt              time.Time       `json:"ends_at"`
}

// snapshotType is the first frame every client receives.
const snapshotType = "standing"

type client struct {
	hub       *Hub
	conn      *websocket.Conn
	auctionID string
	send      chan []byte
}

type broadcastMsg struct {
	auctionID string
	data      []byte
}

// Hub tracks connected clients per auction and implements notify.Sink for
// public events.
type Hub struct {
	clients    map[string]map[*client]bool
	broadcast  chan broadcastMsg
	register   chan *client
	unregister chan *client
	stopped    chan struct{}
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*client]bool),
		broadcast:  make(chan broadcastMsg, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		stopped:    make(chan struct{}),
	}
}

func (h *Hub) Name() string { return "websocket" }

// Run handles registration and broadcasting until ctx is cancelled, then
// closes every client.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.stopped)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, set := range h.clients {
				for c := range set {
					close(c.send)
				}
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			set, ok := h.clients[c.auctionID]
			if !ok {
				set = make(map[*client]bool)
				h.clients[c.auctionID] = set
			}
			set[c] = true
			h.mu.Unlock()
			utils.Debug("ws: client connected", map[string]any{"auction_id": c.auctionID, "total_clients": h.Clients()})

		case c := <-h.unregister:
			h.mu.Lock()
			if set, ok := h.clients[c.auctionID]; ok && set[c] {
				delete(set, c)
				close(c.send)
				if len(set) == 0 {
					delete(h.clients, c.auctionID)
				}
			}
			h.mu.Unlock()
			utils.Debug("ws: client disconnected", map[string]any{"auction_id": c.auctionID, "total_clients": h.Clients()})

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients[msg.auctionID] {
				select {
				case c.send <- msg.data:
				default:
					utils.Warn("ws: dropping message for slow client", map[string]any{"auction_id": msg.auctionID})
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Clients reports how many connections are registered.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}

// Emit broadcasts public events to the auction's clients. Events addressed
// to a single user are not streamed. Once the hub has stopped, events are
// dropped.
func (h *Hub) Emit(ctx context.Context, e models.Event) error {
	if !e.Kind.Public() {
		return nil
	}
	data, err := json.Marshal(Message{
		Type:                string(e.Kind),
		AuctionID:           e.AuctionID,
		DisplayedCurrentBid: e.Amount,
		BidCount:            e.BidCount,
		Phase:               e.Phase,
		EndsAt:              e.EndsAt,
	})
	if err != nil {
		return err
	}

	select {
	case h.broadcast <- broadcastMsg{auctionID: e.AuctionID, data: data}:
		return nil
	case <-h.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Serve upgrades the request and streams the auction described by current,
// starting with a snapshot of it.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, current models.PublicStanding) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		utils.Warn("ws: upgrade failed", map[string]any{"auction_id": current.AuctionID, "error": err.Error()})
		return
	}

	c := &client{
		hub:       h,
		conn:      conn,
		auctionID: current.AuctionID,
		send:      make(chan []byte, sendBufferSize),
	}
	if data, err := json.Marshal(Message{
		Type:                snapshotType,
		AuctionID:           current.AuctionID,
		DisplayedCurrentBid: current.DisplayedCurrentBid,
		BidCount:            current.BidCount,
		Phase:               current.Phase,
		EndsAt:              current.EndsAt,
	}); err == nil {
		c.send <- data
	}

	select {
	case h.register <- c:
	case <-h.stopped:
		_ = conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// readPump only services control frames; clients have nothing to say.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.stopped:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				utils.Debug("ws: unexpected close", map[string]any{"auction_id": c.auctionID, "error": err.Error()})
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
