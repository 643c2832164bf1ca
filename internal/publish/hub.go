package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/RoeeEidan/Chain-Prices/internal/models"
)

const (
	pingEvery    = 10 * time.Second
	pongDeadline = 30 * time.Second
	writeWait    = 5 * time.Second
	sendBuffer   = 16

	// maxSubscriptions bounds a client's subscription set when no catalog
	// is known.
	maxSubscriptions = 64
)

// Frame is one message pushed to stream clients.
type Frame struct {
	Type   string  `json:"type"`
	Points []Point `json:"points"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte

	mu   sync.RWMutex
	subs map[string]struct{} // empty means every asset
}

func (c *client) wants(assetID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.subs) == 0 {
		return true
	}
	_, ok := c.subs[assetID]
	return ok
}

// subscribe adds assetID unless the set is already at limit.
func (c *client) subscribe(assetID string, limit int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.subs[assetID]; ok {
		return true
	}
	if len(c.subs) >= limit {
		return false
	}
	c.subs[assetID] = struct{}{}
	return true
}

// Hub fans freshly written points out to websocket clients. A client may send
// asset ids as text messages to narrow its subscription.
type Hub struct {
	upgrader websocket.Upgrader

	mx      sync.RWMutex
	clients map[*client]struct{}

	known   map[string]struct{} // nil accepts any id, up to maxSubscriptions
	onCount func(n int)
	log     *log.Entry
}

func NewHub(allowOrigin string) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return allowOrigin == "*" || r.Header.Get("Origin") == "" || r.Header.Get("Origin") == allowOrigin
			},
		},
		clients: make(map[*client]struct{}),
		log:     log.WithField("component", "stream"),
	}
}

// RestrictTo limits subscriptions to the given assets. Other ids sent by a
// client are ignored.
func (h *Hub) RestrictTo(assets []models.Asset) {
	known := make(map[string]struct{}, len(assets))
	for _, a := range assets {
		known[a.ID] = struct{}{}
	}
	h.known = known
}

// OnClientCount registers a callback invoked whenever the client count changes.
func (h *Hub) OnClientCount(fn func(n int)) { h.onCount = fn }

func (h *Hub) Name() string { return "websocket" }

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnf("upgrade: %v", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer), subs: make(map[string]struct{})}
	h.add(c)
	go h.writeLoop(c)
	go h.readLoop(c)
}

// Publish enqueues a frame for every interested client. Clients whose buffer
// is full are disconnected.
func (h *Hub) Publish(_ context.Context, points []models.PricePoint) error {
	var slow []*client

	h.mx.RLock()
	for c := range h.clients {
		var frame Frame
		frame.Type = "points"
		for _, p := range points {
			if c.wants(p.AssetID) {
				frame.Points = append(frame.Points, wirePoint(p))
			}
		}
		if len(frame.Points) == 0 {
			continue
		}
		js, err := json.Marshal(frame)
		if err != nil {
			h.mx.RUnlock()
			return fmt.Errorf("marshal frame: %w", err)
		}
		select {
		case c.send <- js:
		default:
			slow = append(slow, c)
		}
	}
	h.mx.RUnlock()

	for _, c := range slow {
		h.log.Warn("dropping slow client")
		h.remove(c)
	}
	return nil
}

// Run blocks until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) error {
	<-ctx.Done()
	h.mx.RLock()
	all := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		all = append(all, c)
	}
	h.mx.RUnlock()
	for _, c := range all {
		h.remove(c)
	}
	return ctx.Err()
}

func (h *Hub) Clients() int {
	h.mx.RLock()
	defer h.mx.RUnlock()
	return len(h.clients)
}

func (h *Hub) add(c *client) {
	h.mx.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mx.Unlock()
	h.notify(n)
}

func (h *Hub) remove(c *client) {
	h.mx.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mx.Unlock()
	if ok {
		h.notify(n)
	}
}

func (h *Hub) notify(n int) {
	if h.onCount != nil {
		h.onCount(n)
	}
}

// writeLoop is the only writer on the connection.
func (h *Hub) writeLoop(c *client) {
	pinger := time.NewTicker(pingEvery)
	defer func() {
		pinger.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.remove(c)
				return
			}
		case <-pinger.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				h.remove(c)
				return
			}
		}
	}
}

func (h *Hub) readLoop(c *client) {
	defer h.remove(c)

	_ = c.conn.SetReadDeadline(time.Now().Add(pongDeadline))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongDeadline))
	})

	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongDeadline))
		if mt == websocket.TextMessage {
			h.handleSubscribe(c, string(data))
		}
	}
}

func (h *Hub) handleSubscribe(c *client, msg string) {
	id := strings.ToUpper(strings.TrimSpace(msg))
	if id == "" {
		return
	}
	limit := maxSubscriptions
	if h.known != nil {
		if _, ok := h.known[id]; !ok {
			h.log.Debugf("ignoring subscription to unknown asset %q", id)
			return
		}
		limit = len(h.known)
	}
	if !c.subscribe(id, limit) {
		h.log.Debugf("subscription limit reached, ignoring %q", id)
	}
}
