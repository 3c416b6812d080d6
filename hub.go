package main

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
)

// HubOptions configures per-connection flow control.
type HubOptions struct {
	EventRate     float64 // inbound events per second, 0 disables limiting
	EventBurst    int
	SendBuffer    int
	AllowedOrigin string // "" or "*" accepts any origin
}

func (cfg AppConfig) toHubOptions() HubOptions {
	return HubOptions{
		EventRate:     cfg.EventRate,
		EventBurst:    cfg.EventBurst,
		SendBuffer:    cfg.SendBuffer,
		AllowedOrigin: cfg.AllowedOrigin,
	}
}

// Client is one WebSocket connection.
type Client struct {
	id        string
	conn      *websocket.Conn
	send      chan []byte
	limiter   *rate.Limiter
	throttled bool // a rate notice was sent and no event has been accepted since
	done      chan struct{}
	closeOnce sync.Once
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

// Hub tracks connections and their room groups and implements Broadcaster.
type Hub struct {
	opts       HubOptions
	clients    map[string]*Client
	rooms      map[string]map[string]*Client
	memberOf   map[string]map[string]bool
	unregister chan *Client
	mu         sync.RWMutex
	done       chan struct{}
	wg         sync.WaitGroup
	upgrader   websocket.Upgrader

	// onEvent handles every decoded inbound frame.
	onEvent func(connID string, env Envelope)
}

var _ Broadcaster = (*Hub)(nil)

func newHub(opts HubOptions) *Hub {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	h := &Hub{
		opts:       opts,
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[string]*Client),
		memberOf:   make(map[string]map[string]bool),
		unregister: make(chan *Client, 64),
		done:       make(chan struct{}),
		onEvent:    func(string, Envelope) {},
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: h.checkOrigin}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if h.opts.AllowedOrigin == "" || h.opts.AllowedOrigin == "*" {
		return true
	}
	return r.Header.Get("Origin") == h.opts.AllowedOrigin
}

// stop signals the hub goroutine to exit, waits for it and closes every
// remaining connection.
func (h *Hub) stop() {
	close(h.done)
	h.wg.Wait()
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		c.close()
	}
}

// start launches the hub goroutine.
func (h *Hub) start() {
	h.wg.Add(1)
	go h.run()
}

func (h *Hub) run() {
	defer h.wg.Done()
	for {
		select {
		case <-h.done:
			return
		case c := <-h.unregister:
			h.remove(c)
		}
	}
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	h.clients[c.id] = c
	total := len(h.clients)
	h.mu.Unlock()
	log.Printf("WebSocket client connected (%s). Total: %d", c.id, total)
}

// remove drops the connection from every room group. Rosters are untouched;
// players leave a room only through logOut.
func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.id)
	for roomID := range h.memberOf[c.id] {
		delete(h.rooms[roomID], c.id)
		if len(h.rooms[roomID]) == 0 {
			delete(h.rooms, roomID)
		}
	}
	groups := len(h.memberOf[c.id])
	delete(h.memberOf, c.id)
	total := len(h.clients)
	h.mu.Unlock()

	c.close()
	log.Printf("WebSocket client disconnected (%s, %d room(s)). Total: %d", c.id, groups, total)
}

// Subscribe adds the connection to the room's broadcast group.
func (h *Hub) Subscribe(connID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[connID]
	if !ok {
		return
	}
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[string]*Client)
	}
	if h.memberOf[connID] == nil {
		h.memberOf[connID] = make(map[string]bool)
	}
	if !h.memberOf[connID][roomID] {
		DebugLog("Hub: %s subscribed to room '%s'", connID, roomID)
	}
	h.rooms[roomID][connID] = c
	h.memberOf[connID][roomID] = true
}

// SendTo delivers an event to one connection.
func (h *Hub) SendTo(connID, event string, payload any) {
	frame, ok := encodeFrame(event, payload)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if c, ok := h.clients[connID]; ok {
		h.enqueue(c, frame)
	}
}

// SendToRoom delivers an event to every connection subscribed to roomID.
func (h *Hub) SendToRoom(roomID, event string, payload any) {
	frame, ok := encodeFrame(event, payload)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.rooms[roomID] {
		h.enqueue(c, frame)
	}
}

// Members returns the number of connections subscribed to roomID.
func (h *Hub) Members(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

func encodeFrame(event string, payload any) ([]byte, bool) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Hub: failed to encode %s payload: %v", event, err)
		return nil, false
	}
	frame, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		log.Printf("Hub: failed to encode %s frame: %v", event, err)
		return nil, false
	}
	return frame, true
}

// enqueue never blocks. A client whose queue is full is closed; its read
// loop then unregisters it.
func (h *Hub) enqueue(c *Client, frame []byte) {
	select {
	case c.send <- frame:
	case <-c.done:
	default:
		log.Printf("Hub: send buffer full for %s, closing connection", c.id)
		c.close()
	}
}

func (h *Hub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error from %s: %v", r.RemoteAddr, err)
		return
	}

	c := &Client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, h.opts.SendBuffer),
		done: make(chan struct{}),
	}
	if h.opts.EventRate > 0 {
		burst := max(h.opts.EventBurst, 1)
		c.limiter = rate.NewLimiter(rate.Limit(h.opts.EventRate), burst)
	}
	DebugLog("handleWebSocket: %s upgraded from %s", c.id, r.RemoteAddr)
	h.add(c)

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) readPump(c *Client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
			c.close()
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				DebugLog("readPump: %s closed: %v", c.id, err)
			}
			return
		}
		LogWSMessage("IN", c.id, string(message))

		if c.limiter != nil && !c.limiter.Allow() {
			if !c.throttled {
				c.throttled = true
				h.sendNotice(c, NoticeWarning, "Too many events, slow down")
			}
			continue
		}
		c.throttled = false

		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil || env.Event == "" {
			DebugLog("readPump: malformed frame from %s: %v", c.id, err)
			h.sendNotice(c, NoticeError, "Malformed message")
			continue
		}
		h.onEvent(c.id, env)
	}
}

func (h *Hub) writePump(c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Printf("WebSocket write error to %s: %v", c.id, err)
				c.close()
				return
			}
			LogWSMessage("OUT", c.id, string(frame))
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}
