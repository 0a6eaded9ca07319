package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"

	"github.com/nerrad567/gray-logic-zigbee/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-zigbee/internal/infrastructure/logging"
)

// Frame types exchanged with WebSocket clients.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"
)

// wsSendBufferSize is the number of frames queued per client before
// broadcasts to it are dropped.
const wsSendBufferSize = 256

// WSMessage is one frame sent to a client.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload selects channels and, optionally, devices.
//
// An empty Devices list means every device. Device names only narrow
// per-device channels such as device.state_changed.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
	Devices  []string `json:"devices,omitempty"`
}

// inboundFrame is a frame received from a client.
type inboundFrame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// =============================================================================
// Subscription filter
// =============================================================================

// subscriptionFilter decides which events a client receives.
type subscriptionFilter struct {
	mu       sync.RWMutex
	channels map[string]bool
	devices  map[string]bool
}

func newSubscriptionFilter() *subscriptionFilter {
	return &subscriptionFilter{channels: make(map[string]bool), devices: make(map[string]bool)}
}

// apply adds (or removes) the channels and devices in req.
func (f *subscriptionFilter) apply(req WSSubscribePayload, add bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range req.Channels {
		if add {
			f.channels[ch] = true
		} else {
			delete(f.channels, ch)
		}
	}
	for _, name := range req.Devices {
		if add {
			f.devices[name] = true
		} else {
			delete(f.devices, name)
		}
	}
}

// wants reports whether ev passes the filter.
func (f *subscriptionFilter) wants(ev Event) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if !f.channels[ev.Channel] {
		return false
	}
	return ev.Device == "" || len(f.devices) == 0 || f.devices[ev.Device]
}

// snapshot returns the sorted channels and devices for a response frame.
func (f *subscriptionFilter) snapshot() WSSubscribePayload {
	f.mu.RLock()
	defer f.mu.RUnlock()
	channels := lo.Keys(f.channels)
	devices := lo.Keys(f.devices)
	slices.Sort(channels)
	slices.Sort(devices)
	return WSSubscribePayload{Channels: channels, Devices: devices}
}

// =============================================================================
// Client
// =============================================================================

// wsClient is one connected WebSocket peer.
type wsClient struct {
	conn   *websocket.Conn
	filter *subscriptionFilter
	send   chan []byte

	mu     sync.Mutex
	closed bool
}

func newWSClient(conn *websocket.Conn) *wsClient {
	return &wsClient{
		conn:   conn,
		filter: newSubscriptionFilter(),
		send:   make(chan []byte, wsSendBufferSize),
	}
}

// enqueue queues frame for the writer. It returns false once the client is
// closed or its buffer is full.
func (c *wsClient) enqueue(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// shutdown closes the send queue so the writer exits. Idempotent.
func (c *wsClient) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *wsClient) reply(id, frameType string, payload any) {
	frame, err := json.Marshal(WSMessage{
		Type:      frameType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.enqueue(frame)
}

func (c *wsClient) replyError(id, message string) {
	c.reply(id, WSTypeError, map[string]string{"message": message})
}

// =============================================================================
// Hub
// =============================================================================

// Hub fans bridge events out to WebSocket clients.
type Hub struct {
	logger  *logging.Logger
	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

// NewHub creates an empty hub.
func NewHub(logger *logging.Logger) *Hub {
	return &Hub{logger: logger, clients: make(map[*wsClient]struct{})}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	clients := lo.Keys(h.clients)
	clear(h.clients)
	h.mu.Unlock()

	for _, c := range clients {
		c.shutdown()
		if c.conn != nil {
			c.conn.Close()
		}
	}
}

func (h *Hub) add(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n)
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	c.shutdown()
	h.logger.Debug("websocket client disconnected", "clients", n)
}

// Broadcast sends ev to every client whose filter accepts it.
//
// Returns:
//   - int: clients the event was queued for; slow clients are skipped
func (h *Hub) Broadcast(ev Event) int {
	frame, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: ev.Channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   ev.Payload,
	})
	if err != nil {
		h.logger.Error("encoding websocket event failed", "channel", ev.Channel, "device", ev.Device, "error", err)
		return 0
	}

	h.mu.RLock()
	clients := lo.Keys(h.clients)
	h.mu.RUnlock()

	queued, dropped := 0, 0
	for _, c := range clients {
		if !c.filter.wants(ev) {
			continue
		}
		if c.enqueue(frame) {
			queued++
		} else {
			dropped++
		}
	}
	if dropped > 0 {
		h.logger.Warn("websocket event dropped for slow clients", "channel", ev.Channel, "device", ev.Device, "clients", dropped)
	}
	return queued
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// =============================================================================
// Connection handling
// =============================================================================

// handleWebSocket upgrades the request and serves the client until it
// disconnects. Browser origins are checked against the CORS allow-list.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.isAllowedOrigin(origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := newWSClient(conn)
	s.hub.add(c)
	go writeLoop(c, s.wsCfg)
	s.readLoop(c)
}

// readLoop handles client frames until the connection fails or the peer
// goes quiet for longer than a ping interval plus the pong timeout.
func (s *Server) readLoop(c *wsClient) {
	defer func() {
		s.hub.remove(c)
		c.conn.Close()
	}()

	ping, pong := s.wsCfg.KeepAlive()
	idle := ping + pong
	extend := func(string) error { return c.conn.SetReadDeadline(time.Now().Add(idle)) }

	c.conn.SetReadLimit(int64(s.wsCfg.MaxMessageSize))
	//nolint:errcheck // a failed deadline surfaces as a read error
	extend("")
	c.conn.SetPongHandler(extend)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read failed", "error", err)
			}
			return
		}
		//nolint:errcheck // a failed deadline surfaces as a read error
		extend("")
		s.handleFrame(c, data)
	}
}

// writeLoop drains the client's queue and keeps the connection alive with
// pings. It exits when the queue is closed or a write fails.
func writeLoop(c *wsClient, cfg config.WebSocketConfig) {
	ping, writeWait := cfg.KeepAlive()
	ticker := time.NewTicker(ping)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		var (
			kind    = websocket.PingMessage
			payload []byte
		)
		select {
		case frame, ok := <-c.send:
			if !ok {
				//nolint:errcheck // peer may already be gone
				c.conn.WriteControl(websocket.CloseMessage, nil, time.Now().Add(writeWait))
				return
			}
			kind, payload = websocket.TextMessage, frame
		case <-ticker.C:
		}

		//nolint:errcheck // a failed deadline surfaces as a write error
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(kind, payload); err != nil {
			return
		}
	}
}

// handleFrame dispatches one client frame.
func (s *Server) handleFrame(c *wsClient, data []byte) {
	var in inboundFrame
	if err := json.Unmarshal(data, &in); err != nil {
		c.replyError("", "invalid JSON message")
		return
	}

	switch in.Type {
	case WSTypeSubscribe, WSTypeUnsubscribe:
		req, err := parseSubscription(in.Payload)
		if err != nil {
			c.replyError(in.ID, err.Error())
			return
		}
		c.filter.apply(req, in.Type == WSTypeSubscribe)
		s.logger.Debug("websocket subscription changed", "type", in.Type, "channels", req.Channels, "devices", req.Devices)
		c.reply(in.ID, WSTypeResponse, c.filter.snapshot())
	case WSTypePing:
		c.reply(in.ID, WSTypePong, nil)
	default:
		c.replyError(in.ID, "unknown message type: "+in.Type)
	}
}

// parseSubscription decodes a subscribe/unsubscribe payload and rejects
// unknown channels.
func parseSubscription(raw json.RawMessage) (WSSubscribePayload, error) {
	var req WSSubscribePayload
	if len(raw) == 0 {
		return req, fmt.Errorf("payload with channels is required")
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return req, fmt.Errorf("invalid subscription payload")
	}
	if len(req.Channels) == 0 {
		return req, fmt.Errorf("at least one channel is required")
	}
	for _, ch := range req.Channels {
		if !knownChannels[ch] {
			return req, fmt.Errorf("unknown channel %q", ch)
		}
	}
	return req, nil
}
