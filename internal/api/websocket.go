package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Message types exchanged with panel clients.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypeSnapshot    = "snapshot"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"
)

// clientQueueSize is the per-client outbound buffer.
const clientQueueSize = 256

// WSMessage is one frame on the panel socket. Broadcasts carry the
// channel in EventType; requests and their responses share ID.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload names channels for subscribe, unsubscribe and
// snapshot requests.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// WSClient is one connected panel.
type WSClient struct {
	hub  *Hub
	conn *websocket.Conn

	queue     chan []byte
	closeOnce sync.Once

	mu       sync.RWMutex
	closed   bool
	channels map[string]struct{}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are vetted by the CORS middleware.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleWebSocket upgrades the request to a panel socket.
//
// ?channels=events,status subscribes on connect. Unknown channel names are
// ignored.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeUnavailable(w, "websocket hub not running")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := &WSClient{
		hub:      s.hub,
		conn:     conn,
		queue:    make(chan []byte, clientQueueSize),
		channels: make(map[string]struct{}),
	}
	accepted, _ := c.subscribe(splitChannels(r.URL.Query().Get("channels")))

	s.hub.add(c)
	c.sendSnapshots(accepted)

	go c.writeLoop()
	go c.readLoop()
}

func splitChannels(raw string) []string {
	var out []string
	for _, ch := range strings.Split(raw, ",") {
		if ch = strings.TrimSpace(ch); ch != "" {
			out = append(out, ch)
		}
	}
	return out
}

func (c *WSClient) timeouts() (ping, pong time.Duration) {
	return time.Duration(c.hub.cfg.PingInterval) * time.Second,
		time.Duration(c.hub.cfg.PongTimeout) * time.Second
}

func (c *WSClient) readLoop() {
	defer c.shutdown()

	ping, pong := c.timeouts()
	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(ping + pong)) }

	c.conn.SetReadLimit(int64(c.hub.cfg.MaxMessageSize))
	//nolint:errcheck // a failed deadline surfaces on the next read
	extend()
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("panel socket read failed", "error", err)
			}
			return
		}
		// Browsers do not always answer protocol pings; any frame counts.
		//nolint:errcheck // a failed deadline surfaces on the next read
		extend()
		c.handle(data)
	}
}

func (c *WSClient) writeLoop() {
	ping, pong := c.timeouts()
	ticker := time.NewTicker(ping)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		//nolint:errcheck // a failed deadline surfaces on the write
		c.conn.SetWriteDeadline(time.Now().Add(pong))
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case data, ok := <-c.queue:
			if !ok {
				//nolint:errcheck // peer may already be gone
				write(websocket.CloseMessage, nil)
				return
			}
			if err := write(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// shutdown unregisters the client and closes its queue once.
func (c *WSClient) shutdown() {
	c.hub.remove(c)
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.queue)
		c.mu.Unlock()
		c.conn.Close()
	})
}

// enqueue hands data to the write loop. It reports false when the client
// is gone or its queue is full.
func (c *WSClient) enqueue(data []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.queue <- data:
		return true
	default:
		return false
	}
}

func (c *WSClient) subscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.channels[channel]
	return ok
}

// subscribe adds the known channels and returns them split from the
// rejected ones.
func (c *WSClient) subscribe(names []string) (accepted, rejected []string) {
	for _, ch := range names {
		if c.hub.Known(ch) {
			accepted = append(accepted, ch)
		} else {
			rejected = append(rejected, ch)
		}
	}
	c.mu.Lock()
	for _, ch := range accepted {
		c.channels[ch] = struct{}{}
	}
	c.mu.Unlock()
	return accepted, rejected
}

func (c *WSClient) unsubscribe(names []string) {
	c.mu.Lock()
	for _, ch := range names {
		delete(c.channels, ch)
	}
	c.mu.Unlock()
}

func (c *WSClient) sendSnapshots(channels []string) {
	for _, ch := range channels {
		if data := c.hub.snapshot(ch); data != nil {
			c.enqueue(data)
		}
	}
}

func (c *WSClient) handle(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.reply("", WSTypeError, map[string]string{"message": "invalid JSON message"})
		return
	}

	switch msg.Type {
	case WSTypePing:
		c.reply(msg.ID, WSTypePong, nil)
	case WSTypeSubscribe, WSTypeUnsubscribe, WSTypeSnapshot:
		var req WSSubscribePayload
		if raw, err := json.Marshal(msg.Payload); err != nil || json.Unmarshal(raw, &req) != nil {
			c.reply(msg.ID, WSTypeError, map[string]string{"message": "invalid " + msg.Type + " payload"})
			return
		}
		c.handleChannels(msg, req.Channels)
	default:
		c.reply(msg.ID, WSTypeError, map[string]string{"message": "unknown message type: " + msg.Type})
	}
}

func (c *WSClient) handleChannels(msg WSMessage, names []string) {
	switch msg.Type {
	case WSTypeSubscribe:
		accepted, rejected := c.subscribe(names)
		resp := map[string]any{"subscribed": accepted}
		if len(rejected) > 0 {
			resp["rejected"] = rejected
		}
		c.reply(msg.ID, WSTypeResponse, resp)
		c.sendSnapshots(accepted)
	case WSTypeUnsubscribe:
		c.unsubscribe(names)
		c.reply(msg.ID, WSTypeResponse, map[string]any{"unsubscribed": names})
	case WSTypeSnapshot:
		c.sendSnapshots(names)
	}
}

func (c *WSClient) reply(id, msgType string, payload any) {
	data, err := encodeMessage(WSMessage{Type: msgType, ID: id, Payload: payload})
	if err != nil {
		return
	}
	c.enqueue(data)
}
