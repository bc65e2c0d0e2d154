package api

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/WilsonWong800686/yys-autommation/internal/infrastructure/config"
	"github.com/WilsonWong800686/yys-autommation/internal/infrastructure/logging"
	"github.com/WilsonWong800686/yys-autommation/internal/telemetry"
)

// SnapshotFunc returns the current state of a channel. A client that
// subscribes to the channel receives it before any broadcast.
type SnapshotFunc func() any

// HubStats counts hub traffic since start.
type HubStats struct {
	Clients   int    `json:"connected_clients"`
	Delivered uint64 `json:"delivered"`
	Dropped   uint64 `json:"dropped"`
}

// Hub fans telemetry out to panel WebSocket clients. It satisfies the
// telemetry hub target.
//
// Thread Safety: all methods are safe for concurrent use.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu        sync.RWMutex
	clients   map[*WSClient]struct{}
	snapshots map[string]SnapshotFunc

	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// NewHub creates a hub serving the events and status channels.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
		snapshots: map[string]SnapshotFunc{
			telemetry.ChannelEvents: nil,
			telemetry.ChannelStatus: nil,
		},
	}
}

// SetSnapshot registers the snapshot source of channel.
func (h *Hub) SetSnapshot(channel string, fn SnapshotFunc) {
	h.mu.Lock()
	h.snapshots[channel] = fn
	h.mu.Unlock()
}

// Known reports whether clients may subscribe to channel.
func (h *Hub) Known(channel string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.snapshots[channel]
	return ok
}

// snapshot returns the encoded current state of channel, or nil.
func (h *Hub) snapshot(channel string) []byte {
	h.mu.RLock()
	fn := h.snapshots[channel]
	h.mu.RUnlock()
	if fn == nil {
		return nil
	}
	data, err := encodeMessage(WSMessage{Type: WSTypeEvent, EventType: channel, Payload: fn()})
	if err != nil {
		h.logger.Error("encoding channel snapshot", "channel", channel, "error", err)
		return nil
	}
	return data
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*WSClient]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.shutdown()
	}
	if len(clients) > 0 {
		h.logger.Debug("websocket hub closed", "clients", len(clients))
	}
}

func (h *Hub) add(c *WSClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("panel client connected", "clients", n)
}

// remove drops c and reports whether it was still registered. Only the
// caller that removed it closes its queue.
func (h *Hub) remove(c *WSClient) bool {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	if ok {
		h.logger.Debug("panel client disconnected", "clients", n)
	}
	return ok
}

// Broadcast sends payload to every client subscribed to channel. Clients
// with a full queue miss the message.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := encodeMessage(WSMessage{Type: WSTypeEvent, EventType: channel, Payload: payload})
	if err != nil {
		h.logger.Error("encoding broadcast", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.subscribed(channel) {
			continue
		}
		if c.enqueue(data) {
			h.delivered.Add(1)
		} else {
			h.dropped.Add(1)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stats returns the hub counters.
func (h *Hub) Stats() HubStats {
	return HubStats{
		Clients:   h.ClientCount(),
		Delivered: h.delivered.Load(),
		Dropped:   h.dropped.Load(),
	}
}

func encodeMessage(msg WSMessage) ([]byte, error) {
	if msg.Timestamp == "" {
		msg.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	return json.Marshal(msg)
}
