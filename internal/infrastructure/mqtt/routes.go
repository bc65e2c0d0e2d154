package mqtt

import (
	"sort"
	"strings"
	"sync"
)

// MessageHandler handles one inbound message. Handlers run on paho's
// delivery goroutine and should return quickly.
type MessageHandler func(topic string, payload []byte) error

type route struct {
	filter  string
	qos     byte
	handler MessageHandler
}

// routeTable maps topic filters to handlers. Every subscription shares
// paho's default handler, which looks the route up here.
type routeTable struct {
	mu     sync.RWMutex
	routes map[string]route
}

func newRouteTable() *routeTable {
	return &routeTable{routes: make(map[string]route)}
}

func (t *routeTable) put(r route) {
	t.mu.Lock()
	t.routes[r.filter] = r
	t.mu.Unlock()
}

func (t *routeTable) drop(filter string) {
	t.mu.Lock()
	delete(t.routes, filter)
	t.mu.Unlock()
}

func (t *routeTable) has(filter string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.routes[filter]
	return ok
}

// filters returns every filter with its QoS, for resubscribing.
func (t *routeTable) filters() map[string]byte {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]byte, len(t.routes))
	for f, r := range t.routes {
		out[f] = r.qos
	}
	return out
}

// lookup returns the handlers whose filter matches topic, in filter order.
func (t *routeTable) lookup(topic string) []MessageHandler {
	t.mu.RLock()
	var hit []route
	for _, r := range t.routes {
		if matchTopic(r.filter, topic) {
			hit = append(hit, r)
		}
	}
	t.mu.RUnlock()

	sort.Slice(hit, func(i, j int) bool { return hit[i].filter < hit[j].filter })
	out := make([]MessageHandler, len(hit))
	for i, r := range hit {
		out[i] = r.handler
	}
	return out
}

// matchTopic reports whether topic matches filter, honouring the + and #
// wildcards.
func matchTopic(filter, topic string) bool {
	fs := strings.Split(filter, "/")
	ts := strings.Split(topic, "/")
	for i, f := range fs {
		switch {
		case f == "#":
			return i == len(fs)-1
		case i >= len(ts):
			return false
		case f != "+" && f != ts[i]:
			return false
		}
	}
	return len(fs) == len(ts)
}
