package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/WilsonWong800686/yys-autommation/internal/infrastructure/config"
)

// maxPayloadSize caps one outbound message.
const maxPayloadSize = 1 << 20

// Logger receives delivery failures. logging.Logger satisfies it.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Client is the operator channel connection: it publishes telemetry and
// presence, and routes command messages to handlers.
//
// Thread Safety: all methods are safe for concurrent use. Subscriptions
// survive reconnects.
type Client struct {
	paho   pahomqtt.Client
	cfg    config.MQTTConfig
	topics Topics
	routes *routeTable
	online atomic.Bool

	logMu  sync.RWMutex
	logger Logger
}

// Connect dials the broker and returns once the first connection is up.
// Later drops are retried in the background.
//
// Parameters:
//   - cfg: the mqtt section of the configuration
//
// Returns:
//   - *Client: connected client
//   - error: wraps ErrConnectionFailed
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := newClient(cfg)

	opts := pahoOptions(cfg, c.topics).
		SetDefaultPublishHandler(func(_ pahomqtt.Client, m pahomqtt.Message) {
			c.deliver(m.Topic(), m.Payload())
		}).
		SetOnConnectHandler(func(pahomqtt.Client) { c.onConnect() }).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			c.online.Store(false)
			c.logWarn("mqtt connection lost", "broker", brokerURL(cfg), "error", err)
		})

	c.paho = pahomqtt.NewClient(opts)
	tok := c.paho.Connect()
	if !tok.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("%w: %s: no answer after %v", ErrConnectionFailed, brokerURL(cfg), connectTimeout)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, brokerURL(cfg), err)
	}
	// OnConnect fires asynchronously; publishing may start now.
	c.online.Store(true)
	return c, nil
}

func newClient(cfg config.MQTTConfig) *Client {
	return &Client{cfg: cfg, topics: Topics{Prefix: cfg.TopicPrefix}, routes: newRouteTable()}
}

// Topics returns the topic builder for the configured prefix.
func (c *Client) Topics() Topics { return c.topics }

// onConnect restores subscriptions and announces presence.
func (c *Client) onConnect() {
	c.online.Store(true)
	if filters := c.routes.filters(); len(filters) > 0 {
		c.paho.SubscribeMultiple(filters, nil)
	}
	c.paho.Publish(c.topics.SystemStatus(), c.qos(), true,
		presence(PresenceOnline, c.cfg.Broker.ClientID, ""))
}

// Close retracts presence and disconnects.
func (c *Client) Close() error {
	if c.paho == nil {
		return nil
	}
	if c.IsConnected() {
		tok := c.paho.Publish(c.topics.SystemStatus(), c.qos(), true,
			presence(PresenceOffline, c.cfg.Broker.ClientID, "graceful_shutdown"))
		tok.WaitTimeout(ackTimeout)
	}
	c.paho.Disconnect(quiesceMillis)
	c.online.Store(false)
	return nil
}

// IsConnected reports whether the broker connection is up.
func (c *Client) IsConnected() bool {
	return c.paho != nil && c.online.Load() && c.paho.IsConnected()
}

// HealthCheck returns ErrNotConnected while the connection is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// SetLogger sets where handler failures are reported.
func (c *Client) SetLogger(l Logger) {
	c.logMu.Lock()
	c.logger = l
	c.logMu.Unlock()
}

func (c *Client) logWarn(msg string, args ...any) {
	c.logMu.RLock()
	l := c.logger
	c.logMu.RUnlock()
	if l != nil {
		l.Warn(msg, args...)
	}
}

func (c *Client) logError(msg string, args ...any) {
	c.logMu.RLock()
	l := c.logger
	c.logMu.RUnlock()
	if l != nil {
		l.Error(msg, args...)
	}
}

func (c *Client) qos() byte { return byte(c.cfg.QoS) }

// Publish sends payload to topic and waits for the broker's ack.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	switch {
	case topic == "":
		return ErrInvalidTopic
	case qos > 2:
		return ErrInvalidQoS
	case len(payload) > maxPayloadSize:
		return fmt.Errorf("%w: %d bytes, limit %d", ErrPayloadTooLarge, len(payload), maxPayloadSize)
	case !c.IsConnected():
		return ErrNotConnected
	}
	return wait(c.paho.Publish(topic, qos, retained, payload), ErrPublishFailed)
}

// PublishJSON encodes v and publishes it at the configured QoS.
func (c *Client) PublishJSON(topic string, v any, retained bool) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: encoding %s: %w", ErrPublishFailed, topic, err)
	}
	return c.Publish(topic, payload, c.qos(), retained)
}

// Subscribe routes messages matching filter (wildcards allowed) to h. The
// route is kept across reconnects once the broker has acked it.
func (c *Client) Subscribe(filter string, qos byte, h MessageHandler) error {
	switch {
	case filter == "":
		return ErrInvalidTopic
	case qos > 2:
		return ErrInvalidQoS
	case h == nil:
		return fmt.Errorf("%w: nil handler for %s", ErrSubscribeFailed, filter)
	case !c.IsConnected():
		return ErrNotConnected
	}

	c.routes.put(route{filter: filter, qos: qos, handler: h})
	if err := wait(c.paho.Subscribe(filter, qos, nil), ErrSubscribeFailed); err != nil {
		c.routes.drop(filter)
		return err
	}
	return nil
}

// HasSubscription reports whether filter has a live route.
func (c *Client) HasSubscription(filter string) bool { return c.routes.has(filter) }

// deliver runs every handler routed for topic, isolating panics.
func (c *Client) deliver(topic string, payload []byte) {
	for _, h := range c.routes.lookup(topic) {
		c.invoke(h, topic, payload)
	}
}

func (c *Client) invoke(h MessageHandler, topic string, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.logError("mqtt handler panicked", "topic", topic, "panic", r)
		}
	}()
	if err := h(topic, payload); err != nil {
		c.logWarn("mqtt message rejected", "topic", topic, "error", err)
	}
}
