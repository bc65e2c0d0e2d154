package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/WilsonWong800686/yys-autommation/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	ackTimeout     = 5 * time.Second
	keepAlive      = 60 * time.Second

	// quiesceMillis lets in-flight work finish on Disconnect.
	quiesceMillis = 1000
)

// Presence states on the system status topic.
const (
	PresenceOnline  = "online"
	PresenceOffline = "offline"
)

// Presence is the retained body of the system status topic. The broker
// publishes the offline variant itself when the bot drops off.
type Presence struct {
	State  string    `json:"status"`
	Bot    string    `json:"client_id"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"timestamp"`
}

func presence(state, bot, reason string) []byte {
	//nolint:errcheck // strings and a time always encode
	b, _ := json.Marshal(Presence{State: state, Bot: bot, Reason: reason, At: time.Now().UTC()})
	return b
}

// brokerURL returns the paho server URL for cfg.
func brokerURL(cfg config.MQTTConfig) string {
	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port)
}

// pahoOptions maps cfg onto paho options, including the offline will on
// the system status topic.
func pahoOptions(cfg config.MQTTConfig, topics Topics) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions().
		AddBroker(brokerURL(cfg)).
		SetClientID(cfg.Broker.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second).
		SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second).
		SetConnectTimeout(connectTimeout).
		SetKeepAlive(keepAlive).
		SetWill(topics.SystemStatus(),
			string(presence(PresenceOffline, cfg.Broker.ClientID, "unexpected_disconnect")), 1, true)

	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username).SetPassword(cfg.Auth.Password)
	}
	return opts
}

// wait blocks on tok for ackTimeout and wraps failures in kind.
func wait(tok pahomqtt.Token, kind error) error {
	if !tok.WaitTimeout(ackTimeout) {
		return fmt.Errorf("%w: no ack after %v", kind, ackTimeout)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("%w: %w", kind, err)
	}
	return nil
}
