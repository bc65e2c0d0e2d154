package mqtt

import "fmt"

// DefaultTopicPrefix is the root of every yysbot topic.
const DefaultTopicPrefix = "yysbot"

// Topics builds yysbot MQTT topics under a common prefix.
// The zero value uses DefaultTopicPrefix.
//
//	topics := mqtt.Topics{Prefix: "yysbot"}
//	topics.SessionStatus("a1b2")
//	// Returns: "yysbot/session/a1b2/status"
type Topics struct {
	Prefix string
}

func (t Topics) root() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// SystemStatus carries the retained online/offline status and the LWT.
//
// Example: yysbot/system/status
func (t Topics) SystemStatus() string {
	return t.root() + "/system/status"
}

// FleetStatus is the retained status snapshot of the whole fleet.
//
// Example: yysbot/fleet/status
func (t Topics) FleetStatus() string {
	return t.root() + "/fleet/status"
}

// SessionStatus is the retained status snapshot of one session.
//
// Example: yysbot/session/a1b2/status
func (t Topics) SessionStatus(sessionID string) string {
	return fmt.Sprintf("%s/session/%s/status", t.root(), sessionID)
}

// SessionEvent carries tap, abort and gate events of one session.
//
// Example: yysbot/session/a1b2/event
func (t Topics) SessionEvent(sessionID string) string {
	return fmt.Sprintf("%s/session/%s/event", t.root(), sessionID)
}

// Command addresses one session (by session ID or device serial).
//
// Example: yysbot/command/a1b2
func (t Topics) Command(target string) string {
	return fmt.Sprintf("%s/command/%s", t.root(), target)
}

// CommandAll addresses every session.
//
// Example: yysbot/command/all
func (t Topics) CommandAll() string {
	return t.root() + "/command/all"
}

// AllCommands matches every command topic.
//
// Example: yysbot/command/#
func (t Topics) AllCommands() string {
	return t.root() + "/command/#"
}

// AllSessionEvents matches the event topic of every session.
//
// Example: yysbot/session/+/event
func (t Topics) AllSessionEvents() string {
	return t.root() + "/session/+/event"
}

// CommandTarget extracts the target from a command topic.
// It returns false when topic is not a command topic under this prefix.
func (t Topics) CommandTarget(topic string) (string, bool) {
	prefix := t.root() + "/command/"
	if len(topic) <= len(prefix) || topic[:len(prefix)] != prefix {
		return "", false
	}
	return topic[len(prefix):], true
}
