package telemetry

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/WilsonWong800686/yys-autommation/internal/engine"
	"github.com/WilsonWong800686/yys-autommation/internal/fleet"
	"github.com/WilsonWong800686/yys-autommation/internal/history"
	"github.com/WilsonWong800686/yys-autommation/internal/infrastructure/influxdb"
	"github.com/WilsonWong800686/yys-autommation/internal/infrastructure/mqtt"
)

// queueSize is the buffer of pending items. Items beyond it are dropped.
const queueSize = 1024

// storeTimeout bounds one history write.
const storeTimeout = 5 * time.Second

// Hub channels.
const (
	ChannelEvents = "events"
	ChannelStatus = "status"
)

// Logger defines the logging interface used by the fan-out.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// EventStore persists session events.
type EventStore interface {
	AppendEvent(ctx context.Context, ev *history.Event) error
}

// Publisher is the part of the MQTT client the fan-out needs.
type Publisher interface {
	Topics() mqtt.Topics
	PublishJSON(topic string, v any, retained bool) error
}

// MetricsWriter records time-series points.
type MetricsWriter interface {
	WriteTick(m influxdb.TickMetric)
	WriteTap(m influxdb.TapMetric)
}

// Broadcaster pushes messages to WebSocket subscribers.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// Targets are the destinations of the fan-out. nil targets are skipped.
type Targets struct {
	Store   EventStore
	MQTT    Publisher
	Metrics MetricsWriter
	Hub     Broadcaster
}

type itemKind int

const (
	kindEvent itemKind = iota
	kindTick
	kindStatus
)

type item struct {
	kind    itemKind
	event   engine.Event
	session string
	device  string
	outcome engine.Outcome
	status  fleet.Status
}

// Fanout implements engine.EventSink, session.Observer and
// fleet.StatusListener.
//
// Thread Safety: Emit, Tick, PublishStatus and Dropped are safe for
// concurrent use. Run must be called once.
type Fanout struct {
	targets Targets
	logger  Logger
	queue   chan item
	dropped atomic.Int64
}

// New creates a fan-out to targets.
func New(targets Targets) *Fanout {
	return &Fanout{
		targets: targets,
		logger:  noopLogger{},
		queue:   make(chan item, queueSize),
	}
}

// SetLogger sets the logger for the fan-out.
func (f *Fanout) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	f.logger = logger
}

// Emit implements engine.EventSink.
func (f *Fanout) Emit(ev engine.Event) {
	f.enqueue(item{kind: kindEvent, event: ev})
}

// Tick implements session.Observer.
func (f *Fanout) Tick(sessionID, device string, out engine.Outcome) {
	f.enqueue(item{kind: kindTick, session: sessionID, device: device, outcome: out})
}

// PublishStatus implements fleet.StatusListener.
func (f *Fanout) PublishStatus(st fleet.Status) {
	f.enqueue(item{kind: kindStatus, status: st})
}

// Dropped returns the number of items lost to a full queue.
func (f *Fanout) Dropped() int64 { return f.dropped.Load() }

func (f *Fanout) enqueue(it item) {
	select {
	case f.queue <- it:
	default:
		if f.dropped.Add(1) == 1 {
			f.logger.Warn("telemetry queue full, dropping items")
		}
	}
}

// Run writes queued items until ctx is cancelled, then flushes what is
// left in the queue.
func (f *Fanout) Run(ctx context.Context) {
	for {
		select {
		case it := <-f.queue:
			f.write(it)
		case <-ctx.Done():
			for {
				select {
				case it := <-f.queue:
					f.write(it)
				default:
					if n := f.Dropped(); n > 0 {
						f.logger.Warn("telemetry items dropped", "count", n)
					}
					return
				}
			}
		}
	}
}

func (f *Fanout) write(it item) {
	switch it.kind {
	case kindEvent:
		f.writeEvent(it.event)
	case kindTick:
		f.writeTick(it.session, it.device, it.outcome)
	case kindStatus:
		f.writeStatus(it.status)
	}
}

func (f *Fanout) writeEvent(ev engine.Event) {
	if f.targets.Store != nil && ev.Session != "" {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		err := f.targets.Store.AppendEvent(ctx, historyEvent(ev))
		cancel()
		if err != nil {
			f.logger.Error("storing event", "session", ev.Session, "type", ev.Type, "error", err)
		}
	}

	if f.targets.MQTT != nil && ev.Session != "" {
		topic := f.targets.MQTT.Topics().SessionEvent(ev.Session)
		if err := f.targets.MQTT.PublishJSON(topic, ev, false); err != nil {
			f.logger.Debug("publishing event", "topic", topic, "error", err)
		}
	}

	if f.targets.Metrics != nil && ev.Type == engine.EventTap {
		f.targets.Metrics.WriteTap(influxdb.TapMetric{
			Session:    ev.Session,
			Device:     ev.Device,
			Control:    ev.Control,
			X:          ev.Point.X,
			Y:          ev.Point.Y,
			Confidence: ev.Confidence,
			At:         ev.At,
		})
	}

	if f.targets.Hub != nil {
		f.targets.Hub.Broadcast(ChannelEvents, ev)
	}
}

func (f *Fanout) writeTick(sessionID, device string, out engine.Outcome) {
	if f.targets.Metrics == nil {
		return
	}
	f.targets.Metrics.WriteTick(influxdb.TickMetric{
		Session:        sessionID,
		Device:         device,
		Phase:          string(out.Phase),
		Duration:       out.Elapsed,
		Candidates:     out.Candidates,
		BudgetExceeded: out.BudgetExceeded,
		At:             out.Started,
	})
}

func (f *Fanout) writeStatus(st fleet.Status) {
	if f.targets.MQTT != nil {
		topics := f.targets.MQTT.Topics()
		if err := f.targets.MQTT.PublishJSON(topics.FleetStatus(), st, true); err != nil {
			f.logger.Debug("publishing fleet status", "error", err)
		}
		for _, sn := range st.Sessions {
			if err := f.targets.MQTT.PublishJSON(topics.SessionStatus(sn.ID), sn, true); err != nil {
				f.logger.Debug("publishing session status", "session", sn.ID, "error", err)
			}
		}
	}

	if f.targets.Hub != nil {
		f.targets.Hub.Broadcast(ChannelStatus, st)
	}
}

// historyEvent converts an engine event into a history entry. Detail
// carries the free text, or the tap point when there is none.
func historyEvent(ev engine.Event) *history.Event {
	detail := ev.Detail
	if detail == "" && (ev.Type == engine.EventTap || ev.Type == engine.EventExplore) {
		detail = fmt.Sprintf("%d,%d", ev.Point.X, ev.Point.Y)
	}
	return &history.Event{
		SessionID: ev.Session,
		Type:      string(ev.Type),
		Control:   ev.Control,
		Detail:    detail,
		CreatedAt: ev.At,
	}
}
