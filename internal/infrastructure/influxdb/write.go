package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementTick = "tick"
	MeasurementTap  = "tap"
)

// TickMetric describes one engine tick.
type TickMetric struct {
	Session        string
	Device         string
	Phase          string
	Duration       time.Duration
	Candidates     int
	BudgetExceeded bool
	At             time.Time
}

// TapMetric describes one dispatched tap.
type TapMetric struct {
	Session    string
	Device     string
	Control    string
	X, Y       int
	Confidence float64
	At         time.Time
}

// WriteTick records a tick.
func (c *Client) WriteTick(m TickMetric) { c.write(tickPoint(m)) }

// WriteTap records a tap.
func (c *Client) WriteTap(m TapMetric) { c.write(tapPoint(m)) }

func tickPoint(m TickMetric) *write.Point {
	return write.NewPoint(
		MeasurementTick,
		map[string]string{
			"session": m.Session,
			"device":  m.Device,
			"phase":   m.Phase,
		},
		map[string]any{
			"duration_ms":     m.Duration.Milliseconds(),
			"candidates":      m.Candidates,
			"budget_exceeded": m.BudgetExceeded,
		},
		stamp(m.At),
	)
}

func tapPoint(m TapMetric) *write.Point {
	return write.NewPoint(
		MeasurementTap,
		map[string]string{
			"session": m.Session,
			"device":  m.Device,
			"control": m.Control,
		},
		map[string]any{
			"x":          m.X,
			"y":          m.Y,
			"confidence": m.Confidence,
		},
		stamp(m.At),
	)
}

func stamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
