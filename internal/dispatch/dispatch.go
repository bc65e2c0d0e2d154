package dispatch

import (
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"image"
	"math"
	"math/rand"
	"time"

	"github.com/WilsonWong800686/yys-autommation/internal/catalog"
)

// InputSink delivers simulated input to a device.
type InputSink interface {
	// Tap touches the screen at (x, y).
	Tap(ctx context.Context, x, y int) error

	// Swipe drags from (x1, y1) to (x2, y2) over d.
	Swipe(ctx context.Context, x1, y1, x2, y2 int, d time.Duration) error
}

// Dispatcher turns decisions into randomised input.
//
// Every session owns its own Dispatcher. It is not safe for concurrent use.
type Dispatcher struct {
	sink   InputSink
	rng    *rand.Rand
	bounds image.Rectangle
}

// New creates a dispatcher with a seed drawn from crypto/rand.
func New(sink InputSink) (*Dispatcher, error) {
	seed, err := NewSeed()
	if err != nil {
		return nil, err
	}
	return NewSeeded(sink, seed), nil
}

// NewSeeded creates a dispatcher with a fixed seed.
func NewSeeded(sink InputSink, seed int64) *Dispatcher {
	return &Dispatcher{sink: sink, rng: rand.New(rand.NewSource(seed))}
}

// NewSeed generates a random seed using crypto/rand.
func NewSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

// SetSink replaces the input sink, used when a session rebinds to another device.
func (d *Dispatcher) SetSink(sink InputSink) { d.sink = sink }

// SetBounds clamps every generated point into r. A zero rectangle disables clamping.
func (d *Dispatcher) SetBounds(r image.Rectangle) { d.bounds = r }

// Duration draws uniformly from the closed window.
func (d *Dispatcher) Duration(w catalog.Window) time.Duration {
	if w.Max <= w.Min {
		return w.Min
	}
	return w.Min + time.Duration(d.rng.Int63n(int64(w.Max-w.Min)+1))
}

// Int draws uniformly from the closed range.
func (d *Dispatcher) Int(r catalog.Range) int {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + d.rng.Intn(r.Max-r.Min+1)
}

// Chance reports true with probability p.
func (d *Dispatcher) Chance(p float64) bool {
	if p <= 0 {
		return false
	}
	return d.rng.Float64() < p
}

// Jitter offsets center by a radius drawn from r at a uniform angle.
func (d *Dispatcher) Jitter(center image.Point, r catalog.Range) image.Point {
	radius := float64(d.Int(r))
	angle := d.rng.Float64() * 2 * math.Pi
	p := image.Point{
		X: center.X + int(radius*math.Cos(angle)),
		Y: center.Y + int(radius*math.Sin(angle)),
	}
	return d.clamp(p)
}

// Tap taps a jittered point around center and returns the point touched.
func (d *Dispatcher) Tap(ctx context.Context, center image.Point, r catalog.Range) (image.Point, error) {
	p := d.Jitter(center, r)
	if err := d.sink.Tap(ctx, p.X, p.Y); err != nil {
		return p, fmt.Errorf("%w at %v: %w", ErrTapFailed, p, err)
	}
	return p, nil
}

// TapArea taps a uniform point inside the square center ± radius.
func (d *Dispatcher) TapArea(ctx context.Context, center image.Point, radius int) (image.Point, error) {
	p := image.Point{
		X: center.X + d.Int(catalog.Range{Min: 0, Max: 2 * radius}) - radius,
		Y: center.Y + d.Int(catalog.Range{Min: 0, Max: 2 * radius}) - radius,
	}
	p = d.clamp(p)
	if err := d.sink.Tap(ctx, p.X, p.Y); err != nil {
		return p, fmt.Errorf("%w at %v: %w", ErrTapFailed, p, err)
	}
	return p, nil
}

// SwipePlan is a drawn upward swipe.
type SwipePlan struct {
	From     image.Point
	To       image.Point
	Duration time.Duration
}

// PlanSwipe draws distance and duration for an upward swipe from center.
// Drawing is separate from SwipeUp so the caller can check the duration
// against its time budget first.
func (d *Dispatcher) PlanSwipe(center image.Point, s catalog.Swipe) SwipePlan {
	dist := d.Int(s.Distance)
	to := d.clamp(image.Point{X: center.X, Y: center.Y - dist})
	return SwipePlan{From: center, To: to, Duration: d.Duration(s.Duration)}
}

// SwipeUp performs a planned swipe.
func (d *Dispatcher) SwipeUp(ctx context.Context, plan SwipePlan) error {
	if err := d.sink.Swipe(ctx, plan.From.X, plan.From.Y, plan.To.X, plan.To.Y, plan.Duration); err != nil {
		return fmt.Errorf("%w: %w", ErrSwipeFailed, err)
	}
	return nil
}

func (d *Dispatcher) clamp(p image.Point) image.Point {
	if d.bounds.Empty() {
		return p
	}
	p.X = min(max(p.X, d.bounds.Min.X), d.bounds.Max.X-1)
	p.Y = min(max(p.Y, d.bounds.Min.Y), d.bounds.Max.Y-1)
	return p
}
