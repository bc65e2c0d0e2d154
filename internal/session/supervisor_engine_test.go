package session

import (
	"context"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/WilsonWong800686/yys-autommation/internal/catalog"
	"github.com/WilsonWong800686/yys-autommation/internal/dispatch"
	"github.com/WilsonWong800686/yys-autommation/internal/engine"
	"github.com/WilsonWong800686/yys-autommation/internal/recognizer"
)

// frameDevice returns a blank frame so the real engine idles instead of
// counting capture failures.
type frameDevice struct{ serial string }

func (d frameDevice) Serial() string { return d.serial }

func (frameDevice) Capture(context.Context) (image.Image, error) {
	return image.NewGray(image.Rect(0, 0, 64, 64)), nil
}

func (frameDevice) Tap(context.Context, int, int) error { return nil }

func (frameDevice) Swipe(context.Context, int, int, int, int, time.Duration) error { return nil }

func (frameDevice) Probe(context.Context) error { return nil }

type blindDetector struct{}

func (blindDetector) Detect(context.Context, image.Image, []string) ([]recognizer.Candidate, error) {
	return nil, nil
}

// newEngineSupervisor wires a real engine under a supervisor on the wall
// clock, as the fleet does.
func newEngineSupervisor(t *testing.T, dev engine.Device, sink engine.EventSink) *Supervisor {
	t.Helper()
	cat, err := catalog.Builtin("yuhun", "")
	if err != nil {
		t.Fatalf("catalog.Builtin() error = %v", err)
	}
	disp, err := dispatch.New(dev)
	if err != nil {
		t.Fatalf("dispatch.New() error = %v", err)
	}

	ecfg := engine.DefaultConfig()
	ecfg.TickBudget = 20 * time.Millisecond
	ecfg.IdleSleep = time.Millisecond
	ecfg.GatePoll = time.Millisecond
	ecfg.ExploreChance = 0

	cfg := Config{
		ID:           "s1",
		Module:       "yuhun",
		Duration:     300 * time.Millisecond,
		PauseSleep:   time.Millisecond,
		ErrorBackoff: time.Millisecond,
	}
	eng := engine.New(ecfg, cat, blindDetector{}, dev, disp)
	eng.SetEventSink(Tagged{Session: cfg.ID, Next: sink})

	sup := New(cfg, eng, disp)
	sup.SetEventSink(Tagged{Session: cfg.ID, Next: sink})
	return sup
}

// ─── Real engine ────────────────────────────────────────────────────

// Pause, Resume and RequestRebind are driven from a second goroutine while
// the session ticks and switches devices. Run with -race: the controlling
// goroutine must only flip signals and never touch the engine.
func TestRun_ControlWhileRebinding(t *testing.T) {
	sink := &mockSink{}
	a, b := frameDevice{serial: "emu-a"}, frameDevice{serial: "emu-b"}
	sup := newEngineSupervisor(t, a, sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan Result, 1)
	go func() { done <- sup.Run(ctx) }()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if i%2 == 0 {
				sup.RequestRebind(b)
			} else {
				sup.RequestRebind(a)
			}
			sup.Pause()
			sup.Resume()
			_ = sup.Snapshot()
			time.Sleep(time.Millisecond)
		}
	}()

	var res Result
	select {
	case res = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return")
	}
	cancel()
	wg.Wait()

	if res.Err != nil {
		t.Fatalf("Run() error = %v", res.Err)
	}
	if !sink.has(EventRebound) {
		t.Error("no device switch happened during the run")
	}
	if !sink.has(EventPaused) || !sink.has(EventResumed) {
		t.Error("pause/resume events missing")
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	for _, ev := range sink.events {
		if ev.Device != "emu-a" && ev.Device != "emu-b" {
			t.Errorf("event %s device = %q, want emu-a or emu-b", ev.Type, ev.Device)
		}
	}
}

func TestEmit_UsesSnapshotDevice(t *testing.T) {
	h := newHarness(t, Config{})
	h.sup.update(func(sn *Snapshot) { sn.Device = "emu-9" })

	h.sup.Pause()

	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	if len(h.sink.events) != 1 || h.sink.events[0].Device != "emu-9" {
		t.Errorf("events = %+v, want one paused event on emu-9", h.sink.events)
	}
}
