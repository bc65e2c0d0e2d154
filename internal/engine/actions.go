package engine

import (
	"context"
	"image"

	"github.com/WilsonWong800686/yys-autommation/internal/catalog"
	"github.com/WilsonWong800686/yys-autommation/internal/recognizer"
)

// act dispatches the chosen candidate according to its kind.
func (e *Engine) act(ctx context.Context, t *tick, ctl catalog.Control, c recognizer.Candidate) error {
	if t.overBudget() {
		return nil
	}

	switch ctl.Kind {
	case catalog.KindTimed:
		wait := e.disp.Duration(ctl.PreWait)
		if wait > t.remaining() {
			t.out.BudgetExceeded = true
			e.logger.Debug("timed control abandoned", "control", ctl.Name, "wait", wait)
			return nil
		}
		if err := e.clock.Sleep(ctx, wait); err != nil {
			return err
		}
		if t.overBudget() {
			return nil
		}
		if err := e.tapPrimary(ctx, t, ctl, c); err != nil {
			return err
		}

	case catalog.KindGateTrigger:
		if err := e.tapPrimary(ctx, t, ctl, c); err != nil {
			return err
		}
		e.armGate(ctl)
		return nil

	case catalog.KindSwipe:
		if ctl.Swipe == nil {
			return e.tapPrimary(ctx, t, ctl, c)
		}
		plan := e.disp.PlanSwipe(c.Center, *ctl.Swipe)
		if plan.Duration > t.remaining() {
			t.out.BudgetExceeded = true
			e.logger.Debug("swipe abandoned", "control", ctl.Name, "duration", plan.Duration)
			return nil
		}
		if err := e.disp.SwipeUp(ctx, plan); err != nil {
			return err
		}
		e.state.Taps++
		e.state.LastAction = ctl.Name
		t.out.Action = ctl.Name
		t.out.Point = plan.From
		t.out.Phase = PhaseDone
		e.emit(Event{Type: EventSwipe, Control: ctl.Name, Point: plan.From, Confidence: c.Confidence,
			Detail: plan.To.String()})

	default:
		if err := e.tapPrimary(ctx, t, ctl, c); err != nil {
			return err
		}
	}

	if ctl.Confirm != nil {
		if err := e.confirm(ctx, t, ctl); err != nil {
			return err
		}
	}
	return t.sleep(ctx, e.disp.Duration(ctl.PostDelay))
}

// tapPrimary taps the tick's main action and records it in the outcome.
func (e *Engine) tapPrimary(ctx context.Context, t *tick, ctl catalog.Control, c recognizer.Candidate) error {
	p, err := e.tap(ctx, ctl, c)
	if err != nil {
		return err
	}
	t.out.Action = ctl.Name
	t.out.Point = p
	t.out.Phase = PhaseDone
	return nil
}

func (e *Engine) tap(ctx context.Context, ctl catalog.Control, c recognizer.Candidate) (image.Point, error) {
	p, err := e.disp.Tap(ctx, c.Center, ctl.Jitter)
	if err != nil {
		return p, err
	}
	e.state.LastAction = ctl.Name
	e.state.Taps++
	e.logger.Debug("tap", "device", e.device.Serial(), "control", ctl.Name, "point", p,
		"confidence", c.Confidence)
	e.emit(Event{Type: EventTap, Control: ctl.Name, Point: p, Confidence: c.Confidence})
	return p, nil
}

// confirm waits, captures a fresh frame and taps the follow-up control if it
// is on screen. A confirm pass that does not fit the budget is skipped.
func (e *Engine) confirm(ctx context.Context, t *tick, ctl catalog.Control) error {
	delay := e.disp.Duration(ctl.Confirm.Delay)
	if delay >= t.remaining() {
		e.logger.Debug("confirm pass skipped", "control", ctl.Name, "delay", delay)
		return nil
	}
	if err := e.clock.Sleep(ctx, delay); err != nil {
		return err
	}

	frame, err := e.capture(ctx)
	if err != nil {
		e.logger.Warn("confirm capture failed", "device", e.device.Serial(), "error", err)
		return nil
	}
	target, ok := e.catalog.Lookup(ctl.Confirm.Control)
	if !ok {
		return nil
	}
	cands, err := e.detect(ctx, frame, []string{target.Name})
	if err != nil || len(cands) == 0 {
		return err
	}
	if t.overBudget() {
		return nil
	}
	_, err = e.tap(ctx, target, cands[0])
	return err
}

// idle handles a tick without candidates: an occasional exploration tap near
// the screen centre while the budget allows, otherwise a short sleep.
func (e *Engine) idle(ctx context.Context, t *tick, frame image.Image) error {
	limit := float64(e.cfg.TickBudget) * e.cfg.ExploreBudgetFraction
	if float64(t.used()) < limit && e.disp.Chance(e.cfg.ExploreChance) {
		b := frame.Bounds()
		center := image.Pt((b.Min.X+b.Max.X)/2, (b.Min.Y+b.Max.Y)/2)
		p, err := e.disp.TapArea(ctx, center, e.cfg.ExploreRadius)
		if err != nil {
			return err
		}
		e.state.Taps++
		t.out.Action = ExploreAction
		t.out.Point = p
		t.out.Phase = PhaseDone
		e.emit(Event{Type: EventExplore, Point: p})
		return nil
	}
	return t.sleep(ctx, e.cfg.IdleSleep)
}
