package session

import "time"

// breakSchedule tracks scheduled rest periods.
type breakSchedule struct {
	cfg       Breaks
	draw      Drawer
	nextStart time.Time
	end       time.Time
	active    bool
}

func newBreakSchedule(cfg Breaks, draw Drawer, start time.Time) *breakSchedule {
	b := &breakSchedule{cfg: cfg, draw: draw}
	if cfg.Enabled {
		b.nextStart = start.Add(draw.Duration(cfg.Interval))
	}
	return b
}

// check reports whether now falls into a break and when that break ends.
func (b *breakSchedule) check(now time.Time) (time.Time, bool) {
	if !b.cfg.Enabled {
		return time.Time{}, false
	}
	if b.active {
		if now.Before(b.end) {
			return b.end, true
		}
		b.active = false
		b.nextStart = now.Add(b.draw.Duration(b.cfg.Interval))
		return time.Time{}, false
	}
	if now.Before(b.nextStart) {
		return time.Time{}, false
	}
	b.active = true
	b.end = now.Add(b.draw.Duration(b.cfg.Length))
	return b.end, true
}
