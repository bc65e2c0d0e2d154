package catalog

import (
	"path/filepath"
	"time"
)

// Kind selects how the engine treats a recognised control.
type Kind string

// Control kinds.
const (
	// KindNormal is tapped, then the post-delay is observed.
	KindNormal Kind = "normal"

	// KindTerminal ends the session's play (pause or stop) when seen. Checked first on every tick.
	KindTerminal Kind = "terminal"

	// KindGate is only looked for while the gate is armed.
	KindGate Kind = "gate"

	// KindGateTrigger arms the gate when tapped and ends the tick immediately.
	KindGateTrigger Kind = "gate_trigger"

	// KindTimed waits a drawn pre-wait before the tap.
	KindTimed Kind = "timed"

	// KindSequenced is only tapped directly after its Requires control.
	KindSequenced Kind = "sequenced"

	// KindSwipe scrolls upward from the control instead of tapping it.
	KindSwipe Kind = "swipe"
)

// IsValid reports whether k is a known kind.
func (k Kind) IsValid() bool {
	switch k {
	case KindNormal, KindTerminal, KindGate, KindGateTrigger, KindTimed, KindSequenced, KindSwipe:
		return true
	}
	return false
}

// Matchable reports whether the control takes part in the normal candidate walk.
func (k Kind) Matchable() bool {
	return k != KindTerminal && k != KindGate
}

// AbortPolicy decides what a terminal or gate detection does to the session.
type AbortPolicy string

const (
	// AbortPause pauses the session; the operator resumes it.
	AbortPause AbortPolicy = "pause"

	// AbortStop ends the session. Other sessions keep running.
	AbortStop AbortPolicy = "stop"
)

// Window is a closed duration interval [Min, Max].
type Window struct {
	Min time.Duration `yaml:"min" json:"min"`
	Max time.Duration `yaml:"max" json:"max"`
}

// IsZero reports whether the window is unset.
func (w Window) IsZero() bool { return w.Min == 0 && w.Max == 0 }

// Valid reports whether the window is non-negative and ordered.
func (w Window) Valid() bool { return w.Min >= 0 && w.Max >= w.Min }

// Range is a closed integer interval [Min, Max].
type Range struct {
	Min int `yaml:"min" json:"min"`
	Max int `yaml:"max" json:"max"`
}

// IsZero reports whether the range is unset.
func (r Range) IsZero() bool { return r.Min == 0 && r.Max == 0 }

// Valid reports whether the range is non-negative and ordered.
func (r Range) Valid() bool { return r.Min >= 0 && r.Max >= r.Min }

// Confirm is a second recognition pass after a tap: wait Delay, capture a
// fresh frame and tap Control if it is there.
type Confirm struct {
	Control string `yaml:"control" json:"control"`
	Delay   Window `yaml:"delay" json:"delay"`
}

// Swipe parameters for KindSwipe. The swipe goes straight up from the control.
type Swipe struct {
	Distance Range  `yaml:"distance" json:"distance"`
	Duration Window `yaml:"duration" json:"duration"`
}

// Control is one recognisable on-screen element and how to act on it.
type Control struct {
	Name      string  `json:"name"`
	Template  string  `json:"template"`
	Threshold float64 `json:"threshold"`
	Priority  int     `json:"priority"`
	Kind      Kind    `json:"kind"`
	Moving    bool    `json:"moving,omitempty"`

	// Order is the position in the catalog; ties on priority and confidence
	// are broken by it.
	Order int `json:"order"`

	PostDelay Window `json:"post_delay"`
	PreWait   Window `json:"pre_wait,omitzero"`
	Jitter    Range  `json:"jitter"`

	// Requires names the control that must be the previous action (sequenced).
	Requires string `json:"requires,omitempty"`

	// Gate names the gate control a gate_trigger arms.
	Gate string `json:"gate,omitempty"`

	// Validity is how long an armed gate is watched (gate kind).
	Validity time.Duration `json:"validity,omitempty"`

	Abort AbortPolicy `json:"abort,omitempty"`

	Confirm *Confirm `json:"confirm,omitempty"`
	Swipe   *Swipe   `json:"swipe,omitempty"`
}

// Catalog is an immutable, ordered set of controls for one game mode.
// It is safe to share between sessions.
type Catalog struct {
	module      string
	templateDir string
	controls    []Control
	index       map[string]int
}

// Module returns the catalog's module name (e.g. "yuhun").
func (c *Catalog) Module() string { return c.module }

// TemplateDir returns the directory templates are resolved against.
func (c *Catalog) TemplateDir() string { return c.templateDir }

// Len returns the number of controls.
func (c *Catalog) Len() int { return len(c.controls) }

// Controls returns a copy of all controls in catalog order.
func (c *Catalog) Controls() []Control {
	out := make([]Control, len(c.controls))
	copy(out, c.controls)
	return out
}

// Lookup returns the control with the given name.
func (c *Catalog) Lookup(name string) (Control, bool) {
	i, ok := c.index[name]
	if !ok {
		return Control{}, false
	}
	return c.controls[i], true
}

// Names returns the names of controls whose kind is one of kinds, in
// catalog order. With no kinds every name is returned.
func (c *Catalog) Names(kinds ...Kind) []string {
	var out []string
	for _, ctl := range c.controls {
		if len(kinds) == 0 || containsKind(kinds, ctl.Kind) {
			out = append(out, ctl.Name)
		}
	}
	return out
}

// MatchableNames returns the controls considered in normal matching.
func (c *Catalog) MatchableNames() []string {
	var out []string
	for _, ctl := range c.controls {
		if ctl.Kind.Matchable() {
			out = append(out, ctl.Name)
		}
	}
	return out
}

// TemplatePath returns the template image path for a control.
func (c *Catalog) TemplatePath(ctl Control) string {
	if filepath.IsAbs(ctl.Template) {
		return ctl.Template
	}
	return filepath.Join(c.templateDir, ctl.Template)
}

// WithTemplateDir returns a copy of the catalog resolving templates against dir.
func (c *Catalog) WithTemplateDir(dir string) *Catalog {
	cp := *c
	cp.templateDir = dir
	return &cp
}

func containsKind(kinds []Kind, k Kind) bool {
	for _, want := range kinds {
		if want == k {
			return true
		}
	}
	return false
}
