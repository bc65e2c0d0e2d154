package catalog

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied to controls that leave a field unset.
const (
	DefaultThreshold       = 0.8
	DefaultMovingThreshold = 0.5
	DefaultPriority        = 10
	DefaultValidity        = time.Second
)

var (
	defaultPostDelay     = Window{Min: time.Second, Max: 3 * time.Second}
	defaultJitter        = Range{Min: 10, Max: 40}
	defaultSwipeDistance = Range{Min: 500, Max: 800}
	defaultSwipeDuration = Window{Min: 3 * time.Second, Max: 6 * time.Second}
)

// fileDefaults overrides the package defaults for one catalog file.
type fileDefaults struct {
	Threshold       *float64 `yaml:"threshold"`
	MovingThreshold *float64 `yaml:"moving_threshold"`
	PostDelay       *Window  `yaml:"post_delay"`
	Jitter          *Range   `yaml:"jitter"`
	Validity        time.Duration `yaml:"validity"`
}

// controlSpec is a control as written in a catalog file. Pointers separate
// "unset" from an explicit zero.
type controlSpec struct {
	Name      string        `yaml:"name"`
	Template  string        `yaml:"template"`
	Threshold *float64      `yaml:"threshold"`
	Priority  *int          `yaml:"priority"`
	Kind      Kind          `yaml:"kind"`
	Moving    bool          `yaml:"moving"`
	PostDelay *Window       `yaml:"post_delay"`
	PreWait   Window        `yaml:"pre_wait"`
	Jitter    *Range        `yaml:"jitter"`
	Requires  string        `yaml:"requires"`
	Gate      string        `yaml:"gate"`
	Validity  time.Duration `yaml:"validity"`
	Abort     AbortPolicy   `yaml:"abort"`
	Confirm   *Confirm      `yaml:"confirm"`
	Swipe     *Swipe        `yaml:"swipe"`
}

// File is the on-disk catalog format.
//
//	module: yuhun
//	defaults:
//	  post_delay: {min: 1s, max: 3s}
//	controls:
//	  - name: lose
//	    kind: terminal
//	    priority: 0
type File struct {
	Module   string        `yaml:"module"`
	Defaults fileDefaults  `yaml:"defaults"`
	Controls []controlSpec `yaml:"controls"`
}

// Load reads a catalog file from disk.
//
// Parameters:
//   - path: YAML catalog file
//   - templateDir: directory holding <control>.png templates
//
// Returns:
//   - *Catalog: validated catalog
//   - error: read, parse or validation failure (wraps ErrInvalidCatalog)
func Load(path, templateDir string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog file: %w", err)
	}
	return Parse(data, templateDir)
}

// Parse decodes and validates a catalog definition. Unknown fields are rejected
// so typos in control options do not silently fall back to defaults.
func Parse(data []byte, templateDir string) (*Catalog, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: parsing: %w", ErrInvalidCatalog, err)
	}
	return build(f, templateDir)
}

func build(f File, templateDir string) (*Catalog, error) {
	controls := make([]Control, 0, len(f.Controls))
	for i, spec := range f.Controls {
		controls = append(controls, spec.resolve(f.Defaults, i))
	}
	return newCatalog(f.Module, templateDir, controls)
}

// resolve applies defaults to a control spec.
func (s controlSpec) resolve(d fileDefaults, order int) Control {
	ctl := Control{
		Name:     strings.TrimSpace(s.Name),
		Template: s.Template,
		Kind:     s.Kind,
		Moving:   s.Moving,
		Order:    order,
		PreWait:  s.PreWait,
		Requires: s.Requires,
		Gate:     s.Gate,
		Validity: s.Validity,
		Abort:    s.Abort,
		Confirm:  s.Confirm,
		Swipe:    s.Swipe,
	}

	if ctl.Template == "" {
		ctl.Template = ctl.Name + ".png"
	}
	if ctl.Kind == "" {
		ctl.Kind = KindNormal
	}

	switch {
	case s.Threshold != nil:
		ctl.Threshold = *s.Threshold
	case s.Moving && d.MovingThreshold != nil:
		ctl.Threshold = *d.MovingThreshold
	case s.Moving:
		ctl.Threshold = DefaultMovingThreshold
	case d.Threshold != nil:
		ctl.Threshold = *d.Threshold
	default:
		ctl.Threshold = DefaultThreshold
	}

	ctl.Priority = DefaultPriority
	if s.Priority != nil {
		ctl.Priority = *s.Priority
	}

	ctl.PostDelay = defaultPostDelay
	if d.PostDelay != nil {
		ctl.PostDelay = *d.PostDelay
	}
	if s.PostDelay != nil {
		ctl.PostDelay = *s.PostDelay
	}

	ctl.Jitter = defaultJitter
	if d.Jitter != nil {
		ctl.Jitter = *d.Jitter
	}
	if s.Jitter != nil {
		ctl.Jitter = *s.Jitter
	}

	if ctl.Kind == KindGate && ctl.Validity == 0 {
		ctl.Validity = DefaultValidity
		if d.Validity > 0 {
			ctl.Validity = d.Validity
		}
	}
	if (ctl.Kind == KindGate || ctl.Kind == KindTerminal) && ctl.Abort == "" {
		ctl.Abort = AbortPause
	}
	if ctl.Kind == KindSwipe {
		sw := Swipe{Distance: defaultSwipeDistance, Duration: defaultSwipeDuration}
		if s.Swipe != nil {
			if !s.Swipe.Distance.IsZero() {
				sw.Distance = s.Swipe.Distance
			}
			if !s.Swipe.Duration.IsZero() {
				sw.Duration = s.Swipe.Duration
			}
		}
		ctl.Swipe = &sw
	}

	return ctl
}

// newCatalog validates controls and indexes them. Gate triggers without an
// explicit gate are bound to the first gate control.
func newCatalog(module, templateDir string, controls []Control) (*Catalog, error) {
	c := &Catalog{
		module:      module,
		templateDir: templateDir,
		controls:    controls,
		index:       make(map[string]int, len(controls)),
	}

	var errs []string
	for i, ctl := range controls {
		if ctl.Name == "" {
			errs = append(errs, fmt.Sprintf("control #%d has no name", i))
			continue
		}
		if _, dup := c.index[ctl.Name]; dup {
			errs = append(errs, fmt.Sprintf("duplicate control %q", ctl.Name))
			continue
		}
		c.index[ctl.Name] = i
	}

	firstGate := ""
	if gates := c.Names(KindGate); len(gates) > 0 {
		firstGate = gates[0]
	}

	for i := range c.controls {
		ctl := &c.controls[i]
		if ctl.Kind == KindGateTrigger && ctl.Gate == "" {
			ctl.Gate = firstGate
		}
		errs = append(errs, c.validateControl(*ctl)...)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCatalog, strings.Join(errs, "; "))
	}
	return c, nil
}

func (c *Catalog) validateControl(ctl Control) []string {
	var errs []string
	fail := func(format string, args ...any) {
		errs = append(errs, ctl.Name+": "+fmt.Sprintf(format, args...))
	}

	if !ctl.Kind.IsValid() {
		fail("unknown kind %q", ctl.Kind)
	}
	if ctl.Threshold < 0 || ctl.Threshold > 1 {
		fail("threshold %.2f outside [0,1]", ctl.Threshold)
	}
	if !ctl.PostDelay.Valid() {
		fail("post_delay window is invalid")
	}
	if !ctl.Jitter.Valid() {
		fail("jitter range is invalid")
	}
	if ctl.Abort != "" && ctl.Abort != AbortPause && ctl.Abort != AbortStop {
		fail("abort policy %q must be pause or stop", ctl.Abort)
	}

	switch ctl.Kind {
	case KindTimed:
		if ctl.PreWait.IsZero() || !ctl.PreWait.Valid() {
			fail("timed control needs a valid pre_wait window")
		}
	case KindSequenced:
		if ctl.Requires == "" {
			fail("sequenced control needs requires")
		} else if ctl.Requires == ctl.Name {
			fail("sequenced control cannot require itself")
		} else if req, ok := c.Lookup(ctl.Requires); !ok {
			fail("requires unknown control %q", ctl.Requires)
		} else if !req.Kind.Matchable() {
			fail("requires %q which is never matched normally", ctl.Requires)
		}
	case KindGateTrigger:
		if ctl.Gate == "" {
			fail("gate_trigger has no gate control to arm")
		} else if g, ok := c.Lookup(ctl.Gate); !ok || g.Kind != KindGate {
			fail("gate %q is not a gate control", ctl.Gate)
		}
	case KindGate:
		if ctl.Validity <= 0 {
			fail("gate validity must be positive")
		}
	case KindSwipe:
		if ctl.Swipe == nil || !ctl.Swipe.Distance.Valid() || !ctl.Swipe.Duration.Valid() {
			fail("swipe parameters are invalid")
		}
	}

	if ctl.Confirm != nil {
		if _, ok := c.Lookup(ctl.Confirm.Control); !ok {
			fail("confirm control %q not in catalog", ctl.Confirm.Control)
		}
		if !ctl.Confirm.Delay.Valid() {
			fail("confirm delay window is invalid")
		}
	}
	return errs
}
