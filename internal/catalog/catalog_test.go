package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// ─── Helpers ────────────────────────────────────────────────────────

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return p
}

func mustParse(t *testing.T, src string) *Catalog {
	t.Helper()
	c, err := Parse([]byte(src), t.TempDir())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return c
}

// ─── Builtin ────────────────────────────────────────────────────────

func TestModules(t *testing.T) {
	got := Modules()
	want := []string{"baigui", "yuhun"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Modules() = %v, want %v", got, want)
	}
}

func TestBuiltin_Yuhun(t *testing.T) {
	c, err := Builtin("yuhun", "/tpl")
	if err != nil {
		t.Fatalf("Builtin(yuhun) error = %v", err)
	}

	tests := []struct {
		name      string
		kind      Kind
		threshold float64
	}{
		{"lose", KindTerminal, 0.8},
		{"notupo", KindGate, 0.5},
		{"button10", KindGateTrigger, 0.8},
		{"button5", KindSequenced, 0.8},
		{"button7", KindTimed, 0.5},
		{"button6", KindNormal, 0.5},
		{"button11", KindSwipe, 0.8},
		{"button1", KindNormal, 0.8},
	}
	for _, tt := range tests {
		ctl, ok := c.Lookup(tt.name)
		if !ok {
			t.Errorf("Lookup(%q) not found", tt.name)
			continue
		}
		if ctl.Kind != tt.kind {
			t.Errorf("%s Kind = %q, want %q", tt.name, ctl.Kind, tt.kind)
		}
		if ctl.Threshold != tt.threshold {
			t.Errorf("%s Threshold = %v, want %v", tt.name, ctl.Threshold, tt.threshold)
		}
	}

	notupo, _ := c.Lookup("notupo")
	if notupo.Validity != time.Second || notupo.Abort != AbortPause {
		t.Errorf("notupo = %+v, want 1s validity and pause", notupo)
	}
	b10, _ := c.Lookup("button10")
	if b10.Gate != "notupo" {
		t.Errorf("button10 Gate = %q, want notupo", b10.Gate)
	}
	b5, _ := c.Lookup("button5")
	if b5.Requires != "button4" {
		t.Errorf("button5 Requires = %q, want button4", b5.Requires)
	}
	b7, _ := c.Lookup("button7")
	if b7.PreWait != (Window{Min: 500 * time.Millisecond, Max: 1500 * time.Millisecond}) {
		t.Errorf("button7 PreWait = %+v", b7.PreWait)
	}
	b11, _ := c.Lookup("button11")
	if b11.Swipe == nil || b11.Swipe.Distance != (Range{Min: 500, Max: 800}) {
		t.Errorf("button11 Swipe = %+v", b11.Swipe)
	}
	if b11.Confirm == nil || b11.Confirm.Control != "button12" {
		t.Errorf("button11 Confirm = %+v, want button12", b11.Confirm)
	}
	if got := c.TemplatePath(b10); got != filepath.Join("/tpl", "button10.png") {
		t.Errorf("TemplatePath = %q", got)
	}

	for _, name := range c.MatchableNames() {
		if name == "lose" || name == "notupo" {
			t.Errorf("MatchableNames() contains %q", name)
		}
	}
}

func TestBuiltin_Baigui(t *testing.T) {
	c, err := Builtin("baigui", "")
	if err != nil {
		t.Fatalf("Builtin(baigui) error = %v", err)
	}
	b2, ok := c.Lookup("button2")
	if !ok || b2.Confirm == nil {
		t.Fatalf("button2 = %+v, want a confirm pass", b2)
	}
	if b2.Confirm.Control != "button3" {
		t.Errorf("confirm control = %q, want button3", b2.Confirm.Control)
	}
	if b2.Confirm.Delay != (Window{Min: time.Second, Max: 2 * time.Second}) {
		t.Errorf("confirm delay = %+v", b2.Confirm.Delay)
	}
}

func TestBuiltin_Unknown(t *testing.T) {
	_, err := Builtin("tansuo", "")
	if !errors.Is(err, ErrUnknownModule) {
		t.Errorf("Builtin(tansuo) error = %v, want ErrUnknownModule", err)
	}
}

// ─── Parse ──────────────────────────────────────────────────────────

func TestParse_Defaults(t *testing.T) {
	c := mustParse(t, `
module: test
controls:
  - name: a
  - name: b
    moving: true
  - name: g
    kind: gate
`)
	a, _ := c.Lookup("a")
	if a.Threshold != DefaultThreshold || a.Priority != DefaultPriority || a.Kind != KindNormal {
		t.Errorf("a = %+v, want defaults", a)
	}
	if a.PostDelay != defaultPostDelay || a.Jitter != defaultJitter {
		t.Errorf("a timing = %+v / %+v, want defaults", a.PostDelay, a.Jitter)
	}
	if a.Template != "a.png" {
		t.Errorf("a Template = %q, want a.png", a.Template)
	}
	b, _ := c.Lookup("b")
	if b.Threshold != DefaultMovingThreshold {
		t.Errorf("b Threshold = %v, want %v", b.Threshold, DefaultMovingThreshold)
	}
	if b.Order != 1 {
		t.Errorf("b Order = %d, want 1", b.Order)
	}
	g, _ := c.Lookup("g")
	if g.Validity != DefaultValidity || g.Abort != AbortPause {
		t.Errorf("g = %+v, want default validity and pause", g)
	}
}

func TestParse_FileDefaultsOverride(t *testing.T) {
	c := mustParse(t, `
module: test
defaults:
  threshold: 0.9
  post_delay: {min: 2s, max: 2s}
  jitter: {min: 0, max: 5}
controls:
  - name: a
  - name: b
    threshold: 0.7
    post_delay: {min: 100ms, max: 200ms}
`)
	a, _ := c.Lookup("a")
	if a.Threshold != 0.9 || a.PostDelay.Min != 2*time.Second || a.Jitter.Max != 5 {
		t.Errorf("a = %+v, want file defaults", a)
	}
	b, _ := c.Lookup("b")
	if b.Threshold != 0.7 || b.PostDelay.Max != 200*time.Millisecond {
		t.Errorf("b = %+v, want control overrides", b)
	}
}

func TestParse_ExplicitZeroPriority(t *testing.T) {
	c := mustParse(t, `
controls:
  - name: a
    priority: 0
`)
	a, _ := c.Lookup("a")
	if a.Priority != 0 {
		t.Errorf("Priority = %d, want 0", a.Priority)
	}
}

func TestParse_GateTriggerBindsFirstGate(t *testing.T) {
	c := mustParse(t, `
controls:
  - name: g1
    kind: gate
  - name: g2
    kind: gate
  - name: start
    kind: gate_trigger
`)
	start, _ := c.Lookup("start")
	if start.Gate != "g1" {
		t.Errorf("Gate = %q, want g1", start.Gate)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantMsg string
	}{
		{"duplicate", "controls:\n  - name: a\n  - name: a\n", "duplicate control"},
		{"no name", "controls:\n  - kind: normal\n", "has no name"},
		{"bad kind", "controls:\n  - name: a\n    kind: double\n", "unknown kind"},
		{"threshold", "controls:\n  - name: a\n    threshold: 1.5\n", "outside [0,1]"},
		{"window", "controls:\n  - name: a\n    post_delay: {min: 3s, max: 1s}\n", "post_delay"},
		{"timed without wait", "controls:\n  - name: a\n    kind: timed\n", "pre_wait"},
		{"sequenced missing", "controls:\n  - name: a\n    kind: sequenced\n", "needs requires"},
		{"sequenced unknown", "controls:\n  - name: a\n    kind: sequenced\n    requires: zz\n", "unknown control"},
		{"sequenced self", "controls:\n  - name: a\n    kind: sequenced\n    requires: a\n", "itself"},
		{"trigger without gate", "controls:\n  - name: a\n    kind: gate_trigger\n", "no gate"},
		{"trigger bad gate", "controls:\n  - name: b\n  - name: a\n    kind: gate_trigger\n    gate: b\n", "not a gate"},
		{"abort", "controls:\n  - name: a\n    kind: terminal\n    abort: explode\n", "abort policy"},
		{"confirm", "controls:\n  - name: a\n    confirm: {control: zz}\n", "confirm control"},
		{"unknown field", "controls:\n  - name: a\n    treshold: 0.5\n", "parsing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src), "")
			if !errors.Is(err, ErrInvalidCatalog) {
				t.Fatalf("Parse() error = %v, want ErrInvalidCatalog", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not mention %q", err, tt.wantMsg)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "c.yaml", "module: custom\ncontrols:\n  - name: a\n")

	c, err := Load(p, dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.Module() != "custom" || c.Len() != 1 || c.TemplateDir() != dir {
		t.Errorf("Load() = module %q len %d dir %q", c.Module(), c.Len(), c.TemplateDir())
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml"), dir); err == nil {
		t.Error("Load(missing) expected error")
	}
}

// ─── Accessors ──────────────────────────────────────────────────────

func TestNames(t *testing.T) {
	c := mustParse(t, `
controls:
  - name: t
    kind: terminal
  - name: a
  - name: g
    kind: gate
  - name: b
`)
	if got := strings.Join(c.Names(), ","); got != "t,a,g,b" {
		t.Errorf("Names() = %s", got)
	}
	if got := strings.Join(c.Names(KindTerminal, KindGate), ","); got != "t,g" {
		t.Errorf("Names(terminal, gate) = %s", got)
	}
	if got := strings.Join(c.MatchableNames(), ","); got != "a,b" {
		t.Errorf("MatchableNames() = %s", got)
	}
}

func TestControls_ReturnsCopy(t *testing.T) {
	c := mustParse(t, "controls:\n  - name: a\n")
	ctls := c.Controls()
	ctls[0].Name = "mutated"
	if _, ok := c.Lookup("a"); !ok {
		t.Error("mutating Controls() result changed the catalog")
	}
}

func TestWithTemplateDir(t *testing.T) {
	c := mustParse(t, "controls:\n  - name: a\n    template: /abs/a.png\n  - name: b\n")
	d := c.WithTemplateDir("/other")

	a, _ := d.Lookup("a")
	b, _ := d.Lookup("b")
	if got := d.TemplatePath(a); got != "/abs/a.png" {
		t.Errorf("absolute TemplatePath = %q", got)
	}
	if got := d.TemplatePath(b); got != filepath.Join("/other", "b.png") {
		t.Errorf("TemplatePath = %q", got)
	}
	if c.TemplateDir() == "/other" {
		t.Error("WithTemplateDir modified the original")
	}
}

// ─── Legacy import ──────────────────────────────────────────────────

func TestLoadLegacy(t *testing.T) {
	dir := t.TempDir()
	base := mustParse(t, `
module: yuhun
controls:
  - name: lose
    kind: terminal
    priority: 0
  - name: button1
    priority: 3
`)
	p := writeFile(t, dir, "button_config.json", `{
  "button1": {"threshold": 0.75, "type": "normal", "click_min": 5, "click_max": 15, "delay_min": 0.5, "delay_max": 1.5},
  "button9": {"type": "special"},
  "button8": {"threshold": 0.6}
}`)

	c, err := LoadLegacy(base, p)
	if err != nil {
		t.Fatalf("LoadLegacy() error = %v", err)
	}

	b1, _ := c.Lookup("button1")
	if b1.Threshold != 0.75 || b1.Priority != 3 {
		t.Errorf("button1 = %+v, want threshold 0.75 priority 3", b1)
	}
	if b1.Jitter != (Range{Min: 5, Max: 15}) {
		t.Errorf("button1 Jitter = %+v", b1.Jitter)
	}
	if b1.PostDelay != (Window{Min: 500 * time.Millisecond, Max: 1500 * time.Millisecond}) {
		t.Errorf("button1 PostDelay = %+v", b1.PostDelay)
	}

	b9, _ := c.Lookup("button9")
	if !b9.Moving || b9.Threshold != DefaultMovingThreshold || b9.Priority != DefaultPriority {
		t.Errorf("button9 = %+v, want movable with defaults", b9)
	}

	// New buttons are appended in name order.
	got := strings.Join(c.Names(), ",")
	if got != "lose,button1,button8,button9" {
		t.Errorf("Names() = %s", got)
	}
}

func TestMergeLegacy_BadType(t *testing.T) {
	base := mustParse(t, "controls:\n  - name: a\n")
	_, err := MergeLegacy(base, map[string]LegacyButton{"a": {Type: "odd"}})
	if !errors.Is(err, ErrInvalidCatalog) {
		t.Errorf("MergeLegacy() error = %v, want ErrInvalidCatalog", err)
	}
}

func TestToLegacy_RoundTrip(t *testing.T) {
	base := mustParse(t, "controls:\n  - name: a\n  - name: b\n    moving: true\n")
	legacy := base.ToLegacy()

	if legacy["b"].Type != "special" || legacy["a"].Type != "normal" {
		t.Errorf("types = %q / %q", legacy["a"].Type, legacy["b"].Type)
	}
	merged, err := MergeLegacy(base, legacy)
	if err != nil {
		t.Fatalf("MergeLegacy() error = %v", err)
	}
	a1, _ := base.Lookup("a")
	a2, _ := merged.Lookup("a")
	if a1.PostDelay != a2.PostDelay || a1.Jitter != a2.Jitter || a1.Threshold != a2.Threshold {
		t.Errorf("round trip changed a: %+v -> %+v", a1, a2)
	}
}

// ─── Discovery ──────────────────────────────────────────────────────

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	for _, f := range []string{"button1.png", "button3.png", "button2.png", "lose.png", "notes.txt"} {
		writeFile(t, dir, f, "x")
	}
	base, err := Parse([]byte("controls:\n  - name: lose\n    kind: terminal\n  - name: button1\n"), dir)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	c, added, err := Discover(base)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if strings.Join(added, ",") != "button2,button3" {
		t.Errorf("added = %v, want [button2 button3]", added)
	}
	if c.Len() != 4 {
		t.Errorf("Len() = %d, want 4", c.Len())
	}

	again, added, err := Discover(c)
	if err != nil || len(added) != 0 || again != c {
		t.Errorf("second Discover() = %v, %v; want no change", added, err)
	}
}

func TestValidateTemplates(t *testing.T) {
	dir := t.TempDir()
	c, err := Parse([]byte("controls:\n  - name: lose\n    kind: terminal\n  - name: button1\n"), dir)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	// Only the terminal template exists: nothing to play with.
	writeFile(t, dir, "lose.png", "x")
	if err := c.ValidateTemplates(); !errors.Is(err, ErrNoTemplates) {
		t.Errorf("ValidateTemplates() error = %v, want ErrNoTemplates", err)
	}

	writeFile(t, dir, "button1.png", "x")
	if err := c.ValidateTemplates(); err != nil {
		t.Errorf("ValidateTemplates() error = %v", err)
	}

	usable, missing := c.Usable()
	if len(usable) != 2 || len(missing) != 0 {
		t.Errorf("Usable() = %v, %v", usable, missing)
	}
}
