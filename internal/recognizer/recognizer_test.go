package recognizer

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/WilsonWong800686/yys-autommation/internal/catalog"
)

// ─── Helpers ────────────────────────────────────────────────────────

func noise(w, h int, seed int64) *image.Gray {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(rng.Intn(256))
	}
	return img
}

func paste(dst *image.Gray, src *image.Gray, x, y int) {
	b := src.Bounds()
	for ty := 0; ty < b.Dy(); ty++ {
		for tx := 0; tx < b.Dx(); tx++ {
			dst.SetGray(x+tx, y+ty, src.GrayAt(tx, ty))
		}
	}
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encoding %s: %v", path, err)
	}
}

type fixture struct {
	dir  string
	cat  *catalog.Catalog
	tmpl map[string]*image.Gray
}

// newFixture writes one 16×16 noise template per control name.
func newFixture(t *testing.T, yaml string, names ...string) *fixture {
	t.Helper()
	dir := t.TempDir()
	cat, err := catalog.Parse([]byte(yaml), dir)
	if err != nil {
		t.Fatalf("catalog.Parse() error = %v", err)
	}
	fx := &fixture{dir: dir, cat: cat, tmpl: make(map[string]*image.Gray)}
	for i, name := range names {
		img := noise(16, 16, int64(100+i))
		fx.tmpl[name] = img
		writePNG(t, filepath.Join(dir, name+".png"), img)
	}
	return fx
}

const twoControls = `
controls:
  - name: a
    priority: 1
  - name: b
    priority: 0
`

func exact(fx *fixture) *Recognizer {
	return New(fx.cat, nil, Options{Scale: 1, Step: 1, Workers: 3})
}

// ─── Detect ─────────────────────────────────────────────────────────

func TestDetect_FindsControl(t *testing.T) {
	fx := newFixture(t, twoControls, "a", "b")
	frame := noise(200, 120, 1)
	paste(frame, fx.tmpl["a"], 37, 53)

	cands, err := exact(fx).Detect(context.Background(), frame, []string{"a"})
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if len(cands) != 1 {
		t.Fatalf("len(cands) = %d, want 1", len(cands))
	}
	c := cands[0]
	if c.Control != "a" {
		t.Errorf("Control = %q, want a", c.Control)
	}
	if want := (image.Point{X: 37 + 8, Y: 53 + 8}); c.Center != want {
		t.Errorf("Center = %v, want %v", c.Center, want)
	}
	if c.Confidence < 0.99 {
		t.Errorf("Confidence = %v, want ~1", c.Confidence)
	}
	if c.Priority != 1 || c.Order != 0 || c.Kind != catalog.KindNormal {
		t.Errorf("candidate = %+v", c)
	}
}

func TestDetect_CoarseDownscaled(t *testing.T) {
	fx := newFixture(t, twoControls, "a", "b")
	frame := noise(240, 160, 2)
	paste(frame, fx.tmpl["a"], 40, 24)

	r := New(fx.cat, nil, Options{Scale: 2, Step: 2})
	cands, err := r.Detect(context.Background(), frame, []string{"a"})
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if len(cands) != 1 {
		t.Fatalf("len(cands) = %d, want 1", len(cands))
	}
	if want := (image.Point{X: 48, Y: 32}); cands[0].Center != want {
		t.Errorf("Center = %v, want %v", cands[0].Center, want)
	}
}

func TestDetect_NoMatchBelowThreshold(t *testing.T) {
	fx := newFixture(t, twoControls, "a", "b")
	frame := noise(200, 120, 3)

	cands, err := exact(fx).Detect(context.Background(), frame, []string{"a", "b"})
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if len(cands) != 0 {
		t.Errorf("Detect() on frame without controls = %+v, want none", cands)
	}
}

func TestDetect_SortedByPriority(t *testing.T) {
	fx := newFixture(t, twoControls, "a", "b")
	frame := noise(200, 120, 4)
	paste(frame, fx.tmpl["a"], 10, 10)
	paste(frame, fx.tmpl["b"], 120, 70)

	cands, err := exact(fx).Detect(context.Background(), frame, []string{"a", "b"})
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if len(cands) != 2 {
		t.Fatalf("len(cands) = %d, want 2", len(cands))
	}
	if cands[0].Control != "b" || cands[1].Control != "a" {
		t.Errorf("order = [%s %s], want [b a]", cands[0].Control, cands[1].Control)
	}
}

func TestDetect_OneCandidatePerControl(t *testing.T) {
	fx := newFixture(t, twoControls, "a", "b")
	frame := noise(200, 120, 5)
	paste(frame, fx.tmpl["a"], 10, 10)
	paste(frame, fx.tmpl["a"], 150, 90)

	cands, err := exact(fx).Detect(context.Background(), frame, []string{"a"})
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if len(cands) != 1 {
		t.Errorf("len(cands) = %d, want 1", len(cands))
	}
}

func TestDetect_RepeatableOnStaticFrame(t *testing.T) {
	fx := newFixture(t, twoControls, "a", "b")
	frame := noise(200, 120, 6)
	paste(frame, fx.tmpl["a"], 60, 30)
	paste(frame, fx.tmpl["b"], 100, 80)
	r := exact(fx)

	first, err := r.Detect(context.Background(), frame, []string{"a", "b"})
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	for i := 0; i < 3; i++ {
		again, err := r.Detect(context.Background(), frame, []string{"a", "b"})
		if err != nil {
			t.Fatalf("Detect() error = %v", err)
		}
		if len(again) != len(first) || again[0] != first[0] {
			t.Fatalf("run %d = %+v, want %+v", i, again, first)
		}
	}
}

func TestDetect_RGBAFrame(t *testing.T) {
	fx := newFixture(t, twoControls, "a", "b")
	gray := noise(120, 80, 7)
	paste(gray, fx.tmpl["a"], 20, 30)

	rgba := image.NewRGBA(gray.Bounds())
	for y := 0; y < 80; y++ {
		for x := 0; x < 120; x++ {
			v := gray.GrayAt(x, y).Y
			rgba.Set(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}

	cands, err := exact(fx).Detect(context.Background(), rgba, []string{"a"})
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if len(cands) != 1 || cands[0].Center != (image.Point{X: 28, Y: 38}) {
		t.Errorf("Detect(RGBA) = %+v", cands)
	}
}

func TestDetect_InvalidFrame(t *testing.T) {
	fx := newFixture(t, twoControls, "a", "b")
	r := exact(fx)

	if _, err := r.Detect(context.Background(), nil, []string{"a"}); !errors.Is(err, ErrInvalidFrame) {
		t.Errorf("Detect(nil) error = %v, want ErrInvalidFrame", err)
	}
	empty := image.NewGray(image.Rect(0, 0, 0, 0))
	if _, err := r.Detect(context.Background(), empty, []string{"a"}); !errors.Is(err, ErrInvalidFrame) {
		t.Errorf("Detect(empty) error = %v, want ErrInvalidFrame", err)
	}
}

func TestDetect_MissingAndUnknown(t *testing.T) {
	// Only "a" gets a template file.
	fx := newFixture(t, twoControls, "a")
	frame := noise(200, 120, 8)
	paste(frame, fx.tmpl["a"], 50, 50)

	cands, err := exact(fx).Detect(context.Background(), frame, []string{"ghost", "b", "a"})
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if len(cands) != 1 || cands[0].Control != "a" {
		t.Errorf("Detect() = %+v, want only a", cands)
	}
}

func TestDetect_TemplateLargerThanFrame(t *testing.T) {
	fx := newFixture(t, twoControls, "a")
	cands, err := exact(fx).Detect(context.Background(), noise(8, 8, 9), []string{"a"})
	if err != nil || len(cands) != 0 {
		t.Errorf("Detect(tiny frame) = %+v, %v; want none", cands, err)
	}
}

func TestDetect_Cancelled(t *testing.T) {
	fx := newFixture(t, twoControls, "a")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := exact(fx).Detect(ctx, noise(64, 64, 10), []string{"a"}); !errors.Is(err, context.Canceled) {
		t.Errorf("Detect(cancelled) error = %v, want context.Canceled", err)
	}
}

func TestDetectOne(t *testing.T) {
	fx := newFixture(t, twoControls, "a", "b")
	frame := noise(200, 120, 11)
	paste(frame, fx.tmpl["b"], 70, 40)
	r := exact(fx)

	c, ok, err := r.DetectOne(context.Background(), frame, "b")
	if err != nil || !ok || c.Control != "b" {
		t.Errorf("DetectOne(b) = %+v, %v, %v", c, ok, err)
	}
	if _, ok, _ := r.DetectOne(context.Background(), frame, "a"); ok {
		t.Error("DetectOne(a) found a control that is not on screen")
	}
}

// ─── Cache ──────────────────────────────────────────────────────────

func TestCache_LoadsOnce(t *testing.T) {
	fx := newFixture(t, twoControls, "a")
	cache := NewCache(1)
	path := filepath.Join(fx.dir, "a.png")

	first, err := cache.Get(path)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	second, _ := cache.Get(path)
	if first != second {
		t.Error("Get() returned a different template on the second call")
	}

	missing := filepath.Join(fx.dir, "nope.png")
	if _, err := cache.Get(missing); !errors.Is(err, ErrTemplateMissing) {
		t.Errorf("Get(missing) error = %v, want ErrTemplateMissing", err)
	}
	if _, err := cache.Get(missing); !errors.Is(err, ErrTemplateMissing) {
		t.Errorf("cached Get(missing) error = %v, want ErrTemplateMissing", err)
	}
	if cache.Len() != 2 {
		t.Errorf("Len() = %d, want 2", cache.Len())
	}
}

func TestCache_DecodeError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.png")
	if err := os.WriteFile(path, []byte("not an image"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewCache(1).Get(path); !errors.Is(err, ErrTemplateDecode) {
		t.Errorf("Get(bad) error = %v, want ErrTemplateDecode", err)
	}
}

func TestNewTemplate_SmallKeepsFullResolution(t *testing.T) {
	tmpl := NewTemplate("t", noise(8, 8, 12), 2)
	if tmpl.Scale != 1 {
		t.Errorf("Scale = %d, want 1 for an 8px template", tmpl.Scale)
	}
	big := NewTemplate("t", noise(32, 32, 12), 2)
	if big.Scale != 2 || big.scaled.w != 16 {
		t.Errorf("Scale = %d, scaled width %d; want 2 and 16", big.Scale, big.scaled.w)
	}
}

func TestPreload(t *testing.T) {
	fx := newFixture(t, twoControls, "a")
	loaded, missing := exact(fx).Preload()
	if loaded != 1 || len(missing) != 1 || missing[0] != "b" {
		t.Errorf("Preload() = %d, %v; want 1, [b]", loaded, missing)
	}
}

// ─── Sort ───────────────────────────────────────────────────────────

func TestSort(t *testing.T) {
	cands := []Candidate{
		{Control: "late", Priority: 1, Confidence: 0.9, Order: 5},
		{Control: "low", Priority: 2, Confidence: 0.99, Order: 0},
		{Control: "early", Priority: 1, Confidence: 0.9, Order: 1},
		{Control: "strong", Priority: 1, Confidence: 0.95, Order: 9},
	}
	Sort(cands)

	want := []string{"strong", "early", "late", "low"}
	for i, name := range want {
		if cands[i].Control != name {
			t.Errorf("cands[%d] = %q, want %q", i, cands[i].Control, name)
		}
	}
}

// ─── Internals ──────────────────────────────────────────────────────

func TestIntegralWindow(t *testing.T) {
	p := &plane{w: 3, h: 2, pix: []float32{1, 2, 3, 4, 5, 6}}
	in := newIntegral(p)

	sum, sq := in.window(1, 0, 2, 2)
	if sum != 2+3+5+6 {
		t.Errorf("sum = %v, want 16", sum)
	}
	if sq != 4+9+25+36 {
		t.Errorf("sq = %v, want 74", sq)
	}
}

func TestDownscale(t *testing.T) {
	p := &plane{w: 4, h: 2, pix: []float32{0, 2, 4, 6, 2, 4, 6, 8}}
	d := p.downscale(2)
	if d.w != 2 || d.h != 1 {
		t.Fatalf("size = %dx%d, want 2x1", d.w, d.h)
	}
	if d.pix[0] != 2 || d.pix[1] != 6 {
		t.Errorf("pix = %v, want [2 6]", d.pix)
	}
}
