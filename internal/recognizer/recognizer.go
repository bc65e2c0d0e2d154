package recognizer

import (
	"context"
	"image"
	"runtime"
	"sort"

	"github.com/WilsonWong800686/yys-autommation/internal/catalog"
)

// Logger defines the logging interface used by the recognizer.
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

// Candidate is a control found in a frame.
type Candidate struct {
	Control    string       `json:"control"`
	Kind       catalog.Kind `json:"kind"`
	Center     image.Point  `json:"center"`
	Confidence float64      `json:"confidence"`
	Priority   int          `json:"priority"`
	Order      int          `json:"order"`
}

// Options tunes the matcher.
type Options struct {
	// Scale is the integer downscale applied to frames and templates.
	Scale int
	// Step is the coarse search stride in scaled pixels.
	Step int
	// Workers is the number of goroutines splitting the rows. 0 uses GOMAXPROCS.
	Workers int
}

// Recognizer finds catalog controls in frames.
//
// Thread Safety: Detect is safe for concurrent use. One Recognizer and its
// Cache can be shared by every session playing the same catalog.
type Recognizer struct {
	catalog *catalog.Catalog
	cache   *Cache
	matcher matcher
	scale   int
	logger  Logger
}

// New creates a recognizer for a catalog.
//
// Parameters:
//   - cat: catalog whose controls and thresholds are matched
//   - cache: template cache; nil creates a private one at opts.Scale
//   - opts: matcher tuning
func New(cat *catalog.Catalog, cache *Cache, opts Options) *Recognizer {
	scale := max(opts.Scale, 1)
	if cache == nil {
		cache = NewCache(scale)
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Recognizer{
		catalog: cat,
		cache:   cache,
		matcher: matcher{step: max(opts.Step, 1), workers: workers},
		scale:   cache.scale,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the recognizer and its cache.
func (r *Recognizer) SetLogger(l Logger) {
	if l == nil {
		l = noopLogger{}
	}
	r.logger = l
	r.cache.SetLogger(l)
}

// Catalog returns the catalog the recognizer matches against.
func (r *Recognizer) Catalog() *catalog.Catalog { return r.catalog }

// Detect looks for the named controls in frame and returns at most one
// candidate per control, sorted by priority ascending, confidence descending,
// then catalog order.
//
// Unknown names and controls whose template cannot be loaded produce no
// candidate. A nil or empty frame returns ErrInvalidFrame.
func (r *Recognizer) Detect(ctx context.Context, frame image.Image, names []string) ([]Candidate, error) {
	if frame == nil || frame.Bounds().Empty() {
		return nil, ErrInvalidFrame
	}
	if len(names) == 0 {
		return nil, nil
	}

	origin := frame.Bounds().Min
	prepared := make(map[int]*framePlanes, 2)
	planesAt := func(scale int) *framePlanes {
		fp, ok := prepared[scale]
		if !ok {
			fp = prepareFrame(frame, scale)
			prepared[scale] = fp
		}
		return fp
	}

	var out []Candidate
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ctl, ok := r.catalog.Lookup(name)
		if !ok {
			r.logger.Debug("unknown control requested", "control", name)
			continue
		}
		tmpl, err := r.cache.Get(r.catalog.TemplatePath(ctl))
		if err != nil {
			continue
		}

		fp := planesAt(tmpl.Scale)
		best, fits, err := r.matcher.match(ctx, fp, tmpl)
		if err != nil {
			return nil, err
		}
		if !fits || best.score < ctl.Threshold {
			continue
		}

		out = append(out, Candidate{
			Control: ctl.Name,
			Kind:    ctl.Kind,
			Center: image.Point{
				X: origin.X + best.x*tmpl.Scale + tmpl.Width/2,
				Y: origin.Y + best.y*tmpl.Scale + tmpl.Height/2,
			},
			Confidence: best.score,
			Priority:   ctl.Priority,
			Order:      ctl.Order,
		})
	}

	Sort(out)
	return out, nil
}

// DetectOne looks for a single control.
func (r *Recognizer) DetectOne(ctx context.Context, frame image.Image, name string) (Candidate, bool, error) {
	cands, err := r.Detect(ctx, frame, []string{name})
	if err != nil || len(cands) == 0 {
		return Candidate{}, false, err
	}
	return cands[0], true, nil
}

// Preload loads every catalog template into the cache and reports which
// controls have no usable template.
func (r *Recognizer) Preload() (loaded int, missing []string) {
	for _, ctl := range r.catalog.Controls() {
		if _, err := r.cache.Get(r.catalog.TemplatePath(ctl)); err != nil {
			missing = append(missing, ctl.Name)
			continue
		}
		loaded++
	}
	return loaded, missing
}

// Sort orders candidates by priority ascending, confidence descending and
// catalog order ascending.
func Sort(cands []Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		return a.Order < b.Order
	})
}
