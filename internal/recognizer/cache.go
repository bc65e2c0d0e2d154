package recognizer

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"io/fs"
	"os"
	"sync"
)

// Template is a decoded template image prepared for matching.
type Template struct {
	Path   string
	Width  int // full-resolution size
	Height int
	Scale  int // downscale factor the template was prepared at

	scaled *plane
	norm   float64
}

// Cache loads each template file once per process. Failed loads (including
// missing files) are cached as well, so a missing template is reported once
// and never retried.
//
// Thread Safety: all methods are safe for concurrent use.
type Cache struct {
	scale   int
	mu      sync.Mutex
	entries map[string]*cacheEntry
	logger  Logger
}

type cacheEntry struct {
	once sync.Once
	tmpl *Template
	err  error
}

// NewCache creates a template cache that prepares templates at the given
// integer downscale factor.
func NewCache(scale int) *Cache {
	return &Cache{
		scale:   max(scale, 1),
		entries: make(map[string]*cacheEntry),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger used for load warnings.
func (c *Cache) SetLogger(l Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if l == nil {
		l = noopLogger{}
	}
	c.logger = l
}

// Get returns the template at path, loading it on first use.
func (c *Cache) Get(path string) (*Template, error) {
	c.mu.Lock()
	e, ok := c.entries[path]
	if !ok {
		e = &cacheEntry{}
		c.entries[path] = e
	}
	logger := c.logger
	c.mu.Unlock()

	e.once.Do(func() {
		e.tmpl, e.err = loadTemplate(path, c.scale)
		if e.err != nil {
			logger.Warn("template unavailable", "path", path, "error", e.err)
		}
	})
	return e.tmpl, e.err
}

// Len returns the number of cached paths, including failed loads.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func loadTemplate(path string, scale int) (*Template, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrTemplateMissing, path)
		}
		return nil, fmt.Errorf("opening template: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrTemplateDecode, path, err)
	}
	return NewTemplate(path, img, scale), nil
}

// NewTemplate prepares an in-memory image as a template. Templates too small
// to survive the downscale are kept at full resolution.
func NewTemplate(name string, img image.Image, scale int) *Template {
	full := grayPlane(img)
	if scale < 1 || full.w/scale < minScaledSide || full.h/scale < minScaledSide {
		scale = 1
	}
	scaled := full.downscale(scale)
	t := &Template{
		Path:   name,
		Width:  full.w,
		Height: full.h,
		Scale:  scale,
		scaled: scaled,
	}
	t.norm = scaled.zeroMean()
	return t
}
