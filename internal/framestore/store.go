package framestore

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/golang/snappy"
)

// ErrNotFound is returned when no frame is stored under a key.
var ErrNotFound = errors.New("framestore: frame not found")

type entry struct {
	rect     image.Rectangle
	stride   int
	data     []byte
	captured time.Time
}

// Store holds one compressed frame per key (device serial).
//
// Thread Safety: all methods are safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	frames map[string]entry
	now    func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{frames: make(map[string]entry), now: time.Now}
}

// Put replaces the frame stored under key.
func (s *Store) Put(key string, img image.Image) {
	if img == nil || img.Bounds().Empty() {
		return
	}
	nrgba, ok := img.(*image.NRGBA)
	if !ok || nrgba.Rect.Min != (image.Point{}) {
		b := img.Bounds()
		nrgba = image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(nrgba, nrgba.Rect, img, b.Min, draw.Src)
	}

	e := entry{
		rect:     nrgba.Rect,
		stride:   nrgba.Stride,
		data:     snappy.Encode(nil, nrgba.Pix),
		captured: s.now(),
	}
	s.mu.Lock()
	s.frames[key] = e
	s.mu.Unlock()
}

// Get returns the frame stored under key and when it was captured.
func (s *Store) Get(key string) (*image.NRGBA, time.Time, error) {
	s.mu.RLock()
	e, ok := s.frames[key]
	s.mu.RUnlock()
	if !ok {
		return nil, time.Time{}, ErrNotFound
	}

	pix, err := snappy.Decode(nil, e.data)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("decompressing frame %s: %w", key, err)
	}
	return &image.NRGBA{Pix: pix, Stride: e.stride, Rect: e.rect}, e.captured, nil
}

// WritePNG encodes the frame stored under key as PNG.
func (s *Store) WritePNG(w io.Writer, key string) error {
	img, _, err := s.Get(key)
	if err != nil {
		return err
	}
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("encoding frame %s: %w", key, err)
	}
	return nil
}

// Delete drops the frame stored under key.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	delete(s.frames, key)
	s.mu.Unlock()
}

// Keys returns the stored keys, sorted.
func (s *Store) Keys() []string {
	s.mu.RLock()
	keys := make([]string, 0, len(s.frames))
	for k := range s.frames {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Size returns the total compressed size in bytes.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.frames {
		n += len(e.data)
	}
	return n
}
