package device

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
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

// Registry caches the emulator inventory and merges discovery results into it.
// It wraps an Inventory and adds an in-memory cache and online tracking.
//
// All public methods are thread-safe.
type Registry struct {
	inv     Inventory
	cache   map[string]Emulator
	cacheMu sync.RWMutex
	logger  Logger
}

// NewRegistry creates a new emulator registry.
// The inventory is used for persistence; the registry adds caching.
func NewRegistry(inv Inventory) *Registry {
	return &Registry{
		inv:    inv,
		cache:  make(map[string]Emulator),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads all emulators from the inventory into the cache.
// Online flags are cleared: only Record marks a serial as attached.
func (r *Registry) RefreshCache(ctx context.Context) error {
	emulators, err := r.inv.List(ctx)
	if err != nil {
		return fmt.Errorf("loading emulators: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.cache = make(map[string]Emulator, len(emulators))
	for _, e := range emulators {
		e.Online = false
		r.cache[e.Serial] = e
	}

	r.logger.Info("emulator cache refreshed", "count", len(emulators))
	return nil
}

// Record persists a discovery pass. Serials missing from found are marked
// offline in the cache but kept in the inventory.
func (r *Registry) Record(ctx context.Context, found []Emulator) error {
	for i := range found {
		if err := r.inv.Upsert(ctx, &found[i]); err != nil {
			return fmt.Errorf("recording %s: %w", found[i].Serial, err)
		}
	}

	seen := make(map[string]bool, len(found))
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()
	for _, e := range found {
		seen[e.Serial] = true
		if prev, ok := r.cache[e.Serial]; ok {
			e = mergeEmulator(prev, e)
		}
		r.cache[e.Serial] = e
	}
	for serial, e := range r.cache {
		if !seen[serial] && e.Online {
			e.Online = false
			r.cache[serial] = e
		}
	}

	r.logger.Debug("discovery recorded", "found", len(found))
	return nil
}

// Get retrieves an emulator by serial.
func (r *Registry) Get(ctx context.Context, serial string) (Emulator, error) {
	r.cacheMu.RLock()
	e, ok := r.cache[serial]
	r.cacheMu.RUnlock()
	if ok {
		return e, nil
	}

	stored, err := r.inv.Get(ctx, serial)
	if err != nil {
		return Emulator{}, err
	}

	r.cacheMu.Lock()
	r.cache[serial] = *stored
	r.cacheMu.Unlock()
	return *stored, nil
}

// List returns every known emulator ordered by serial.
func (r *Registry) List() []Emulator {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	out := make([]Emulator, 0, len(r.cache))
	for _, e := range r.cache {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Serial < out[j].Serial })
	return out
}

// Online returns the serials currently attached, ordered by serial.
func (r *Registry) Online() []string {
	var out []string
	for _, e := range r.List() {
		if e.Online {
			out = append(out, e.Serial)
		}
	}
	return out
}

// Forget removes an emulator from the inventory and the cache.
func (r *Registry) Forget(ctx context.Context, serial string) error {
	if err := r.inv.Delete(ctx, serial); err != nil {
		return err
	}
	r.cacheMu.Lock()
	delete(r.cache, serial)
	r.cacheMu.Unlock()

	r.logger.Info("emulator forgotten", "serial", serial)
	return nil
}

// mergeEmulator keeps earlier probe values when the new sighting lacks them.
func mergeEmulator(prev, next Emulator) Emulator {
	if next.Model == "" {
		next.Model = prev.Model
	}
	if next.Brand == "" {
		next.Brand = prev.Brand
	}
	if next.Name == "" {
		next.Name = prev.Name
	}
	if next.Android == "" {
		next.Android = prev.Android
	}
	if next.Kind == KindUnknown || next.Kind == "" {
		next.Kind = prev.Kind
	}
	return next
}
