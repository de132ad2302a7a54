package device

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/nerrad567/gray-logic-melcloud/internal/melcloud"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Source lists the devices visible to the MELCloud account.
type Source interface {
	ListDevices(ctx context.Context) ([]melcloud.Device, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) ([]melcloud.Device, error)

// ListDevices calls f.
func (f SourceFunc) ListDevices(ctx context.Context) ([]melcloud.Device, error) {
	return f(ctx)
}

// Registry is the in-memory accessory cache. All methods are thread-safe.
type Registry struct {
	info    Info
	cache   map[int]Accessory
	cacheMu sync.RWMutex
	logger  Logger
}

// NewRegistry creates an empty registry applying info to every accessory.
func NewRegistry(info Info) *Registry {
	return &Registry{
		info:   info,
		cache:  make(map[int]Accessory),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache replaces the accessory set with what src reports.
// On error the previous set is kept.
func (r *Registry) RefreshCache(ctx context.Context, src Source) error {
	devices, err := src.ListDevices(ctx)
	if err != nil {
		return fmt.Errorf("listing devices: %w", err)
	}
	r.Load(devices)
	return nil
}

// Load replaces the accessory set. A device listed twice keeps its first entry.
func (r *Registry) Load(devices []melcloud.Device) {
	cache := make(map[int]Accessory, len(devices))
	for _, d := range devices {
		if _, dup := cache[d.ID]; dup {
			r.logger.Warn("duplicate device in building tree", "device_id", d.ID)
			continue
		}
		cache[d.ID] = NewAccessory(d, r.info)
	}

	r.cacheMu.Lock()
	r.cache = cache
	r.cacheMu.Unlock()

	r.logger.Info("accessory cache refreshed", "count", len(cache))
}

// GetAccessory returns the accessory with the given ID.
func (r *Registry) GetAccessory(id int) (Accessory, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	a, ok := r.cache[id]
	if !ok {
		return Accessory{}, fmt.Errorf("%w: %d", ErrAccessoryNotFound, id)
	}
	return a, nil
}

// ListAccessories returns every accessory ordered by ID.
func (r *Registry) ListAccessories() []Accessory {
	r.cacheMu.RLock()
	out := make([]Accessory, 0, len(r.cache))
	for _, a := range r.cache {
		out = append(out, a)
	}
	r.cacheMu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetAccessoryCount returns the number of accessories.
func (r *Registry) GetAccessoryCount() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}
