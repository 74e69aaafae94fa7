package device

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Logger is the slice of the logging package the registry needs.
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

// Registry fronts the device Repository with an in-memory cache so the
// hub and API can look devices up without touching SQLite. RefreshCache
// populates it at startup; mutating operations keep it in sync. Every
// device that crosses the boundary is a deep copy, so callers can never
// mutate cached state. All methods are safe for concurrent use.
type Registry struct {
	repo   Repository
	logger Logger

	mu    sync.RWMutex
	cache map[string]*Device // by ID
}

func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]*Device),
		logger: noopLogger{},
	}
}

func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads every device from the repository. Called once at
// startup before the hub spins up coordinators.
func (r *Registry) RefreshCache(ctx context.Context) error {
	devices, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	fresh := make(map[string]*Device, len(devices))
	for i := range devices {
		fresh[devices[i].ID] = devices[i].DeepCopy()
	}

	r.mu.Lock()
	r.cache = fresh
	r.mu.Unlock()

	r.logger.Info("device cache refreshed", "count", len(devices))
	return nil
}

// store caches a deep copy of d.
func (r *Registry) store(d *Device) {
	r.mu.Lock()
	r.cache[d.ID] = d.DeepCopy()
	r.mu.Unlock()
}

// filterCached returns deep copies of cached devices matching pred.
func (r *Registry) filterCached(pred func(*Device) bool) []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Device
	for _, d := range r.cache {
		if pred(d) {
			out = append(out, *d.DeepCopy())
		}
	}
	return out
}

// GetDevice looks a device up by ID, falling back to the repository for
// devices created since the last cache refresh. Returns ErrDeviceNotFound
// when it exists nowhere.
func (r *Registry) GetDevice(ctx context.Context, id string) (*Device, error) {
	r.mu.RLock()
	cached, ok := r.cache[id]
	r.mu.RUnlock()
	if ok {
		return cached.DeepCopy(), nil
	}

	device, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.store(device)
	return device, nil
}

// GetDeviceBySlug looks a device up by its URL-safe slug.
func (r *Registry) GetDeviceBySlug(ctx context.Context, slug string) (*Device, error) {
	if matches := r.filterCached(func(d *Device) bool { return d.Slug == slug }); len(matches) > 0 {
		return &matches[0], nil
	}
	return r.repo.GetBySlug(ctx, slug)
}

// ListDevices returns all devices, from cache when populated.
func (r *Registry) ListDevices(ctx context.Context) ([]Device, error) {
	r.mu.RLock()
	populated := len(r.cache) > 0
	r.mu.RUnlock()

	if populated {
		return r.filterCached(func(*Device) bool { return true }), nil
	}
	return r.repo.List(ctx)
}

// GetDevicesByAdapter returns the devices bound to one adapter.
func (r *Registry) GetDevicesByAdapter(ctx context.Context, adapter Adapter) ([]Device, error) {
	r.mu.RLock()
	populated := len(r.cache) > 0
	r.mu.RUnlock()

	if populated {
		return r.filterCached(func(d *Device) bool { return d.Adapter == adapter }), nil
	}
	return r.repo.ListByAdapter(ctx, adapter)
}

// GetDevicesByHealthStatus filters the cache by health status.
func (r *Registry) GetDevicesByHealthStatus(_ context.Context, status HealthStatus) ([]Device, error) {
	return r.filterCached(func(d *Device) bool { return d.HealthStatus == status }), nil
}

// CreateDevice fills in ID, slug, and health status when unset, validates,
// persists, and caches.
func (r *Registry) CreateDevice(ctx context.Context, device *Device) error {
	if device.ID == "" {
		device.ID = GenerateID()
	}
	if device.Slug == "" {
		device.Slug = GenerateSlug(device.Name)
	}
	if device.HealthStatus == "" {
		device.HealthStatus = HealthStatusUnknown
	}

	if err := ValidateDevice(device); err != nil {
		return err
	}
	if err := r.repo.Create(ctx, device); err != nil {
		return err
	}
	r.store(device)

	r.logger.Info("device created", "id", device.ID, "name", device.Name)
	return nil
}

// UpdateDevice validates and persists changes. A rename regenerates the
// slug unless the caller picked one explicitly.
func (r *Registry) UpdateDevice(ctx context.Context, device *Device) error {
	existing, err := r.GetDevice(ctx, device.ID)
	if err != nil {
		return err
	}
	if device.Name != existing.Name && device.Slug == existing.Slug {
		device.Slug = GenerateSlug(device.Name)
	}

	if err := ValidateDevice(device); err != nil {
		return err
	}
	if err := r.repo.Update(ctx, device); err != nil {
		return err
	}
	r.store(device)

	r.logger.Info("device updated", "id", device.ID, "name", device.Name)
	return nil
}

// DeleteDevice removes a device from storage and cache.
func (r *Registry) DeleteDevice(ctx context.Context, id string) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.cache, id)
	r.mu.Unlock()

	r.logger.Info("device deleted", "id", id)
	return nil
}

// SetDeviceHealth records a health transition. Hot path: the hub calls
// this on every coordinator state change.
func (r *Registry) SetDeviceHealth(ctx context.Context, id string, status HealthStatus) error {
	now := time.Now().UTC()
	if err := r.repo.UpdateHealth(ctx, id, status, now); err != nil {
		return err
	}

	// Swap in a fresh copy so concurrent readers never see a partial write.
	r.mu.Lock()
	if cached, ok := r.cache[id]; ok {
		updated := cached.DeepCopy()
		updated.HealthStatus = status
		updated.LastSeen = &now
		r.cache[id] = updated
	}
	r.mu.Unlock()

	r.logger.Debug("device health updated", "id", id, "status", status)
	return nil
}

// GetDeviceCount reports the cached device count.
func (r *Registry) GetDeviceCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}

// Stats breaks the cached fleet down for the metrics endpoint.
type Stats struct {
	TotalDevices   int                  `json:"total_devices"`
	ByAdapter      map[Adapter]int      `json:"by_adapter"`
	ByHealthStatus map[HealthStatus]int `json:"by_health_status"`
}

func (r *Registry) GetStats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{
		TotalDevices:   len(r.cache),
		ByAdapter:      make(map[Adapter]int),
		ByHealthStatus: make(map[HealthStatus]int),
	}
	for _, d := range r.cache {
		stats.ByAdapter[d.Adapter]++
		stats.ByHealthStatus[d.HealthStatus]++
	}
	return stats
}
