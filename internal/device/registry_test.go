package device

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// mockRepository is an in-memory Repository for registry tests.
type mockRepository struct {
	mu      sync.Mutex
	devices map[string]*Device

	// failWith, when set, is returned from every method.
	failWith error
}

func newMockRepository() *mockRepository {
	return &mockRepository{devices: make(map[string]*Device)}
}

func (m *mockRepository) GetByID(_ context.Context, id string) (*Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	d, ok := m.devices[id]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	return d.DeepCopy(), nil
}

func (m *mockRepository) GetBySlug(_ context.Context, slug string) (*Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	for _, d := range m.devices {
		if d.Slug == slug {
			return d.DeepCopy(), nil
		}
	}
	return nil, ErrDeviceNotFound
}

func (m *mockRepository) List(_ context.Context) ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	var out []Device
	for _, d := range m.devices {
		out = append(out, *d.DeepCopy())
	}
	return out, nil
}

func (m *mockRepository) ListByAdapter(_ context.Context, adapter Adapter) ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	var out []Device
	for _, d := range m.devices {
		if d.Adapter == adapter {
			out = append(out, *d.DeepCopy())
		}
	}
	return out, nil
}

func (m *mockRepository) Create(_ context.Context, device *Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	if _, ok := m.devices[device.ID]; ok {
		return ErrDeviceExists
	}
	m.devices[device.ID] = device.DeepCopy()
	return nil
}

func (m *mockRepository) Update(_ context.Context, device *Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	if _, ok := m.devices[device.ID]; !ok {
		return ErrDeviceNotFound
	}
	m.devices[device.ID] = device.DeepCopy()
	return nil
}

func (m *mockRepository) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	if _, ok := m.devices[id]; !ok {
		return ErrDeviceNotFound
	}
	delete(m.devices, id)
	return nil
}

func (m *mockRepository) UpdateHealth(_ context.Context, id string, status HealthStatus, lastSeen time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	d, ok := m.devices[id]
	if !ok {
		return ErrDeviceNotFound
	}
	d.HealthStatus = status
	d.LastSeen = &lastSeen
	return nil
}

func registryDevice(name string) *Device {
	return &Device{
		Name:     name,
		Adapter:  AdapterHTTPJSON,
		Endpoint: "http://10.0.0.5/api",
	}
}

func TestRegistry_CreateDevice(t *testing.T) {
	repo := newMockRepository()
	registry := NewRegistry(repo)
	ctx := context.Background()

	d := registryDevice("Porch Light")
	if err := registry.CreateDevice(ctx, d); err != nil {
		t.Fatalf("CreateDevice() error = %v", err)
	}

	if d.ID == "" {
		t.Error("expected generated ID")
	}
	if d.Slug != "porch-light" {
		t.Errorf("Slug = %q, want porch-light", d.Slug)
	}
	if d.HealthStatus != HealthStatusUnknown {
		t.Errorf("HealthStatus = %q, want unknown", d.HealthStatus)
	}

	got, err := registry.GetDevice(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetDevice() error = %v", err)
	}
	if got.Name != "Porch Light" {
		t.Errorf("Name = %q, want Porch Light", got.Name)
	}
}

func TestRegistry_CreateDevice_ValidationFailure(t *testing.T) {
	registry := NewRegistry(newMockRepository())
	ctx := context.Background()

	d := registryDevice("")
	err := registry.CreateDevice(ctx, d)
	if !errors.Is(err, ErrInvalidName) {
		t.Errorf("CreateDevice() error = %v, want ErrInvalidName", err)
	}

	d = registryDevice("Bad Adapter")
	d.Adapter = "serial"
	err = registry.CreateDevice(ctx, d)
	if !errors.Is(err, ErrInvalidAdapter) {
		t.Errorf("CreateDevice() error = %v, want ErrInvalidAdapter", err)
	}
}

func TestRegistry_GetDevice_CacheIsolation(t *testing.T) {
	registry := NewRegistry(newMockRepository())
	ctx := context.Background()

	d := registryDevice("Shared Device")
	d.Labels = map[string]string{"room": "hall"}
	if err := registry.CreateDevice(ctx, d); err != nil {
		t.Fatalf("CreateDevice() error = %v", err)
	}

	first, err := registry.GetDevice(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetDevice() error = %v", err)
	}
	first.Labels["room"] = "mutated"
	first.Name = "Mutated"

	second, err := registry.GetDevice(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetDevice() error = %v", err)
	}
	if second.Labels["room"] != "hall" {
		t.Errorf("cache mutated through returned copy: room = %q", second.Labels["room"])
	}
	if second.Name != "Shared Device" {
		t.Errorf("cache mutated through returned copy: name = %q", second.Name)
	}
}

func TestRegistry_GetDeviceBySlug(t *testing.T) {
	registry := NewRegistry(newMockRepository())
	ctx := context.Background()

	d := registryDevice("Utility Meter")
	if err := registry.CreateDevice(ctx, d); err != nil {
		t.Fatalf("CreateDevice() error = %v", err)
	}

	got, err := registry.GetDeviceBySlug(ctx, "utility-meter")
	if err != nil {
		t.Fatalf("GetDeviceBySlug() error = %v", err)
	}
	if got.ID != d.ID {
		t.Errorf("ID = %q, want %q", got.ID, d.ID)
	}

	if _, err := registry.GetDeviceBySlug(ctx, "nope"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetDeviceBySlug(missing) error = %v, want ErrDeviceNotFound", err)
	}
}

func TestRegistry_UpdateDevice_RegeneratesSlug(t *testing.T) {
	registry := NewRegistry(newMockRepository())
	ctx := context.Background()

	d := registryDevice("Old Name")
	if err := registry.CreateDevice(ctx, d); err != nil {
		t.Fatalf("CreateDevice() error = %v", err)
	}

	d.Name = "Brand New Name"
	if err := registry.UpdateDevice(ctx, d); err != nil {
		t.Fatalf("UpdateDevice() error = %v", err)
	}
	if d.Slug != "brand-new-name" {
		t.Errorf("Slug = %q, want brand-new-name", d.Slug)
	}
}

func TestRegistry_DeleteDevice(t *testing.T) {
	registry := NewRegistry(newMockRepository())
	ctx := context.Background()

	d := registryDevice("Temp Device")
	if err := registry.CreateDevice(ctx, d); err != nil {
		t.Fatalf("CreateDevice() error = %v", err)
	}

	if err := registry.DeleteDevice(ctx, d.ID); err != nil {
		t.Fatalf("DeleteDevice() error = %v", err)
	}

	if _, err := registry.GetDevice(ctx, d.ID); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetDevice() after delete error = %v, want ErrDeviceNotFound", err)
	}
	if registry.GetDeviceCount() != 0 {
		t.Errorf("GetDeviceCount() = %d, want 0", registry.GetDeviceCount())
	}
}

func TestRegistry_SetDeviceHealth(t *testing.T) {
	registry := NewRegistry(newMockRepository())
	ctx := context.Background()

	d := registryDevice("Flaky Device")
	if err := registry.CreateDevice(ctx, d); err != nil {
		t.Fatalf("CreateDevice() error = %v", err)
	}

	if err := registry.SetDeviceHealth(ctx, d.ID, HealthStatusOffline); err != nil {
		t.Fatalf("SetDeviceHealth() error = %v", err)
	}

	got, err := registry.GetDevice(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetDevice() error = %v", err)
	}
	if got.HealthStatus != HealthStatusOffline {
		t.Errorf("HealthStatus = %q, want offline", got.HealthStatus)
	}
	if got.LastSeen == nil {
		t.Error("LastSeen not set")
	}
}

func TestRegistry_RefreshCache(t *testing.T) {
	repo := newMockRepository()
	seed := registryDevice("Seeded Device")
	seed.ID = GenerateID()
	seed.Slug = "seeded-device"
	if err := repo.Create(context.Background(), seed); err != nil {
		t.Fatalf("seed Create() error = %v", err)
	}

	registry := NewRegistry(repo)
	if err := registry.RefreshCache(context.Background()); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}

	if registry.GetDeviceCount() != 1 {
		t.Errorf("GetDeviceCount() = %d, want 1", registry.GetDeviceCount())
	}
}

func TestRegistry_GetStats(t *testing.T) {
	registry := NewRegistry(newMockRepository())
	ctx := context.Background()

	httpDev := registryDevice("HTTP One")
	if err := registry.CreateDevice(ctx, httpDev); err != nil {
		t.Fatalf("CreateDevice() error = %v", err)
	}
	mqttDev := registryDevice("MQTT One")
	mqttDev.Adapter = AdapterMQTTPush
	mqttDev.Endpoint = "vendor/mqtt-one/state"
	if err := registry.CreateDevice(ctx, mqttDev); err != nil {
		t.Fatalf("CreateDevice() error = %v", err)
	}

	stats := registry.GetStats()
	if stats.TotalDevices != 2 {
		t.Errorf("TotalDevices = %d, want 2", stats.TotalDevices)
	}
	if stats.ByAdapter[AdapterHTTPJSON] != 1 || stats.ByAdapter[AdapterMQTTPush] != 1 {
		t.Errorf("ByAdapter = %v, want one of each", stats.ByAdapter)
	}
	if stats.ByHealthStatus[HealthStatusUnknown] != 2 {
		t.Errorf("ByHealthStatus = %v, want 2 unknown", stats.ByHealthStatus)
	}
}

func TestRegistry_GetDevicesByHealthStatus(t *testing.T) {
	registry := NewRegistry(newMockRepository())
	ctx := context.Background()

	healthy := registryDevice("Healthy Device")
	if err := registry.CreateDevice(ctx, healthy); err != nil {
		t.Fatalf("CreateDevice() error = %v", err)
	}
	if err := registry.SetDeviceHealth(ctx, healthy.ID, HealthStatusOnline); err != nil {
		t.Fatalf("SetDeviceHealth() error = %v", err)
	}

	sick := registryDevice("Sick Device")
	if err := registry.CreateDevice(ctx, sick); err != nil {
		t.Fatalf("CreateDevice() error = %v", err)
	}
	if err := registry.SetDeviceHealth(ctx, sick.ID, HealthStatusDegraded); err != nil {
		t.Fatalf("SetDeviceHealth() error = %v", err)
	}

	degraded, err := registry.GetDevicesByHealthStatus(ctx, HealthStatusDegraded)
	if err != nil {
		t.Fatalf("GetDevicesByHealthStatus() error = %v", err)
	}
	if len(degraded) != 1 || degraded[0].ID != sick.ID {
		t.Errorf("GetDevicesByHealthStatus(degraded) = %+v, want only sick device", degraded)
	}
}
