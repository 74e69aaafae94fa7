package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hearthd/hearth-core/internal/adapters/httpjson"
	"github.com/hearthd/hearth-core/internal/adapters/mqttpush"
	"github.com/hearthd/hearth-core/internal/device"
	"github.com/hearthd/hearth-core/internal/infrastructure/mqtt"
	"github.com/hearthd/hearth-core/internal/poll"
)

// publishQoS is the QoS for state and availability publications.
const publishQoS = 1

// Config holds hub-wide polling defaults, resolved from config.yaml.
type Config struct {
	// DefaultInterval applies to devices without a poll_interval override.
	DefaultInterval time.Duration

	// BackoffUnit is the per-failure retry delay increment.
	BackoffUnit time.Duration

	// MaxBackoff caps the retry delay.
	MaxBackoff time.Duration
}

// Broker is the MQTT surface the hub needs. Satisfied by *mqtt.Client.
type Broker interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	PublishRetained(topic string, payload []byte) error
	PublishString(topic string, payload string, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	IsConnected() bool
}

// History is the time-series surface the hub needs. Satisfied by *influxdb.Client.
type History interface {
	WriteSnapshot(slug string, seq uint64, taken time.Time, data map[string]any)
	WriteHealthStatus(slug string, status string)
}

// Broadcaster pushes events to connected WebSocket clients.
// Satisfied by *api.Hub.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// Logger defines the logging interface used by the hub.
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

// stateMessage is the JSON shape published to hearth/state/<slug> and
// broadcast on the device.state_changed channel.
type stateMessage struct {
	DeviceID string         `json:"device_id"`
	Slug     string         `json:"slug"`
	Name     string         `json:"name"`
	Seq      uint64         `json:"seq"`
	Taken    time.Time      `json:"taken"`
	State    map[string]any `json:"state"`
}

// healthMessage is broadcast on the device.health_changed channel.
type healthMessage struct {
	DeviceID string `json:"device_id"`
	Slug     string `json:"slug"`
	Status   string `json:"status"`
}

// runner pairs a device with its running coordinator.
type runner struct {
	dev   device.Device
	coord *poll.Coordinator
}

// Hub supervises one poll.Coordinator per registered device.
type Hub struct {
	cfg      Config
	registry *device.Registry
	broker   Broker
	history  History
	logger   Logger

	mu          sync.RWMutex
	runners     map[string]*runner // keyed by slug
	broadcaster Broadcaster
	started     bool
	ctx         context.Context
	cancel      context.CancelFunc
}

// New creates a hub. broker and history may be nil when MQTT or InfluxDB
// are not configured; the corresponding outputs are skipped.
func New(registry *device.Registry, broker Broker, history History, cfg Config) *Hub {
	if cfg.DefaultInterval <= 0 {
		cfg.DefaultInterval = 30 * time.Second
	}

	return &Hub{
		cfg:      cfg,
		registry: registry,
		broker:   broker,
		history:  history,
		logger:   noopLogger{},
		runners:  make(map[string]*runner),
	}
}

// SetLogger sets the logger for the hub.
func (h *Hub) SetLogger(logger Logger) {
	h.logger = logger
}

// SetBroadcaster wires the WebSocket hub. Called once during startup,
// after the API server is constructed.
func (h *Hub) SetBroadcaster(b Broadcaster) {
	h.mu.Lock()
	h.broadcaster = b
	h.mu.Unlock()
}

// Start attaches every registered device and subscribes to refresh
// requests. Coordinators poll until ctx is cancelled or Stop is called.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return ErrAlreadyStarted
	}
	h.started = true
	h.ctx, h.cancel = context.WithCancel(ctx)
	h.mu.Unlock()

	devices, err := h.registry.ListDevices(ctx)
	if err != nil {
		return fmt.Errorf("hub: list devices: %w", err)
	}

	for _, dev := range devices {
		if err := h.AttachDevice(dev); err != nil {
			h.logger.Error("device attach failed",
				"slug", dev.Slug,
				"adapter", dev.Adapter,
				"error", err,
			)
		}
	}

	if h.broker != nil {
		topic := mqtt.Topics{}.AllRefreshRequests()
		if err := h.broker.Subscribe(topic, publishQoS, h.handleRefreshRequest); err != nil {
			h.logger.Warn("refresh request subscription failed", "error", err)
		}
	}

	h.logger.Info("hub started", "devices", len(devices))
	return nil
}

// AttachDevice builds the adapter and coordinator for a device and
// begins polling it. Returns ErrDeviceAttached if the slug is already
// running.
func (h *Hub) AttachDevice(dev device.Device) error {
	h.mu.Lock()
	if !h.started {
		h.mu.Unlock()
		return fmt.Errorf("hub: not started")
	}
	if _, exists := h.runners[dev.Slug]; exists {
		h.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDeviceAttached, dev.Slug)
	}
	ctx := h.ctx
	h.mu.Unlock()

	coord, err := h.buildCoordinator(dev)
	if err != nil {
		return err
	}

	devCopy := *dev.DeepCopy()
	coord.AddListener(func(snap poll.Snapshot) {
		h.onSnapshot(devCopy, snap)
	})
	coord.SetOnStateChange(func(state poll.ConnState) {
		h.onStateChange(devCopy, state)
	})
	coord.SetOnAuthError(func(err error) {
		h.onAuthError(devCopy, err)
	})

	if err := coord.Start(ctx); err != nil {
		return fmt.Errorf("hub: start coordinator for %s: %w", dev.Slug, err)
	}

	h.mu.Lock()
	h.runners[dev.Slug] = &runner{dev: devCopy, coord: coord}
	h.mu.Unlock()

	h.logger.Info("device attached",
		"slug", dev.Slug,
		"adapter", dev.Adapter,
	)
	return nil
}

// buildCoordinator constructs the vendor adapter named by the device and
// wraps it in a coordinator.
func (h *Hub) buildCoordinator(dev device.Device) (*poll.Coordinator, error) {
	cfg := poll.Config{
		Interval:    h.pollInterval(dev),
		BackoffUnit: h.cfg.BackoffUnit,
		MaxBackoff:  h.cfg.MaxBackoff,
	}

	switch dev.Adapter {
	case device.AdapterHTTPJSON:
		client, err := httpjson.New(httpjson.Options{
			Endpoint: dev.Endpoint,
			Token:    dev.Token,
		})
		if err != nil {
			return nil, fmt.Errorf("hub: build httpjson adapter for %s: %w", dev.Slug, err)
		}
		coord, err := poll.New(client, cfg)
		if err != nil {
			return nil, fmt.Errorf("hub: coordinator for %s: %w", dev.Slug, err)
		}
		coord.SetLogger(h.logger)
		return coord, nil

	case device.AdapterMQTTPush:
		if h.broker == nil {
			return nil, fmt.Errorf("%w: %s", ErrBrokerRequired, dev.Slug)
		}
		source, err := mqttpush.New(h.broker, dev.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("hub: build mqttpush adapter for %s: %w", dev.Slug, err)
		}
		coord, err := poll.New(source, cfg)
		if err != nil {
			source.Close()
			return nil, fmt.Errorf("hub: coordinator for %s: %w", dev.Slug, err)
		}
		coord.SetLogger(h.logger)
		source.Bind(coord.Apply)
		return coord, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownAdapter, dev.Adapter)
	}
}

// pollInterval resolves the effective interval for a device.
func (h *Hub) pollInterval(dev device.Device) time.Duration {
	if dev.PollInterval > 0 {
		return time.Duration(dev.PollInterval) * time.Second
	}
	return h.cfg.DefaultInterval
}

// DetachDevice stops the coordinator for a slug and releases its adapter.
func (h *Hub) DetachDevice(slug string) error {
	h.mu.Lock()
	r, ok := h.runners[slug]
	delete(h.runners, slug)
	h.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotAttached, slug)
	}

	r.coord.Stop()
	h.logger.Info("device detached", "slug", slug)
	return nil
}

// RestartDevice detaches and reattaches a device, picking up changed
// endpoint, credentials or interval. Used by the API after updates.
func (h *Hub) RestartDevice(dev device.Device) error {
	// Detach errors are expected when the device was never attached
	// (e.g. its adapter failed to build at startup).
	_ = h.DetachDevice(dev.Slug)
	return h.AttachDevice(dev)
}

// Refresh triggers an immediate poll for the slug, joining any poll
// already in flight.
func (h *Hub) Refresh(ctx context.Context, slug string) (poll.Snapshot, error) {
	r, err := h.runner(slug)
	if err != nil {
		return poll.Snapshot{}, err
	}
	return r.coord.Refresh(ctx)
}

// ResetAuth clears a device's auth-failed latch so polling resumes.
func (h *Hub) ResetAuth(slug string) error {
	r, err := h.runner(slug)
	if err != nil {
		return err
	}
	r.coord.ResetAuth()
	return nil
}

// Snapshot returns the current snapshot for the slug.
func (h *Hub) Snapshot(slug string) (poll.Snapshot, error) {
	r, err := h.runner(slug)
	if err != nil {
		return poll.Snapshot{}, err
	}
	return r.coord.Snapshot(), nil
}

// State returns the connection state for the slug.
func (h *Hub) State(slug string) (poll.ConnState, error) {
	r, err := h.runner(slug)
	if err != nil {
		return poll.StateDisconnected, err
	}
	return r.coord.State(), nil
}

// DeviceStats returns polling counters for the slug.
func (h *Hub) DeviceStats(slug string) (poll.Stats, error) {
	r, err := h.runner(slug)
	if err != nil {
		return poll.Stats{}, err
	}
	return r.coord.Stats(), nil
}

// Stats summarizes the hub across all attached devices.
type Stats struct {
	Devices  int            `json:"devices"`
	ByState  map[string]int `json:"by_state"`
	Polls    uint64         `json:"polls"`
	Failures uint64         `json:"failures"`
}

// GetStats aggregates coordinator counters across attached devices.
func (h *Hub) GetStats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := Stats{
		Devices: len(h.runners),
		ByState: make(map[string]int),
	}
	for _, r := range h.runners {
		cs := r.coord.Stats()
		stats.ByState[r.coord.State().String()]++
		stats.Polls += cs.PollsTotal
		stats.Failures += cs.FailuresTotal
	}
	return stats
}

// AttachedSlugs returns the slugs with running coordinators, for diagnostics.
func (h *Hub) AttachedSlugs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	slugs := make([]string, 0, len(h.runners))
	for slug := range h.runners {
		slugs = append(slugs, slug)
	}
	return slugs
}

// Stop detaches every device and unsubscribes from refresh requests.
func (h *Hub) Stop() {
	h.mu.Lock()
	if !h.started {
		h.mu.Unlock()
		return
	}
	h.started = false
	cancel := h.cancel
	runners := h.runners
	h.runners = make(map[string]*runner)
	h.mu.Unlock()

	if h.broker != nil {
		if err := h.broker.Unsubscribe(mqtt.Topics{}.AllRefreshRequests()); err != nil {
			h.logger.Debug("refresh unsubscribe failed", "error", err)
		}
	}

	for slug, r := range runners {
		r.coord.Stop()
		h.logger.Debug("coordinator stopped", "slug", slug)
	}

	if cancel != nil {
		cancel()
	}
	h.logger.Info("hub stopped")
}

// runner returns the runner for a slug.
func (h *Hub) runner(slug string) (*runner, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.runners[slug]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotAttached, slug)
	}
	return r, nil
}

// =============================================================================
// Coordinator Outputs
// =============================================================================

// onSnapshot fans a new snapshot out to MQTT, history and WebSocket clients.
func (h *Hub) onSnapshot(dev device.Device, snap poll.Snapshot) {
	msg := stateMessage{
		DeviceID: dev.ID,
		Slug:     dev.Slug,
		Name:     dev.Name,
		Seq:      snap.Seq,
		Taken:    snap.Taken,
		State:    snap.Data,
	}

	if h.broker != nil {
		payload, err := json.Marshal(msg)
		if err != nil {
			h.logger.Error("state message marshal failed", "slug", dev.Slug, "error", err)
		} else if err := h.broker.PublishRetained(mqtt.Topics{}.DeviceState(dev.Slug), payload); err != nil {
			h.logger.Warn("state publish failed", "slug", dev.Slug, "error", err)
		}
	}

	if h.history != nil {
		h.history.WriteSnapshot(dev.Slug, snap.Seq, snap.Taken, snap.Data)
	}

	if b := h.getBroadcaster(); b != nil {
		b.Broadcast("device.state_changed", msg)
	}
}

// onStateChange maps a connection state to device health and fans the
// transition out. Connecting is skipped: it is not a health signal.
func (h *Hub) onStateChange(dev device.Device, state poll.ConnState) {
	var status device.HealthStatus
	switch state {
	case poll.StateConnected:
		status = device.HealthStatusOnline
	case poll.StateDisconnected:
		status = device.HealthStatusOffline
	case poll.StateAuthFailed:
		status = device.HealthStatusDegraded
	default:
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.registry.SetDeviceHealth(ctx, dev.ID, status); err != nil {
		h.logger.Warn("health update failed", "slug", dev.Slug, "error", err)
	}

	if h.broker != nil {
		topic := mqtt.Topics{}.DeviceAvailability(dev.Slug)
		if err := h.broker.PublishString(topic, string(status), publishQoS, true); err != nil {
			h.logger.Warn("availability publish failed", "slug", dev.Slug, "error", err)
		}
	}

	if h.history != nil {
		h.history.WriteHealthStatus(dev.Slug, string(status))
	}

	if b := h.getBroadcaster(); b != nil {
		b.Broadcast("device.health_changed", healthMessage{
			DeviceID: dev.ID,
			Slug:     dev.Slug,
			Status:   string(status),
		})
	}
}

// onAuthError publishes a one-shot credential failure event.
func (h *Hub) onAuthError(dev device.Device, err error) {
	h.logger.Error("device credentials rejected",
		"slug", dev.Slug,
		"error", err,
	)

	if h.broker != nil {
		payload, merr := json.Marshal(map[string]string{
			"device_id": dev.ID,
			"slug":      dev.Slug,
			"error":     err.Error(),
		})
		if merr == nil {
			topic := mqtt.Topics{}.Event("device_auth_failed")
			if perr := h.broker.Publish(topic, payload, publishQoS, false); perr != nil {
				h.logger.Debug("auth event publish failed", "slug", dev.Slug, "error", perr)
			}
		}
	}
}

// handleRefreshRequest serves hearth/refresh/<slug> messages.
func (h *Hub) handleRefreshRequest(topic string, _ []byte) error {
	slug := topic[strings.LastIndex(topic, "/")+1:]
	if slug == "" || slug == "+" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := h.Refresh(ctx, slug); err != nil {
		h.logger.Debug("refresh request failed", "slug", slug, "error", err)
		return err
	}
	return nil
}

// getBroadcaster returns the broadcaster under lock.
func (h *Hub) getBroadcaster() Broadcaster {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.broadcaster
}
