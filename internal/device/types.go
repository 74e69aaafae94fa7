package device

import "time"

// Device represents one external vendor device polled by Hearth.
// This matches the database schema in migrations/20260815_100000_devices.up.sql.
type Device struct {
	// Identity
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`

	// Adapter binding
	Adapter  Adapter `json:"adapter"`
	Endpoint string  `json:"endpoint"`
	Token    string  `json:"-"`

	// PollInterval in seconds. 0 means the site-wide default applies.
	PollInterval int `json:"poll_interval"`

	// Labels are free-form key/value annotations for filtering.
	// Example: {"room": "loft", "vendor": "acme"}
	Labels map[string]string `json:"labels,omitempty"`

	// Health monitoring
	HealthStatus HealthStatus `json:"health_status"`
	LastSeen     *time.Time   `json:"last_seen,omitempty"`

	// Timestamps
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeepCopy creates a complete independent copy of the Device.
// The labels map is cloned so modifications to the copy do not affect
// the original. This is essential for cache isolation.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}

	cpy := *d

	if d.Labels != nil {
		cpy.Labels = make(map[string]string, len(d.Labels))
		for k, v := range d.Labels {
			cpy.Labels[k] = v
		}
	}

	// *time.Time does not need cloning: time.Time is immutable.

	return &cpy
}

// Adapter identifies which vendor adapter talks to a device.
type Adapter string

// Adapter constants.
const (
	// AdapterHTTPJSON polls a JSON document over HTTP.
	AdapterHTTPJSON Adapter = "httpjson"

	// AdapterMQTTPush receives vendor-published state over MQTT.
	AdapterMQTTPush Adapter = "mqttpush"
)

// AllAdapters returns all valid adapter values.
func AllAdapters() []Adapter {
	return []Adapter{AdapterHTTPJSON, AdapterMQTTPush}
}

// HealthStatus represents the device health state.
type HealthStatus string

// HealthStatus constants.
const (
	HealthStatusOnline   HealthStatus = "online"
	HealthStatusOffline  HealthStatus = "offline"
	HealthStatusDegraded HealthStatus = "degraded"
	HealthStatusUnknown  HealthStatus = "unknown"
)

// AllHealthStatuses returns all valid health status values.
func AllHealthStatuses() []HealthStatus {
	return []HealthStatus{
		HealthStatusOnline, HealthStatusOffline, HealthStatusDegraded, HealthStatusUnknown,
	}
}
