package mqtt

import "fmt"

// Topic prefixes for the Hearth MQTT hierarchy.
//
// All topics use the flat scheme: hearth/{category}/{slug_or_id}
const (
	// TopicPrefix is the base for all Hearth topics.
	TopicPrefix = "hearth"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "hearth/system"
)

// Topics provides builders for Hearth MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.DeviceState("loft-thermostat")
//	// Returns: "hearth/state/loft-thermostat"
type Topics struct{}

// =============================================================================
// Device Topics
// =============================================================================

// DeviceState returns the canonical state topic for a device.
// State payloads are published retained so late subscribers receive
// the latest snapshot immediately.
//
// Example: hearth/state/loft-thermostat
func (Topics) DeviceState(slug string) string {
	return fmt.Sprintf("%s/state/%s", TopicPrefix, slug)
}

// DeviceAvailability returns the availability topic for a device.
// Payloads are the health status strings: online, offline, degraded, unknown.
//
// Example: hearth/availability/loft-thermostat
func (Topics) DeviceAvailability(slug string) string {
	return fmt.Sprintf("%s/availability/%s", TopicPrefix, slug)
}

// DeviceRefresh returns the topic for externally requested refreshes.
// Publishing any payload here asks the hub to poll the device immediately.
//
// Example: hearth/refresh/loft-thermostat
func (Topics) DeviceRefresh(slug string) string {
	return fmt.Sprintf("%s/refresh/%s", TopicPrefix, slug)
}

// =============================================================================
// Event Topics
// =============================================================================

// Event returns the topic for system events.
//
// Example: hearth/event/device_state_changed
func (Topics) Event(eventType string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefix, eventType)
}

// =============================================================================
// System Topics
// =============================================================================

// SystemStatus returns the system status topic.
// Used as the LWT topic so subscribers learn when Hearth drops off the broker.
//
// Example: hearth/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// SystemTime returns the time sync topic.
//
// Example: hearth/system/time
func (Topics) SystemTime() string {
	return fmt.Sprintf("%s/time", TopicPrefixSystem)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllDeviceStates returns a pattern matching all device state topics.
//
// Pattern: hearth/state/+
func (Topics) AllDeviceStates() string {
	return fmt.Sprintf("%s/state/+", TopicPrefix)
}

// AllDeviceAvailability returns a pattern matching all availability topics.
//
// Pattern: hearth/availability/+
func (Topics) AllDeviceAvailability() string {
	return fmt.Sprintf("%s/availability/+", TopicPrefix)
}

// AllRefreshRequests returns a pattern matching all refresh request topics.
//
// Pattern: hearth/refresh/+
func (Topics) AllRefreshRequests() string {
	return fmt.Sprintf("%s/refresh/+", TopicPrefix)
}

// AllEvents returns a pattern matching all event topics.
//
// Pattern: hearth/event/+
func (Topics) AllEvents() string {
	return fmt.Sprintf("%s/event/+", TopicPrefix)
}

// AllTopics returns a pattern matching all Hearth topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: hearth/#
func (Topics) AllTopics() string {
	return "hearth/#"
}
