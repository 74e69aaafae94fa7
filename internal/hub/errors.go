package hub

import "errors"

// Error definitions for hub operations.
var (
	// ErrDeviceNotAttached indicates no coordinator is running for the slug.
	ErrDeviceNotAttached = errors.New("hub: device not attached")

	// ErrDeviceAttached indicates a coordinator is already running for the slug.
	ErrDeviceAttached = errors.New("hub: device already attached")

	// ErrUnknownAdapter indicates the device names an adapter the hub cannot build.
	ErrUnknownAdapter = errors.New("hub: unknown adapter")

	// ErrBrokerRequired indicates an mqttpush device was configured without MQTT.
	ErrBrokerRequired = errors.New("hub: mqttpush adapter requires an MQTT broker")

	// ErrAlreadyStarted indicates Start was called twice.
	ErrAlreadyStarted = errors.New("hub: already started")
)
