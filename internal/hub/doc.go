// Package hub supervises the polling lifecycle for every registered device.
//
// For each device in the registry the hub builds the matching vendor
// adapter (httpjson or mqttpush), wraps it in a poll.Coordinator and
// wires the coordinator's outputs into the rest of the system:
//
//   - Snapshots are published retained to hearth/state/<slug>, recorded
//     in InfluxDB and broadcast to WebSocket subscribers.
//   - Connection state transitions update registry health, publish
//     hearth/availability/<slug> and record health history.
//   - Auth failures raise a hearth/event/device_auth_failed event so an
//     operator can rotate credentials and reset the device.
//
// The hub also subscribes to hearth/refresh/+ so external tools can
// trigger an immediate poll, and exposes per-device Refresh, ResetAuth
// and Stats operations for the HTTP API.
//
// Devices can be attached and detached at runtime; the API layer calls
// AttachDevice and DetachDevice as registry entries are created, updated
// and deleted.
package hub
