// Package device manages the registry of polled vendor devices.
//
// A Device describes one external unit Hearth polls: which adapter talks
// to it, where it lives on the network, how often to poll it, and its
// current health. Devices persist in SQLite and are served from an
// in-memory cache for fast lookups.
//
// # Components
//
//   - Device: the data model (identity, adapter binding, health)
//   - Repository: persistence interface with a SQLite implementation
//   - Registry: cached, thread-safe device management on top of a Repository
//
// # Health Model
//
// A device's health mirrors its coordinator's connection state:
//
//   - online: the last poll or push update succeeded
//   - offline: polls are failing, retries are backed off
//   - degraded: authentication failed, operator action required
//   - unknown: never polled since registration
//
// # Usage
//
//	repo := device.NewSQLiteRepository(db)
//	registry := device.NewRegistry(repo)
//	registry.SetLogger(logger.With("component", "device"))
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
package device
