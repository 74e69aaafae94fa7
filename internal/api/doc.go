// Package api implements the HTTP REST API and WebSocket server for Hearth Core.
//
// This package provides:
//   - REST endpoints for device CRUD, polling controls, and state queries
//   - WebSocket hub for real-time snapshot and health broadcasts
//   - JWT authentication with ticket-based WebSocket auth
//   - Middleware stack (request ID, logging, recovery, CORS)
//   - TLS support for production deployments
//
// # Architecture
//
// The API server sits between user interfaces and the device registry plus
// the poll supervisor. Snapshot and health changes flow from coordinators
// through the supervisor's broadcaster hook and are fanned out to subscribed
// WebSocket clients. Manual refresh and auth-reset requests flow the other
// way, into the supervisor.
//
// # Security
//
// Authentication uses JWT tokens. WebSocket connections use single-use
// tickets to prevent token leakage in URLs.
//
// # Graceful Degradation
//
// The server operates without MQTT or InfluxDB. History endpoints return
// 503 when no time-series store is configured; everything else works.
package api
