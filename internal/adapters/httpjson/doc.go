// Package httpjson implements a polling vendor adapter for devices that
// expose their state as a JSON document over HTTP.
//
// The adapter performs a GET against the configured endpoint, optionally
// sending a bearer token, and decodes the response body into a flat
// payload map. HTTP and transport failures are mapped onto the poll
// package's error classes so the coordinator can apply its backoff,
// reconnect and auth-latch rules without knowing anything about HTTP:
//
//   - 401 / 403 responses report poll.ErrAuthFailed
//   - 5xx, 429 and request timeouts report poll.ErrTransient
//   - Connection resets and unexpected EOF report poll.ErrDisconnected
//
// Reconnect discards pooled keep-alive connections, which is the usual
// remedy when a vendor device restarts and leaves half-open sockets behind.
package httpjson
