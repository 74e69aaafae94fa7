package influxdb

import "errors"

// Sentinels callers branch on with errors.Is. ErrDisabled in particular
// is the normal path for installs that skipped history storage.
var (
	ErrNotConnected     = errors.New("influxdb: not connected")
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// Most write failures surface through the async error callback
	// instead of this sentinel.
	ErrWriteFailed = errors.New("influxdb: write failed")

	ErrDisabled = errors.New("influxdb: disabled in configuration")
)
