package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteSnapshot records a device state snapshot as one point tagged with
// the device slug. Scalar payload values become fields; nested structures
// are skipped because InfluxDB fields are flat. The sequence number goes
// along so history queries can spot gaps.
//
// Non-blocking: points are batched and sent asynchronously.
func (c *Client) WriteSnapshot(slug string, seq uint64, taken time.Time, data map[string]any) {
	if !c.IsConnected() {
		return
	}

	fields := make(map[string]any, len(data)+1)
	for key, value := range data {
		switch v := value.(type) {
		case float64, float32, int, int32, int64, uint, uint32, uint64, bool, string:
			fields[key] = v
		}
	}
	// #nosec G115 -- sequence numbers stay well below int64 range
	fields["seq"] = int64(seq)

	c.writeAPI.WritePoint(write.NewPoint(
		"device_state",
		map[string]string{"device": slug},
		fields,
		taken,
	))
}

// WriteHealthStatus records a health transition (online, offline,
// degraded, unknown) for the device.
func (c *Client) WriteHealthStatus(slug string, status string) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(
		"device_health",
		map[string]string{"device": slug},
		map[string]any{"status": status},
		time.Now(),
	))
}

// WritePollStats records cumulative poll counters so failure rates can be
// graphed over time.
func (c *Client) WritePollStats(slug string, polls, failures, authFailures uint64) {
	if !c.IsConnected() {
		return
	}

	// #nosec G115 -- counters stay well below int64 range
	c.writeAPI.WritePoint(write.NewPoint(
		"poll_stats",
		map[string]string{"device": slug},
		map[string]any{
			"polls":         int64(polls),
			"failures":      int64(failures),
			"auth_failures": int64(authFailures),
		},
		time.Now(),
	))
}

// WritePoint writes an arbitrary measurement. Keep tags low-cardinality.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime is WritePoint with an explicit timestamp, for data
// that arrives late.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
}
