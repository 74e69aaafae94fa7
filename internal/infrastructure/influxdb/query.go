package influxdb

import (
	"context"
	"fmt"
	"time"
)

// Query limits protecting the server from unbounded result sets.
const (
	maxHistoryRecords  = 1000
	defaultHistorySpan = 24 * time.Hour
)

// StateRecord is one field sample from the device_state measurement.
type StateRecord struct {
	Time  time.Time `json:"time"`
	Field string    `json:"field"`
	Value any       `json:"value"`
}

// QueryDeviceHistory returns recorded snapshot fields for a device,
// newest first.
//
// A zero since defaults to the last 24 hours. limit is clamped to
// maxHistoryRecords.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - slug: Device slug used as the series tag
//   - since: Earliest sample time to include
//   - limit: Maximum number of records to return
//
// Returns:
//   - []StateRecord: Matching samples, newest first
//   - error: If the client is disconnected or the query fails
func (c *Client) QueryDeviceHistory(ctx context.Context, slug string, since time.Time, limit int) ([]StateRecord, error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}
	if slug == "" {
		return nil, fmt.Errorf("influxdb: slug is required")
	}
	if since.IsZero() {
		since = time.Now().Add(-defaultHistorySpan)
	}
	if limit <= 0 || limit > maxHistoryRecords {
		limit = maxHistoryRecords
	}

	// %q quoting keeps tag values safe inside the Flux string literal.
	flux := fmt.Sprintf(`
from(bucket: %q)
  |> range(start: %s)
  |> filter(fn: (r) => r._measurement == "device_state" and r.device == %q)
  |> sort(columns: ["_time"], desc: true)
  |> limit(n: %d)`,
		c.cfg.Bucket,
		since.UTC().Format(time.RFC3339),
		slug,
		limit,
	)

	queryAPI := c.client.QueryAPI(c.cfg.Org)
	result, err := queryAPI.Query(ctx, flux)
	if err != nil {
		return nil, fmt.Errorf("influxdb: history query: %w", err)
	}
	defer result.Close()

	var records []StateRecord
	for result.Next() {
		rec := result.Record()
		records = append(records, StateRecord{
			Time:  rec.Time(),
			Field: rec.Field(),
			Value: rec.Value(),
		})
	}
	if result.Err() != nil {
		return nil, fmt.Errorf("influxdb: history query: %w", result.Err())
	}

	return records, nil
}
