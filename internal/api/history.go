package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

const (
	defaultHistoryLimit   = 50
	maxHistoryLimit       = 200
	maxQueryParamLen      = 128
	serviceUnavailableKey = "service_unavailable"
)

// handleGetDeviceHistory returns recorded snapshot samples for a device.
//
// Query parameters:
//   - limit: maximum number of samples (default 50, max 200)
//   - since: RFC3339 or Unix timestamp; defaults to the last 24 hours
func (s *Server) handleGetDeviceHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	dev, ok := s.deviceFromRequest(w, r)
	if !ok {
		return
	}

	limit, err := parseHistoryLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	since, err := parseSinceParam(r.URL.Query().Get("since"))
	if err != nil {
		writeBadRequest(w, "invalid since timestamp")
		return
	}

	if s.history == nil || !s.history.IsConnected() {
		writeError(w, http.StatusServiceUnavailable, serviceUnavailableKey, "state history unavailable")
		return
	}

	records, err := s.history.QueryDeviceHistory(ctx, dev.Slug, since, limit)
	if err != nil {
		s.logger.Warn("history query failed", "slug", dev.Slug, "error", err)
		writeError(w, http.StatusServiceUnavailable, serviceUnavailableKey, "state history unavailable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": dev.ID,
		"slug":      dev.Slug,
		"history":   records,
		"count":     len(records),
	})
}

// parseHistoryLimit parses the limit query parameter with bounds enforcement.
func parseHistoryLimit(raw string) (int, error) {
	if raw == "" {
		return defaultHistoryLimit, nil
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("invalid limit")
	}
	if limit > maxHistoryLimit {
		return 0, fmt.Errorf("limit exceeds maximum")
	}

	return limit, nil
}

// parseSinceParam parses the since parameter as RFC3339 or a Unix timestamp.
func parseSinceParam(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if len(raw) > maxQueryParamLen {
		return time.Time{}, fmt.Errorf("since exceeds maximum length")
	}

	if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
		return parsed.UTC(), nil
	}
	if parsed, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return parsed.UTC(), nil
	}

	seconds, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(seconds, 0).UTC(), nil
}
