package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hearthd/hearth-core/internal/device"
	"github.com/hearthd/hearth-core/internal/hub"
)

// handleListDevices returns all devices, with optional query filters.
//
// Query parameters:
//   - adapter: filter by adapter (httpjson, mqttpush)
//   - health: filter by health status (online, offline, degraded, unknown)
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if adapterStr := r.URL.Query().Get("adapter"); adapterStr != "" {
		devices, err := s.registry.GetDevicesByAdapter(ctx, device.Adapter(adapterStr))
		if err != nil {
			writeInternalError(w, "failed to list devices")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
		return
	}

	if healthStr := r.URL.Query().Get("health"); healthStr != "" {
		devices, err := s.registry.GetDevicesByHealthStatus(ctx, device.HealthStatus(healthStr))
		if err != nil {
			writeInternalError(w, "failed to list devices")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
		return
	}

	// No filter: return all devices
	devices, err := s.registry.ListDevices(ctx)
	if err != nil {
		writeInternalError(w, "failed to list devices")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dev, err := s.registry.GetDevice(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}

	writeJSON(w, http.StatusOK, dev)
}

// deviceRequest is the request body for creating or updating a device.
// Token is accepted here but never echoed back in responses.
type deviceRequest struct {
	Name         string            `json:"name"`
	Slug         string            `json:"slug"`
	Adapter      device.Adapter    `json:"adapter"`
	Endpoint     string            `json:"endpoint"`
	Token        string            `json:"token"`
	PollInterval int               `json:"poll_interval"`
	Labels       map[string]string `json:"labels"`
}

// handleCreateDevice creates a new device and begins polling it.
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var req deviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	dev := device.Device{
		Name:         req.Name,
		Slug:         req.Slug,
		Adapter:      req.Adapter,
		Endpoint:     req.Endpoint,
		Token:        req.Token,
		PollInterval: req.PollInterval,
		Labels:       req.Labels,
	}

	if err := s.registry.CreateDevice(r.Context(), &dev); err != nil {
		if isValidationError(err) {
			writeBadRequest(w, err.Error())
			return
		}
		if errors.Is(err, device.ErrDeviceExists) {
			writeError(w, http.StatusConflict, ErrCodeConflict, "device already exists")
			return
		}
		writeInternalError(w, "failed to create device")
		return
	}

	if err := s.poller.AttachDevice(dev); err != nil {
		// Device is persisted but not polling; surface the reason.
		s.logger.Warn("device created but not attached", "slug", dev.Slug, "error", err)
	}

	s.recordAudit(r.Context(), "create", "device", dev.ID, "", map[string]any{"slug": dev.Slug, "adapter": string(dev.Adapter)})

	writeJSON(w, http.StatusCreated, dev)
}

// handleUpdateDevice partially updates a device and restarts its coordinator
// so changed endpoints, credentials, or intervals take effect.
func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	existing, err := s.registry.GetDevice(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}

	req := deviceRequest{
		Name:         existing.Name,
		Slug:         existing.Slug,
		Adapter:      existing.Adapter,
		Endpoint:     existing.Endpoint,
		Token:        existing.Token,
		PollInterval: existing.PollInterval,
		Labels:       existing.Labels,
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	oldSlug := existing.Slug
	existing.Name = req.Name
	existing.Slug = req.Slug
	existing.Adapter = req.Adapter
	existing.Endpoint = req.Endpoint
	existing.Token = req.Token
	existing.PollInterval = req.PollInterval
	existing.Labels = req.Labels
	existing.ID = id // Ensure ID cannot be changed

	if err := s.registry.UpdateDevice(r.Context(), existing); err != nil {
		if isValidationError(err) {
			writeBadRequest(w, err.Error())
			return
		}
		writeInternalError(w, "failed to update device")
		return
	}

	// The coordinator holds the old adapter config; rebuild it. A slug
	// rename also needs the stale runner removed.
	if existing.Slug != oldSlug {
		if derr := s.poller.DetachDevice(oldSlug); derr != nil && !errors.Is(derr, hub.ErrDeviceNotAttached) {
			s.logger.Warn("stale coordinator detach failed", "slug", oldSlug, "error", derr)
		}
		if aerr := s.poller.AttachDevice(*existing); aerr != nil {
			s.logger.Warn("device updated but not attached", "slug", existing.Slug, "error", aerr)
		}
	} else if rerr := s.poller.RestartDevice(*existing); rerr != nil {
		s.logger.Warn("device updated but coordinator restart failed", "slug", existing.Slug, "error", rerr)
	}

	s.recordAudit(r.Context(), "update", "device", existing.ID, "", map[string]any{"slug": existing.Slug})

	writeJSON(w, http.StatusOK, existing)
}

// handleDeleteDevice removes a device and stops its coordinator.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dev, err := s.registry.GetDevice(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}

	if err := s.registry.DeleteDevice(r.Context(), id); err != nil {
		writeInternalError(w, "failed to delete device")
		return
	}

	if derr := s.poller.DetachDevice(dev.Slug); derr != nil && !errors.Is(derr, hub.ErrDeviceNotAttached) {
		s.logger.Warn("coordinator detach failed", "slug", dev.Slug, "error", derr)
	}

	s.recordAudit(r.Context(), "delete", "device", id, "", map[string]any{"slug": dev.Slug})

	w.WriteHeader(http.StatusNoContent)
}

// handleRegistryStats returns device registry statistics.
func (s *Server) handleRegistryStats(w http.ResponseWriter, _ *http.Request) {
	stats := s.registry.GetStats()
	writeJSON(w, http.StatusOK, stats)
}

// handleGetDeviceState returns the latest snapshot and connection state
// for a device.
func (s *Server) handleGetDeviceState(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.deviceFromRequest(w, r)
	if !ok {
		return
	}

	state, err := s.poller.State(dev.Slug)
	if err != nil {
		writeError(w, http.StatusConflict, ErrCodeConflict, "device is not being polled")
		return
	}
	snap, err := s.poller.Snapshot(dev.Slug)
	if err != nil {
		writeInternalError(w, "failed to read snapshot")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device_id":     dev.ID,
		"slug":          dev.Slug,
		"conn_state":    state.String(),
		"seq":           snap.Seq,
		"taken":         snap.Taken,
		"state":         snap.Data,
		"health_status": dev.HealthStatus,
	})
}

// handleRefreshDevice triggers an immediate poll, joining any poll already
// in flight, and returns the resulting snapshot.
func (s *Server) handleRefreshDevice(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.deviceFromRequest(w, r)
	if !ok {
		return
	}

	snap, err := s.poller.Refresh(r.Context(), dev.Slug)
	if err != nil {
		if errors.Is(err, hub.ErrDeviceNotAttached) {
			writeError(w, http.StatusConflict, ErrCodeConflict, "device is not being polled")
			return
		}
		writeInternalError(w, "refresh failed")
		return
	}

	s.recordAudit(r.Context(), "refresh", "device", dev.ID, "", nil)

	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": dev.ID,
		"slug":      dev.Slug,
		"seq":       snap.Seq,
		"taken":     snap.Taken,
		"state":     snap.Data,
	})
}

// handleResetDeviceAuth clears a device's auth-failed latch so polling
// resumes after credentials were fixed.
func (s *Server) handleResetDeviceAuth(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.deviceFromRequest(w, r)
	if !ok {
		return
	}

	if err := s.poller.ResetAuth(dev.Slug); err != nil {
		if errors.Is(err, hub.ErrDeviceNotAttached) {
			writeError(w, http.StatusConflict, ErrCodeConflict, "device is not being polled")
			return
		}
		writeInternalError(w, "auth reset failed")
		return
	}

	s.recordAudit(r.Context(), "reset_auth", "device", dev.ID, "", map[string]any{"slug": dev.Slug})

	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": dev.ID,
		"slug":      dev.Slug,
		"status":    "auth_reset",
	})
}

// handleDeviceStats returns polling counters for a device.
func (s *Server) handleDeviceStats(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.deviceFromRequest(w, r)
	if !ok {
		return
	}

	stats, err := s.poller.DeviceStats(dev.Slug)
	if err != nil {
		writeError(w, http.StatusConflict, ErrCodeConflict, "device is not being polled")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": dev.ID,
		"slug":      dev.Slug,
		"stats":     stats,
	})
}

// handlePollerStats returns the supervisor's aggregate counters.
func (s *Server) handlePollerStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.poller.GetStats())
}

// deviceFromRequest resolves the {id} URL parameter to a device, writing
// the error response itself when resolution fails.
func (s *Server) deviceFromRequest(w http.ResponseWriter, r *http.Request) (*device.Device, bool) {
	id := chi.URLParam(r, "id")

	dev, err := s.registry.GetDevice(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return nil, false
		}
		writeInternalError(w, "failed to get device")
		return nil, false
	}
	return dev, true
}

// isValidationError checks whether an error is a device validation error.
// ValidateDevice wraps several sentinel errors so we check all of them
// rather than just ErrInvalidDevice.
func isValidationError(err error) bool {
	return errors.Is(err, device.ErrInvalidDevice) ||
		errors.Is(err, device.ErrInvalidName) ||
		errors.Is(err, device.ErrInvalidSlug) ||
		errors.Is(err, device.ErrInvalidAdapter) ||
		errors.Is(err, device.ErrInvalidEndpoint)
}
