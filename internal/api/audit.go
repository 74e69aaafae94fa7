package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/hearthd/hearth-core/internal/audit"
)

// recordAudit writes an audit log entry for an API action. Recording is
// best-effort: a failed write is logged but never fails the request.
// The acting user is taken from the request context when userID is empty.
func (s *Server) recordAudit(ctx context.Context, action, entityType, entityID, userID string, details map[string]any) {
	if s.auditLog == nil {
		return
	}

	if userID == "" {
		userID, _ = ctx.Value(ctxKeyUserID).(string)
	}

	entry := &audit.AuditLog{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		UserID:     userID,
		Source:     "api",
		Details:    details,
	}

	if err := s.auditLog.Create(ctx, entry); err != nil {
		s.logger.Error("audit log write failed",
			"action", action,
			"entity_type", entityType,
			"entity_id", entityID,
			"error", err,
		)
	}
}

// handleListAudit returns audit log entries, most recent first.
//
// Query parameters:
//   - action: filter by action (create, update, delete, refresh, reset_auth, login)
//   - entity_type: filter by entity type (device, user, session)
//   - entity_id: filter by specific entity
//   - limit: page size (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.auditLog == nil {
		writeError(w, http.StatusServiceUnavailable, serviceUnavailableKey, "audit log is not available")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:     q.Get("action"),
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	result, err := s.auditLog.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("audit log query failed", "error", err)
		writeInternalError(w, "failed to query audit log")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
