package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hearthd/hearth-core/internal/auth"
)

// minPasswordLength is the minimum accepted password length.
const minPasswordLength = 8

// userRequest is the request body for creating or updating a user.
// Password is accepted on create and via the password endpoint; it is
// never echoed back in responses.
type userRequest struct {
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email"`
	Password    string    `json:"password"`
	Role        auth.Role `json:"role"`
	IsActive    *bool     `json:"is_active"`
}

// handleListUsers returns all user accounts.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.List(r.Context())
	if err != nil {
		writeInternalError(w, "failed to list users")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users, "count": len(users)})
}

// handleCreateUser creates a new user account.
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if !auth.IsValidUsername(req.Username) {
		writeBadRequest(w, "invalid username")
		return
	}
	if len(req.Password) < minPasswordLength {
		writeBadRequest(w, "password must be at least 8 characters")
		return
	}
	if req.Role == "" {
		req.Role = auth.RoleUser
	}
	if !auth.IsValidUserRole(req.Role) {
		writeBadRequest(w, "invalid role")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeInternalError(w, "failed to hash password")
		return
	}

	creatorID, _ := r.Context().Value(ctxKeyUserID).(string)
	user := &auth.User{
		Username:     req.Username,
		DisplayName:  req.DisplayName,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         req.Role,
		IsActive:     req.IsActive == nil || *req.IsActive,
		CreatedBy:    creatorID,
	}

	if err := s.users.Create(r.Context(), user); err != nil {
		if errors.Is(err, auth.ErrUsernameExists) {
			writeError(w, http.StatusConflict, ErrCodeConflict, "username already exists")
			return
		}
		writeInternalError(w, "failed to create user")
		return
	}

	s.recordAudit(r.Context(), "create", "user", user.ID, "", map[string]any{"username": user.Username, "role": string(user.Role)})

	writeJSON(w, http.StatusCreated, user)
}

// handleUpdateUser updates a user's mutable fields (display name, email,
// role, active flag). Username and password are not changed here.
func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	user, err := s.users.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeNotFound(w, "user not found")
			return
		}
		writeInternalError(w, "failed to get user")
		return
	}

	req := userRequest{
		DisplayName: user.DisplayName,
		Email:       user.Email,
		Role:        user.Role,
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if !auth.IsValidUserRole(req.Role) {
		writeBadRequest(w, "invalid role")
		return
	}

	user.DisplayName = req.DisplayName
	user.Email = req.Email
	user.Role = req.Role
	if req.IsActive != nil {
		user.IsActive = *req.IsActive
	}

	if err := s.users.Update(r.Context(), user); err != nil {
		writeInternalError(w, "failed to update user")
		return
	}

	// Deactivation should end existing sessions.
	if !user.IsActive {
		if err := s.tokens.RevokeAllForUser(r.Context(), user.ID); err != nil {
			s.logger.Error("revoking tokens for deactivated user failed", "error", err, "user_id", user.ID)
		}
	}

	s.recordAudit(r.Context(), "update", "user", user.ID, "", map[string]any{"username": user.Username})

	writeJSON(w, http.StatusOK, user)
}

// handleDeleteUser removes a user account. Refresh tokens cascade via FK.
func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// Self-deletion would orphan the session mid-request.
	if actorID, _ := r.Context().Value(ctxKeyUserID).(string); actorID == id {
		writeBadRequest(w, "cannot delete own account")
		return
	}

	user, err := s.users.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeNotFound(w, "user not found")
			return
		}
		writeInternalError(w, "failed to get user")
		return
	}

	if err := s.users.Delete(r.Context(), id); err != nil {
		writeInternalError(w, "failed to delete user")
		return
	}

	s.recordAudit(r.Context(), "delete", "user", id, "", map[string]any{"username": user.Username})

	w.WriteHeader(http.StatusNoContent)
}

// passwordRequest is the request body for POST /users/{id}/password.
type passwordRequest struct {
	Password string `json:"password"`
}

// handleSetUserPassword replaces a user's password and revokes their
// refresh tokens so stolen sessions die with the old credential.
func (s *Server) handleSetUserPassword(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req passwordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if len(req.Password) < minPasswordLength {
		writeBadRequest(w, "password must be at least 8 characters")
		return
	}

	if _, err := s.users.GetByID(r.Context(), id); err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeNotFound(w, "user not found")
			return
		}
		writeInternalError(w, "failed to get user")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeInternalError(w, "failed to hash password")
		return
	}

	if err := s.users.UpdatePassword(r.Context(), id, hash); err != nil {
		writeInternalError(w, "failed to update password")
		return
	}

	if err := s.tokens.RevokeAllForUser(r.Context(), id); err != nil {
		s.logger.Error("revoking tokens after password change failed", "error", err, "user_id", id)
	}

	s.recordAudit(r.Context(), "update", "user", id, "", map[string]any{"field": "password"})

	w.WriteHeader(http.StatusNoContent)
}
