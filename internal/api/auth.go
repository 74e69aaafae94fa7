package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/hearthd/hearth-core/internal/auth"
)

// Auth constants.
const (
	// ticketTTL is how long a WebSocket ticket is valid.
	ticketTTL = 60 * time.Second

	// tokenCleanupInterval is how often expired refresh tokens are purged.
	tokenCleanupInterval = time.Hour

	// defaultRefreshTTLMinutes is the refresh token lifetime when unconfigured (24h).
	defaultRefreshTTLMinutes = 1440
)

// loginRequest is the request body for POST /auth/login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// tokenResponse is the response body for login and refresh.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// refreshRequest is the request body for POST /auth/refresh and /auth/logout.
type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// handleLogin authenticates a user against the account store and returns
// a JWT access token plus a rotating refresh token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if !auth.IsValidUsername(req.Username) || req.Password == "" {
		writeUnauthorized(w, "invalid credentials")
		return
	}

	user, err := s.users.GetByUsername(r.Context(), req.Username)
	if err != nil {
		// Hash anyway so response timing does not reveal whether the
		// username exists.
		_, _ = auth.VerifyPassword(req.Password, dummyHash) //nolint:errcheck // timing equalisation only
		writeUnauthorized(w, "invalid credentials")
		return
	}

	ok, err := auth.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil || !ok {
		writeUnauthorized(w, "invalid credentials")
		return
	}

	if !user.IsActive {
		writeUnauthorized(w, "account disabled")
		return
	}

	resp, err := s.issueTokens(r.Context(), user, "")
	if err != nil {
		s.logger.Error("issuing tokens failed", "error", err, "user", user.Username)
		writeInternalError(w, "failed to generate token")
		return
	}

	s.recordAudit(r.Context(), "login", "session", "", user.ID, nil)

	writeJSON(w, http.StatusOK, resp)
}

// handleRefresh rotates a refresh token and issues a fresh access token.
// Reuse of an already-rotated token revokes the whole token family.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		writeBadRequest(w, "refresh_token is required")
		return
	}

	stored, err := s.tokens.GetByTokenHash(r.Context(), auth.HashToken(req.RefreshToken))
	if err != nil {
		writeUnauthorized(w, "invalid refresh token")
		return
	}

	if stored.Revoked {
		// Token reuse: someone is replaying an already-rotated token.
		// Revoke the whole family so the thief's copy dies too.
		if err := s.tokens.RevokeFamily(r.Context(), stored.FamilyID); err != nil {
			s.logger.Error("revoking token family failed", "error", err, "family", stored.FamilyID)
		}
		s.logger.Warn("refresh token reuse detected", "user_id", stored.UserID, "family", stored.FamilyID)
		writeUnauthorized(w, "invalid refresh token")
		return
	}

	if time.Now().UTC().After(stored.ExpiresAt) {
		writeUnauthorized(w, "refresh token expired")
		return
	}

	user, err := s.users.GetByID(r.Context(), stored.UserID)
	if err != nil || !user.IsActive {
		writeUnauthorized(w, "invalid refresh token")
		return
	}

	resp, err := s.rotateTokens(r.Context(), user, stored)
	if err != nil {
		s.logger.Error("rotating tokens failed", "error", err, "user", user.Username)
		writeInternalError(w, "failed to refresh token")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleLogout revokes the presented refresh token.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		writeBadRequest(w, "refresh_token is required")
		return
	}

	stored, err := s.tokens.GetByTokenHash(r.Context(), auth.HashToken(req.RefreshToken))
	if err == nil {
		if err := s.tokens.Revoke(r.Context(), stored.ID); err != nil {
			s.logger.Error("revoking token failed", "error", err, "token_id", stored.ID)
		}
	}

	// Always 204: logout with an unknown token is not an error worth leaking.
	w.WriteHeader(http.StatusNoContent)
}

// issueTokens creates a new access token and refresh token for a user.
// An empty familyID starts a new token family.
func (s *Server) issueTokens(ctx context.Context, user *auth.User, familyID string) (*tokenResponse, error) {
	ttl := s.secCfg.JWT.AccessTokenTTL
	if ttl <= 0 {
		ttl = 15 //nolint:mnd // default 15-minute access token TTL
	}

	access, err := auth.GenerateAccessToken(user, s.secCfg.JWT.Secret, ttl)
	if err != nil {
		return nil, err
	}

	raw, err := auth.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}

	refreshTTL := s.secCfg.JWT.RefreshTokenTTL
	if refreshTTL <= 0 {
		refreshTTL = defaultRefreshTTLMinutes
	}

	rt := &auth.RefreshToken{
		UserID:    user.ID,
		FamilyID:  familyID,
		TokenHash: auth.HashToken(raw),
		ExpiresAt: time.Now().UTC().Add(time.Duration(refreshTTL) * time.Minute),
	}
	if err := s.tokens.Create(ctx, rt); err != nil {
		return nil, err
	}

	return &tokenResponse{
		AccessToken:  access,
		RefreshToken: raw,
		TokenType:    "Bearer",
		ExpiresIn:    ttl * 60, // seconds
	}, nil
}

// rotateTokens atomically replaces a consumed refresh token with a new one
// in the same family and issues a fresh access token.
func (s *Server) rotateTokens(ctx context.Context, user *auth.User, old *auth.RefreshToken) (*tokenResponse, error) {
	ttl := s.secCfg.JWT.AccessTokenTTL
	if ttl <= 0 {
		ttl = 15 //nolint:mnd // default 15-minute access token TTL
	}

	access, err := auth.GenerateAccessToken(user, s.secCfg.JWT.Secret, ttl)
	if err != nil {
		return nil, err
	}

	raw, err := auth.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}

	refreshTTL := s.secCfg.JWT.RefreshTokenTTL
	if refreshTTL <= 0 {
		refreshTTL = defaultRefreshTTLMinutes
	}

	newRT := &auth.RefreshToken{
		UserID:    user.ID,
		FamilyID:  old.FamilyID,
		TokenHash: auth.HashToken(raw),
		ExpiresAt: time.Now().UTC().Add(time.Duration(refreshTTL) * time.Minute),
	}
	if err := s.tokens.RotateRefreshToken(ctx, old.ID, newRT); err != nil {
		return nil, err
	}

	return &tokenResponse{
		AccessToken:  access,
		RefreshToken: raw,
		TokenType:    "Bearer",
		ExpiresIn:    ttl * 60, // seconds
	}, nil
}

// tokenCleanupLoop purges expired refresh tokens periodically until the
// context is cancelled.
func (s *Server) tokenCleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(tokenCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count, err := s.tokens.DeleteExpired(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("purging expired refresh tokens failed", "error", err)
			} else if count > 0 {
				s.logger.Debug("purged expired refresh tokens", "count", count)
			}
		}
	}
}

// dummyHash is a valid Argon2id hash used to equalise login timing when the
// username does not exist.
const dummyHash = "$argon2id$v=19$m=65536,t=3,p=1$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// handleWSTicket generates a single-use WebSocket authentication ticket.
// The client uses this ticket to authenticate the WebSocket connection
// without exposing the JWT in the URL.
func (s *Server) handleWSTicket(w http.ResponseWriter, r *http.Request) {
	userID, _ := r.Context().Value(ctxKeyUserID).(string)

	ticket := generateTicket()
	s.tickets.issue(ticket, userID)

	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":     ticket,
		"expires_in": int(ticketTTL.Seconds()),
	})
}

// ticketStore holds pending WebSocket authentication tickets.
// Tickets are single-use and expire after ticketTTL.
type ticketStore struct {
	tickets map[string]ticketEntry
	mu      sync.Mutex
}

type ticketEntry struct {
	userID    string
	expiresAt time.Time
}

func newTicketStore() *ticketStore {
	return &ticketStore{tickets: make(map[string]ticketEntry)}
}

// issue stores a new ticket bound to the given user.
func (t *ticketStore) issue(ticket, userID string) {
	t.mu.Lock()
	t.tickets[ticket] = ticketEntry{
		userID:    userID,
		expiresAt: time.Now().Add(ticketTTL),
	}
	t.mu.Unlock()
}

// validate checks if a ticket is valid and consumes it (single-use).
func (t *ticketStore) validate(ticket string) (ticketEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.tickets[ticket]
	if !ok {
		return ticketEntry{}, false
	}

	// Remove ticket (single-use)
	delete(t.tickets, ticket)

	// Check expiry
	if time.Now().After(entry.expiresAt) {
		return ticketEntry{}, false
	}
	return entry, true
}

// cleanExpired removes expired tickets from the store.
func (t *ticketStore) cleanExpired() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	for ticket, entry := range t.tickets {
		if now.After(entry.expiresAt) {
			delete(t.tickets, ticket)
		}
	}
}

// cleanLoop runs cleanExpired periodically until the context is cancelled.
func (t *ticketStore) cleanLoop(ctx context.Context) {
	ticker := time.NewTicker(ticketTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.cleanExpired()
		}
	}
}

// ticketBytes is the number of random bytes used for WebSocket tickets.
const ticketBytes = 32

// generateTicket creates a cryptographically random ticket string.
func generateTicket() string {
	b := make([]byte, ticketBytes)
	//nolint:errcheck // crypto/rand.Read always returns len(b) on supported platforms
	rand.Read(b)
	return hex.EncodeToString(b)
}
