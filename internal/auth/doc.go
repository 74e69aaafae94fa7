// Package auth provides authentication and authorisation for Hearth Core.
//
// It implements a 2-tier role model (user → admin) with:
//   - Argon2id password hashing (OWASP 2025 recommendation)
//   - JWT access/refresh token rotation with family-based theft detection
//   - Static role-permission mapping (compile-time, no database lookup)
//
// Users can read device state and history and trigger polls; admins
// additionally manage device registration, user accounts, and the
// audit trail.
package auth
