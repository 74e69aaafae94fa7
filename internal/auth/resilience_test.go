package auth

import (
	"context"
	"sync"
	"testing"
	"time"
)

// Failure-mode tests, prefixed for filtering:
//
//	go test -run TestResilience -race ./internal/auth/...

// Two goroutines present the same refresh token at once. SQLite serialises
// the writes so both rotations may commit, but the original token must end
// up revoked and nothing may corrupt.
func TestResilience_ConcurrentRotation(t *testing.T) {
	db := testDB(t)
	users := NewUserRepository(db)
	tokens := NewTokenRepository(db)
	ctx := context.Background()

	user := seedTestUser(t, db, "jamie", RoleUser)
	hash := HashToken("contended-token")
	if err := tokens.Create(ctx, &RefreshToken{
		UserID:    user.ID,
		TokenHash: hash,
		ExpiresAt: time.Now().UTC().Add(24 * time.Hour),
	}); err != nil {
		t.Fatalf("creating initial token: %v", err)
	}

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			stored, err := tokens.GetByTokenHash(ctx, hash)
			if err != nil {
				results <- err
				return
			}
			results <- tokens.RotateRefreshToken(ctx, stored.ID, &RefreshToken{
				UserID:    user.ID,
				FamilyID:  stored.FamilyID,
				TokenHash: HashToken("successor-" + string(rune('a'+i))),
				ExpiresAt: time.Now().UTC().Add(24 * time.Hour),
			})
		}(i)
	}
	wg.Wait()
	close(results)

	var successes int
	for err := range results {
		if err == nil {
			successes++
		}
	}
	if successes == 0 {
		t.Error("no concurrent rotation succeeded")
	}

	stored, err := tokens.GetByTokenHash(ctx, hash)
	if err != nil {
		t.Fatalf("fetching contended token: %v", err)
	}
	if !stored.Revoked {
		t.Error("contended token not revoked after rotation")
	}
	if _, err := users.GetByID(ctx, user.ID); err != nil {
		t.Errorf("user lookup after concurrent rotation failed: %v", err)
	}
}

// Deleting a user must cascade to their refresh tokens over the FK, leaving
// no orphaned rows.
func TestResilience_UserDeletionCascades(t *testing.T) {
	db := testDB(t)
	users := NewUserRepository(db)
	tokens := NewTokenRepository(db)
	ctx := context.Background()

	user := seedTestUser(t, db, "rowan", RoleUser)
	for i := 0; i < 3; i++ {
		if err := tokens.Create(ctx, &RefreshToken{
			UserID:    user.ID,
			TokenHash: HashToken("session-" + string(rune('a'+i))),
			ExpiresAt: time.Now().UTC().Add(24 * time.Hour),
		}); err != nil {
			t.Fatalf("creating token %d: %v", i, err)
		}
	}

	countTokens := func() int {
		t.Helper()
		var n int
		err := db.QueryRow(
			"SELECT COUNT(*) FROM refresh_tokens WHERE user_id = ?", user.ID,
		).Scan(&n)
		if err != nil {
			t.Fatalf("counting tokens: %v", err)
		}
		return n
	}

	if n := countTokens(); n != 3 {
		t.Fatalf("pre-delete token count = %d, want 3", n)
	}
	if err := users.Delete(ctx, user.ID); err != nil {
		t.Fatalf("deleting user: %v", err)
	}
	if n := countTokens(); n != 0 {
		t.Errorf("post-delete token count = %d, want 0", n)
	}
}

// Repository calls on a cancelled context must fail cleanly, not panic or
// leave partial state.
func TestResilience_CancelledContext(t *testing.T) {
	db := testDB(t)
	users := NewUserRepository(db)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := users.List(ctx); err == nil {
		t.Error("List with cancelled context succeeded")
	}
	if _, err := users.GetByUsername(ctx, "ghost"); err == nil {
		t.Error("GetByUsername with cancelled context succeeded")
	}
	if _, err := users.Count(ctx); err == nil {
		t.Error("Count with cancelled context succeeded")
	}
	err := users.Create(ctx, &User{
		Username:     "ghost",
		DisplayName:  "Ghost",
		PasswordHash: "$argon2id$v=19$m=65536,t=3,p=1$dGVzdHNhbHQ$dGVzdGhhc2g",
		Role:         RoleUser,
		IsActive:     true,
	})
	if err == nil {
		t.Error("Create with cancelled context succeeded")
	}
}
