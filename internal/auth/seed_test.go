package auth

import (
	"context"
	"log/slog"
	"testing"
)

func TestSeedAdmin_FirstBoot(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)

	password, err := SeedAdmin(context.Background(), repo, slog.Default())
	if err != nil {
		t.Fatalf("SeedAdmin() error = %v", err)
	}
	if password == "" {
		t.Fatal("SeedAdmin() returned no password on an empty database")
	}

	admin, err := repo.GetByUsername(context.Background(), "admin")
	if err != nil {
		t.Fatalf("GetByUsername(admin) error = %v", err)
	}
	if admin.Role != RoleAdmin || !admin.IsActive {
		t.Errorf("seed account = role %q active %v, want active admin", admin.Role, admin.IsActive)
	}

	// The returned password must open the account it created.
	ok, err := VerifyPassword(password, admin.PasswordHash)
	if err != nil {
		t.Fatalf("VerifyPassword() error = %v", err)
	}
	if !ok {
		t.Error("generated password does not verify against stored hash")
	}
}

func TestSeedAdmin_NoopWhenUsersExist(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	seedTestUser(t, db, "existing", RoleAdmin)

	password, err := SeedAdmin(context.Background(), repo, slog.Default())
	if err != nil {
		t.Fatalf("SeedAdmin() error = %v", err)
	}
	if password != "" {
		t.Error("SeedAdmin() generated a password even though users exist")
	}

	count, _ := repo.Count(context.Background())
	if count != 1 {
		t.Errorf("Count() = %d, want 1", count)
	}
}

func TestSeedAdmin_PasswordsAreUnique(t *testing.T) {
	pw1, _ := SeedAdmin(context.Background(), NewUserRepository(testDB(t)), slog.Default())
	pw2, _ := SeedAdmin(context.Background(), NewUserRepository(testDB(t)), slog.Default())

	if pw1 == pw2 {
		t.Error("two fresh installs produced the same seed password")
	}
}
