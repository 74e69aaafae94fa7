package auth

import (
	"context"
	"errors"
	"testing"
)

func TestUserCreate_GeneratesIDAndRoundTrips(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	hash, _ := HashPassword("winter-garden-42")
	user := &User{
		Username:     "jamie",
		DisplayName:  "Jamie",
		Email:        "jamie@hearth.local",
		PasswordHash: hash,
		Role:         RoleUser,
		IsActive:     true,
	}
	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if user.ID == "" {
		t.Fatal("Create left the ID empty")
	}

	got, err := repo.GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Username != "jamie" || got.DisplayName != "Jamie" {
		t.Errorf("round trip = %q/%q, want jamie/Jamie", got.Username, got.DisplayName)
	}
	if got.Email != "jamie@hearth.local" {
		t.Errorf("Email = %q, want jamie@hearth.local", got.Email)
	}
	if got.Role != RoleUser || !got.IsActive {
		t.Errorf("Role/IsActive = %q/%v, want user/true", got.Role, got.IsActive)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("timestamps not populated")
	}
}

func TestUserCreate_DuplicateUsername(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	seedTestUser(t, db, "rowan", RoleUser)

	hash, _ := HashPassword("anything")
	err := repo.Create(ctx, &User{
		Username:     "rowan",
		DisplayName:  "Second Rowan",
		PasswordHash: hash,
		Role:         RoleUser,
		IsActive:     true,
	})
	if !errors.Is(err, ErrUsernameExists) {
		t.Errorf("Create duplicate error = %v, want ErrUsernameExists", err)
	}
}

func TestUserGetByUsername(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	seeded := seedTestUser(t, db, "admin", RoleAdmin)

	got, err := repo.GetByUsername(ctx, "admin")
	if err != nil {
		t.Fatalf("GetByUsername failed: %v", err)
	}
	if got.ID != seeded.ID {
		t.Errorf("ID = %q, want %q", got.ID, seeded.ID)
	}

	if _, err := repo.GetByUsername(ctx, "nobody"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("unknown username error = %v, want ErrUserNotFound", err)
	}
}

func TestUserList_OldestFirst(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	users, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(users) != 0 {
		t.Fatalf("fresh store lists %d users, want 0", len(users))
	}

	for _, name := range []string{"jamie", "rowan", "sasha"} {
		seedTestUser(t, db, name, RoleUser)
	}

	users, err = repo.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(users) != 3 {
		t.Errorf("List returned %d users, want 3", len(users))
	}
}

func TestUserUpdate_MutableFields(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	user := seedTestUser(t, db, "sasha", RoleUser)
	user.DisplayName = "Sasha K"
	user.Role = RoleAdmin
	user.IsActive = false

	if err := repo.Update(ctx, user); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, err := repo.GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.DisplayName != "Sasha K" || got.Role != RoleAdmin || got.IsActive {
		t.Errorf("after update: %q/%q/%v, want Sasha K/admin/false",
			got.DisplayName, got.Role, got.IsActive)
	}

	ghost := &User{ID: "usr-missing", DisplayName: "x", Role: RoleUser}
	if err := repo.Update(ctx, ghost); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Update missing user error = %v, want ErrUserNotFound", err)
	}
}

func TestUserUpdatePassword(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	user := seedTestUser(t, db, "jamie", RoleUser)

	newHash, _ := HashPassword("spring-meadow-77")
	if err := repo.UpdatePassword(ctx, user.ID, newHash); err != nil {
		t.Fatalf("UpdatePassword failed: %v", err)
	}

	got, err := repo.GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if ok, _ := VerifyPassword("spring-meadow-77", got.PasswordHash); !ok {
		t.Error("new password does not verify")
	}
	if ok, _ := VerifyPassword("test-password", got.PasswordHash); ok {
		t.Error("old password still verifies")
	}
}

func TestUserDelete(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	user := seedTestUser(t, db, "rowan", RoleUser)

	if err := repo.Delete(ctx, user.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := repo.GetByID(ctx, user.ID); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("GetByID after delete error = %v, want ErrUserNotFound", err)
	}
	if err := repo.Delete(ctx, user.ID); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("second Delete error = %v, want ErrUserNotFound", err)
	}
}

func TestUserCount(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	n, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 0 {
		t.Errorf("Count = %d, want 0 on first boot", n)
	}

	seedTestUser(t, db, "jamie", RoleUser)
	seedTestUser(t, db, "admin", RoleAdmin)

	n, err = repo.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Count = %d, want 2", n)
	}
}
