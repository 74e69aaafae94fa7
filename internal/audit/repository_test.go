package audit

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	// A second pool connection would see a fresh empty in-memory database.
	db.SetMaxOpenConns(1)

	schema := `
		CREATE TABLE audit_logs (
			id TEXT PRIMARY KEY,
			action TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			entity_id TEXT,
			user_id TEXT,
			source TEXT NOT NULL,
			details TEXT,
			created_at TEXT NOT NULL
		) STRICT;

		CREATE INDEX idx_audit_logs_action ON audit_logs(action);
		CREATE INDEX idx_audit_logs_entity ON audit_logs(entity_type, entity_id);
		CREATE INDEX idx_audit_logs_created ON audit_logs(created_at);
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("creating audit schema: %v", err)
	}

	return db
}

func TestCreate_GeneratesIDAndTimestamp(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))
	ctx := context.Background()

	entry := &AuditLog{
		Action:     "create",
		EntityType: "device",
		EntityID:   "dev-123",
		UserID:     "usr-abc",
		Source:     "api",
		Details:    map[string]any{"slug": "living-room-sensor"},
	}

	if err := repo.Create(ctx, entry); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if entry.ID == "" {
		t.Error("Create() should generate an ID")
	}
	if entry.CreatedAt.IsZero() {
		t.Error("Create() should set CreatedAt")
	}
}

func TestList_ReturnsMostRecentFirst(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i, action := range []string{"create", "update", "delete"} {
		entry := &AuditLog{
			Action:     action,
			EntityType: "device",
			EntityID:   "dev-123",
			Source:     "api",
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}
		if err := repo.Create(ctx, entry); err != nil {
			t.Fatalf("Create(%s) error = %v", action, err)
		}
	}

	result, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	if result.Total != 3 {
		t.Errorf("Total = %d, want 3", result.Total)
	}
	if len(result.Logs) != 3 {
		t.Fatalf("len(Logs) = %d, want 3", len(result.Logs))
	}
	if result.Logs[0].Action != "delete" {
		t.Errorf("Logs[0].Action = %q, want %q (most recent first)", result.Logs[0].Action, "delete")
	}
}

func TestList_FiltersByActionAndEntity(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))
	ctx := context.Background()

	entries := []AuditLog{
		{Action: "create", EntityType: "device", EntityID: "dev-1", Source: "api"},
		{Action: "delete", EntityType: "device", EntityID: "dev-1", Source: "api"},
		{Action: "create", EntityType: "user", EntityID: "usr-1", Source: "api"},
		{Action: "login", EntityType: "session", UserID: "usr-1", Source: "api"},
	}
	for i := range entries {
		if err := repo.Create(ctx, &entries[i]); err != nil {
			t.Fatalf("Create(%d) error = %v", i, err)
		}
	}

	result, err := repo.List(ctx, Filter{Action: "create"})
	if err != nil {
		t.Fatalf("List(action=create) error = %v", err)
	}
	if result.Total != 2 {
		t.Errorf("Total = %d, want 2", result.Total)
	}

	result, err = repo.List(ctx, Filter{EntityType: "device", EntityID: "dev-1"})
	if err != nil {
		t.Fatalf("List(entity) error = %v", err)
	}
	if result.Total != 2 {
		t.Errorf("Total = %d, want 2", result.Total)
	}

	result, err = repo.List(ctx, Filter{Action: "delete", EntityType: "device"})
	if err != nil {
		t.Fatalf("List(action+entity) error = %v", err)
	}
	if result.Total != 1 {
		t.Errorf("Total = %d, want 1", result.Total)
	}
}

func TestList_Pagination(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		entry := &AuditLog{
			Action:     "update",
			EntityType: "device",
			EntityID:   "dev-123",
			Source:     "api",
			CreatedAt:  base.Add(time.Duration(i) * time.Second),
		}
		if err := repo.Create(ctx, entry); err != nil {
			t.Fatalf("Create(%d) error = %v", i, err)
		}
	}

	result, err := repo.List(ctx, Filter{Limit: 2, Offset: 0})
	if err != nil {
		t.Fatalf("List(page 1) error = %v", err)
	}
	if result.Total != 5 {
		t.Errorf("Total = %d, want 5", result.Total)
	}
	if len(result.Logs) != 2 {
		t.Errorf("len(Logs) = %d, want 2", len(result.Logs))
	}

	result, err = repo.List(ctx, Filter{Limit: 2, Offset: 4})
	if err != nil {
		t.Fatalf("List(last page) error = %v", err)
	}
	if len(result.Logs) != 1 {
		t.Errorf("len(Logs) = %d, want 1", len(result.Logs))
	}
}

func TestList_RoundTripsDetails(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))
	ctx := context.Background()

	entry := &AuditLog{
		Action:     "update",
		EntityType: "device",
		EntityID:   "dev-123",
		Source:     "api",
		Details:    map[string]any{"field": "endpoint", "old": "http://a", "new": "http://b"},
	}
	if err := repo.Create(ctx, entry); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	result, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(result.Logs) != 1 {
		t.Fatalf("len(Logs) = %d, want 1", len(result.Logs))
	}

	details := result.Logs[0].Details
	if details == nil {
		t.Fatal("Details should round-trip")
	}
	if details["field"] != "endpoint" {
		t.Errorf("Details[field] = %v, want endpoint", details["field"])
	}
}

func TestList_EmptyReturnsEmptySlice(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))

	result, err := repo.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Logs == nil {
		t.Error("Logs should be an empty slice, not nil")
	}
	if result.Total != 0 {
		t.Errorf("Total = %d, want 0", result.Total)
	}
}
