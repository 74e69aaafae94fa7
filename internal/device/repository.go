package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository is the persistence surface the registry builds on. The
// SQLite implementation below is the real one; tests swap in an
// in-memory fake.
type Repository interface {
	// GetByID returns ErrDeviceNotFound when the device does not exist,
	// as do GetBySlug, Update, Delete, and UpdateHealth.
	GetByID(ctx context.Context, id string) (*Device, error)
	GetBySlug(ctx context.Context, slug string) (*Device, error)

	// List returns all devices ordered by name.
	List(ctx context.Context) ([]Device, error)
	ListByAdapter(ctx context.Context, adapter Adapter) ([]Device, error)

	// Create returns ErrDeviceExists when the ID or slug is taken.
	Create(ctx context.Context, device *Device) error
	Update(ctx context.Context, device *Device) error
	Delete(ctx context.Context, id string) error

	// UpdateHealth writes only the health columns. Hot path for poll
	// coordinators.
	UpdateHealth(ctx context.Context, id string, status HealthStatus, lastSeen time.Time) error
}

// SQLiteRepository implements Repository on the shared SQLite handle.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const deviceColumns = `id, name, slug, adapter, endpoint, token,
	poll_interval, labels, health_status, last_seen, created_at, updated_at`

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+deviceColumns+` FROM devices WHERE id = ?`, id)
	return oneDevice(row, "querying device by id")
}

func (r *SQLiteRepository) GetBySlug(ctx context.Context, slug string) (*Device, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+deviceColumns+` FROM devices WHERE slug = ?`, slug)
	return oneDevice(row, "querying device by slug")
}

func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	return r.queryDevices(ctx, `SELECT `+deviceColumns+` FROM devices ORDER BY name`)
}

func (r *SQLiteRepository) ListByAdapter(ctx context.Context, adapter Adapter) ([]Device, error) {
	return r.queryDevices(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE adapter = ? ORDER BY name`,
		string(adapter))
}

func (r *SQLiteRepository) Create(ctx context.Context, device *Device) error {
	labelsJSON, err := json.Marshal(labelsOrEmpty(device.Labels))
	if err != nil {
		return fmt.Errorf("marshalling labels: %w", err)
	}

	now := time.Now().UTC()
	if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}
	device.UpdatedAt = now

	query := `
		INSERT INTO devices (
			id, name, slug, adapter, endpoint, token,
			poll_interval, labels, health_status, last_seen, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		device.ID,
		device.Name,
		device.Slug,
		string(device.Adapter),
		device.Endpoint,
		device.Token,
		device.PollInterval,
		string(labelsJSON),
		string(device.HealthStatus),
		nullableTime(device.LastSeen),
		device.CreatedAt.Format(time.RFC3339),
		device.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDeviceExists
		}
		return fmt.Errorf("inserting device: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Update(ctx context.Context, device *Device) error {
	labelsJSON, err := json.Marshal(labelsOrEmpty(device.Labels))
	if err != nil {
		return fmt.Errorf("marshalling labels: %w", err)
	}

	device.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE devices SET
			name = ?, slug = ?, adapter = ?, endpoint = ?, token = ?,
			poll_interval = ?, labels = ?, health_status = ?, last_seen = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		device.Name,
		device.Slug,
		string(device.Adapter),
		device.Endpoint,
		device.Token,
		device.PollInterval,
		string(labelsJSON),
		string(device.HealthStatus),
		nullableTime(device.LastSeen),
		device.UpdatedAt.Format(time.RFC3339),
		device.ID,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDeviceExists
		}
		return fmt.Errorf("updating device: %w", err)
	}
	return requireRow(result)
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM devices WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}
	return requireRow(result)
}

func (r *SQLiteRepository) UpdateHealth(ctx context.Context, id string, status HealthStatus, lastSeen time.Time) error {
	query := `
		UPDATE devices
		SET health_status = ?, last_seen = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		string(status),
		lastSeen.UTC().Format(time.RFC3339),
		time.Now().UTC().Format(time.RFC3339),
		id,
	)
	if err != nil {
		return fmt.Errorf("updating device health: %w", err)
	}
	return requireRow(result)
}

// requireRow maps a zero-row UPDATE or DELETE to ErrDeviceNotFound.
func requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if affected == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

func (r *SQLiteRepository) queryDevices(ctx context.Context, query string, args ...any) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *device)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// rowScanner covers sql.Row and sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func oneDevice(row rowScanner, opDesc string) (*Device, error) {
	device, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("%s: %w", opDesc, err)
	}
	return device, nil
}

func scanDevice(scanner rowScanner) (*Device, error) {
	var d Device
	var adapter, healthStatus, labelsJSON string
	var lastSeen sql.NullString
	var createdAt, updatedAt string

	err := scanner.Scan(
		&d.ID,
		&d.Name,
		&d.Slug,
		&adapter,
		&d.Endpoint,
		&d.Token,
		&d.PollInterval,
		&labelsJSON,
		&healthStatus,
		&lastSeen,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.Adapter = Adapter(adapter)
	d.HealthStatus = HealthStatus(healthStatus)

	if lastSeen.Valid {
		if t, err := time.Parse(time.RFC3339, lastSeen.String); err == nil {
			d.LastSeen = &t
		}
	}

	if d.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if d.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	if err := json.Unmarshal([]byte(labelsJSON), &d.Labels); err != nil {
		return nil, fmt.Errorf("unmarshalling labels: %w", err)
	}
	if len(d.Labels) == 0 {
		d.Labels = nil
	}
	return &d, nil
}

// labelsOrEmpty avoids storing JSON null for a nil labels map.
func labelsOrEmpty(labels map[string]string) map[string]string {
	if labels == nil {
		return map[string]string{}
	}
	return labels
}

func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
