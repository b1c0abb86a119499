// Package repository persists insurance platform records in PostgreSQL
// via pgx.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/securepremium/securepremium/internal/insurance/model"
)

// ErrNotFound is returned when a record is not found in the database.
var ErrNotFound = errors.New("record not found")

// DeviceRepository provides CRUD operations for device profiles.
type DeviceRepository struct {
	db *pgxpool.Pool
}

// NewDeviceRepository creates a DeviceRepository.
func NewDeviceRepository(db *pgxpool.Pool) *DeviceRepository {
	return &DeviceRepository{db: db}
}

// Create inserts a new device profile.
func (r *DeviceRepository) Create(ctx context.Context, device *model.Device) error {
	device.ID = uuid.New()
	if device.RegistrationDate.IsZero() {
		device.RegistrationDate = time.Now().UTC()
	}
	if device.RiskLevel == "" {
		device.RiskLevel = model.RiskLevelMinimal
	}
	device.IsActive = true

	query := `
		INSERT INTO devices (
			id, device_id, fingerprint_hash, cpu, ram, os, os_version,
			hostname, registration_date, last_assessment_date,
			total_assessments, current_risk_score, risk_level, is_active,
			security_incidents, last_incident_date
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10,
			$11, $12, $13, $14,
			$15, $16
		)`

	_, err := r.db.Exec(ctx, query,
		device.ID, device.DeviceID, device.FingerprintHash, device.CPU,
		device.RAM, device.OS, device.OSVersion, device.Hostname,
		device.RegistrationDate, device.LastAssessmentDate,
		device.TotalAssessments, device.CurrentRiskScore, device.RiskLevel,
		device.IsActive, device.SecurityIncidents, device.LastIncidentDate,
	)
	return err
}

// GetByDeviceID retrieves a device by its external identifier.
func (r *DeviceRepository) GetByDeviceID(ctx context.Context, deviceID string) (*model.Device, error) {
	query := `SELECT * FROM devices WHERE device_id = $1`
	return r.scanOne(ctx, query, deviceID)
}

// List returns active devices, optionally filtered by risk level.
func (r *DeviceRepository) List(ctx context.Context, riskLevel string, limit, offset int) ([]*model.Device, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT * FROM devices
		WHERE is_active = TRUE
		  AND ($1 = '' OR risk_level = $1)
		ORDER BY registration_date DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, riskLevel, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []*model.Device
	for rows.Next() {
		d, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

// UpdateRiskState stores the outcome of a fresh assessment on the
// device row and bumps its assessment counter.
func (r *DeviceRepository) UpdateRiskState(ctx context.Context, deviceID string, score float64, level model.RiskLevel) error {
	query := `
		UPDATE devices SET
			current_risk_score = $2,
			risk_level = $3,
			last_assessment_date = $4,
			total_assessments = total_assessments + 1
		WHERE device_id = $1`

	tag, err := r.db.Exec(ctx, query, deviceID, score, level, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordIncident bumps the device's incident counter.
func (r *DeviceRepository) RecordIncident(ctx context.Context, deviceID string) error {
	query := `
		UPDATE devices SET
			security_incidents = security_incidents + 1,
			last_incident_date = $2
		WHERE device_id = $1`

	tag, err := r.db.Exec(ctx, query, deviceID, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CountActive returns the number of active devices.
func (r *DeviceRepository) CountActive(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM devices WHERE is_active = TRUE`).Scan(&count)
	return count, err
}

// CountByRiskLevel returns active device counts grouped by risk level.
func (r *DeviceRepository) CountByRiskLevel(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.Query(ctx,
		`SELECT risk_level, COUNT(*) FROM devices WHERE is_active = TRUE GROUP BY risk_level`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var level string
		var count int
		if err := rows.Scan(&level, &count); err != nil {
			return nil, err
		}
		counts[level] = count
	}
	return counts, rows.Err()
}

func (r *DeviceRepository) scanOne(ctx context.Context, query string, args ...any) (*model.Device, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	return r.scan(rows)
}

func (r *DeviceRepository) scan(rows pgx.Rows) (*model.Device, error) {
	var d model.Device
	err := rows.Scan(
		&d.ID, &d.DeviceID, &d.FingerprintHash, &d.CPU, &d.RAM, &d.OS,
		&d.OSVersion, &d.Hostname, &d.RegistrationDate,
		&d.LastAssessmentDate, &d.TotalAssessments, &d.CurrentRiskScore,
		&d.RiskLevel, &d.IsActive, &d.SecurityIncidents, &d.LastIncidentDate,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
