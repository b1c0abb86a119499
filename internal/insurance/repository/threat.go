package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/securepremium/securepremium/internal/insurance/model"
)

// ThreatRepository stores threat intelligence reports.
type ThreatRepository struct {
	db *pgxpool.Pool
}

// NewThreatRepository creates a ThreatRepository.
func NewThreatRepository(db *pgxpool.Pool) *ThreatRepository {
	return &ThreatRepository{db: db}
}

// Create inserts a new threat report record.
func (r *ThreatRepository) Create(ctx context.Context, t *model.ThreatReportRecord) error {
	t.ID = uuid.New()
	if t.ReportDate.IsZero() {
		t.ReportDate = time.Now().UTC()
	}

	query := `
		INSERT INTO threat_reports (
			id, report_id, reporting_participant, target_device_id,
			threat_type, severity, description, evidence_hash,
			verified, report_date
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10
		)`

	_, err := r.db.Exec(ctx, query,
		t.ID, t.ReportID, t.ReportingParticipant, t.TargetDeviceID,
		t.ThreatType, t.Severity, t.Description, t.EvidenceHash,
		t.Verified, t.ReportDate,
	)
	return err
}

// ForDevice returns all reports against a device, newest first.
func (r *ThreatRepository) ForDevice(ctx context.Context, deviceID string, limit int) ([]*model.ThreatReportRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT * FROM threat_reports
		WHERE target_device_id = $1
		ORDER BY report_date DESC
		LIMIT $2`
	return r.list(ctx, query, deviceID, limit)
}

// BySeverity returns reports of one severity, newest first.
func (r *ThreatRepository) BySeverity(ctx context.Context, severity string, limit int) ([]*model.ThreatReportRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT * FROM threat_reports
		WHERE severity = $1
		ORDER BY report_date DESC
		LIMIT $2`
	return r.list(ctx, query, severity, limit)
}

// Unverified returns reports awaiting verification, newest first.
func (r *ThreatRepository) Unverified(ctx context.Context, limit int) ([]*model.ThreatReportRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT * FROM threat_reports
		WHERE verified = FALSE
		ORDER BY report_date DESC
		LIMIT $1`
	return r.list(ctx, query, limit)
}

// MarkVerified flips a report's verified flag.
func (r *ThreatRepository) MarkVerified(ctx context.Context, reportID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE threat_reports SET verified = TRUE WHERE report_id = $1`, reportID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Count returns the total number of stored reports.
func (r *ThreatRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM threat_reports`).Scan(&count)
	return count, err
}

func (r *ThreatRepository) list(ctx context.Context, query string, args ...any) ([]*model.ThreatReportRecord, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*model.ThreatReportRecord
	for rows.Next() {
		t, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, t)
	}
	return records, rows.Err()
}

func (r *ThreatRepository) scan(rows pgx.Rows) (*model.ThreatReportRecord, error) {
	var t model.ThreatReportRecord
	err := rows.Scan(
		&t.ID, &t.ReportID, &t.ReportingParticipant, &t.TargetDeviceID,
		&t.ThreatType, &t.Severity, &t.Description, &t.EvidenceHash,
		&t.Verified, &t.ReportDate,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
