package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/securepremium/securepremium/internal/insurance/model"
)

// AssessmentRepository stores risk assessment history.
type AssessmentRepository struct {
	db *pgxpool.Pool
}

// NewAssessmentRepository creates an AssessmentRepository.
func NewAssessmentRepository(db *pgxpool.Pool) *AssessmentRepository {
	return &AssessmentRepository{db: db}
}

// Create inserts a new assessment record.
func (r *AssessmentRepository) Create(ctx context.Context, a *model.AssessmentRecord) error {
	indicators, err := json.Marshal(a.ThreatIndicators)
	if err != nil {
		return fmt.Errorf("marshal threat indicators: %w", err)
	}

	a.ID = uuid.New()
	if a.AssessmentDate.IsZero() {
		a.AssessmentDate = time.Now().UTC()
	}
	if a.AssessorType == "" {
		a.AssessorType = "automated"
	}
	if a.AssessmentReason == "" {
		a.AssessmentReason = "scheduled"
	}

	query := `
		INSERT INTO risk_assessments (
			id, device_id, assessment_date, risk_score, risk_level,
			behavioral_risk, hardware_risk, network_risk, anomaly_risk,
			assessment_reason, assessor_type, confidence_score,
			threat_indicators
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12,
			$13
		)`

	_, err = r.db.Exec(ctx, query,
		a.ID, a.DeviceID, a.AssessmentDate, a.RiskScore, a.RiskLevel,
		a.BehavioralRisk, a.HardwareRisk, a.NetworkRisk, a.AnomalyRisk,
		a.AssessmentReason, a.AssessorType, a.ConfidenceScore,
		indicators,
	)
	return err
}

// Latest returns the most recent assessment for a device.
func (r *AssessmentRepository) Latest(ctx context.Context, deviceID string) (*model.AssessmentRecord, error) {
	query := `
		SELECT * FROM risk_assessments
		WHERE device_id = $1
		ORDER BY assessment_date DESC
		LIMIT 1`

	rows, err := r.db.Query(ctx, query, deviceID)
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

// History returns assessments for a device, newest first.
func (r *AssessmentRepository) History(ctx context.Context, deviceID string, limit int) ([]*model.AssessmentRecord, error) {
	if limit <= 0 {
		limit = 30
	}
	query := `
		SELECT * FROM risk_assessments
		WHERE device_id = $1
		ORDER BY assessment_date DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, deviceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*model.AssessmentRecord
	for rows.Next() {
		a, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, a)
	}
	return records, rows.Err()
}

// CountSince returns the number of assessments recorded after cutoff.
func (r *AssessmentRepository) CountSince(ctx context.Context, cutoff time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM risk_assessments WHERE assessment_date >= $1`, cutoff,
	).Scan(&count)
	return count, err
}

func (r *AssessmentRepository) scan(rows pgx.Rows) (*model.AssessmentRecord, error) {
	var a model.AssessmentRecord
	var indicators []byte
	err := rows.Scan(
		&a.ID, &a.DeviceID, &a.AssessmentDate, &a.RiskScore, &a.RiskLevel,
		&a.BehavioralRisk, &a.HardwareRisk, &a.NetworkRisk, &a.AnomalyRisk,
		&a.AssessmentReason, &a.AssessorType, &a.ConfidenceScore,
		&indicators,
	)
	if err != nil {
		return nil, err
	}
	if len(indicators) > 0 {
		if err := json.Unmarshal(indicators, &a.ThreatIndicators); err != nil {
			return nil, fmt.Errorf("unmarshal threat indicators: %w", err)
		}
	}
	return &a, nil
}
