package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/securepremium/securepremium/internal/insurance/model"
)

// PremiumRepository stores premium quote records.
type PremiumRepository struct {
	db *pgxpool.Pool
}

// NewPremiumRepository creates a PremiumRepository.
func NewPremiumRepository(db *pgxpool.Pool) *PremiumRepository {
	return &PremiumRepository{db: db}
}

// Create inserts a new premium record.
func (r *PremiumRepository) Create(ctx context.Context, p *model.PremiumRecord) error {
	p.ID = uuid.New()
	if p.CreatedDate.IsZero() {
		p.CreatedDate = time.Now().UTC()
	}
	p.IsActive = true

	query := `
		INSERT INTO premium_records (
			id, device_id, base_premium, risk_multiplier,
			reputation_discount, volume_discount, final_premium,
			coverage_tier, annual_deductible, coverage_limit,
			policy_start_date, policy_end_date, policy_term_months,
			is_active, created_date
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7,
			$8, $9, $10,
			$11, $12, $13,
			$14, $15
		)`

	_, err := r.db.Exec(ctx, query,
		p.ID, p.DeviceID, p.BasePremium, p.RiskMultiplier,
		p.ReputationDiscount, p.VolumeDiscount, p.FinalPremium,
		p.CoverageTier, p.AnnualDeductible, p.CoverageLimit,
		p.PolicyStartDate, p.PolicyEndDate, p.PolicyTermMonths,
		p.IsActive, p.CreatedDate,
	)
	return err
}

// ActiveForDevice returns the device's current active policy.
func (r *PremiumRepository) ActiveForDevice(ctx context.Context, deviceID string) (*model.PremiumRecord, error) {
	query := `
		SELECT * FROM premium_records
		WHERE device_id = $1 AND is_active = TRUE
		ORDER BY created_date DESC
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

// History returns all premium records for a device, newest first.
func (r *PremiumRepository) History(ctx context.Context, deviceID string, limit int) ([]*model.PremiumRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT * FROM premium_records
		WHERE device_id = $1
		ORDER BY created_date DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, deviceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*model.PremiumRecord
	for rows.Next() {
		p, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, p)
	}
	return records, rows.Err()
}

// Deactivate marks all of a device's policies inactive. Called before
// writing a replacement policy.
func (r *PremiumRepository) Deactivate(ctx context.Context, deviceID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE premium_records SET is_active = FALSE WHERE device_id = $1`, deviceID)
	return err
}

func (r *PremiumRepository) scan(rows pgx.Rows) (*model.PremiumRecord, error) {
	var p model.PremiumRecord
	err := rows.Scan(
		&p.ID, &p.DeviceID, &p.BasePremium, &p.RiskMultiplier,
		&p.ReputationDiscount, &p.VolumeDiscount, &p.FinalPremium,
		&p.CoverageTier, &p.AnnualDeductible, &p.CoverageLimit,
		&p.PolicyStartDate, &p.PolicyEndDate, &p.PolicyTermMonths,
		&p.IsActive, &p.CreatedDate,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
