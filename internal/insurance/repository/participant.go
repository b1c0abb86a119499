package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/securepremium/securepremium/internal/insurance/model"
)

// ParticipantRepository stores reputation network participants.
type ParticipantRepository struct {
	db *pgxpool.Pool
}

// NewParticipantRepository creates a ParticipantRepository.
func NewParticipantRepository(db *pgxpool.Pool) *ParticipantRepository {
	return &ParticipantRepository{db: db}
}

// Create inserts a new participant.
func (r *ParticipantRepository) Create(ctx context.Context, p *model.Participant) error {
	p.ID = uuid.New()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	p.IsActive = true
	if p.ReputationScore == 0 {
		p.ReputationScore = 0.5
	}

	query := `
		INSERT INTO network_participants (
			id, participant_id, participant_name, is_active,
			total_reports_submitted, reputation_score, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)`

	_, err := r.db.Exec(ctx, query,
		p.ID, p.ParticipantID, p.ParticipantName, p.IsActive,
		p.TotalReportsSubmitted, p.ReputationScore, p.CreatedAt,
	)
	return err
}

// GetByParticipantID retrieves a participant by external identifier.
func (r *ParticipantRepository) GetByParticipantID(ctx context.Context, participantID string) (*model.Participant, error) {
	query := `SELECT * FROM network_participants WHERE participant_id = $1`

	rows, err := r.db.Query(ctx, query, participantID)
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

// ListActive returns all active participants.
func (r *ParticipantRepository) ListActive(ctx context.Context) ([]*model.Participant, error) {
	query := `
		SELECT * FROM network_participants
		WHERE is_active = TRUE
		ORDER BY created_at`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var participants []*model.Participant
	for rows.Next() {
		p, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

// IncrementReports bumps a participant's submission counter.
func (r *ParticipantRepository) IncrementReports(ctx context.Context, participantID string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE network_participants
		SET total_reports_submitted = total_reports_submitted + 1
		WHERE participant_id = $1`, participantID)
	return err
}

func (r *ParticipantRepository) scan(rows pgx.Rows) (*model.Participant, error) {
	var p model.Participant
	err := rows.Scan(
		&p.ID, &p.ParticipantID, &p.ParticipantName, &p.IsActive,
		&p.TotalReportsSubmitted, &p.ReputationScore, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
