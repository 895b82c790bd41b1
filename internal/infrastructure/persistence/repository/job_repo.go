package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/haulwise/rebate-claims/internal/application/port"
	"github.com/haulwise/rebate-claims/internal/domain/entity"
	"github.com/haulwise/rebate-claims/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// JobRepository implements port.JobRepository
type JobRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewJobRepository creates a new job repository
func NewJobRepository(db *sql.DB, logger *zap.Logger) *JobRepository {
	return &JobRepository{
		db:     db,
		logger: logger,
	}
}

// GetByID retrieves a job by ID
func (r *JobRepository) GetByID(ctx context.Context, id string) (*entity.Job, error) {
	query := `
		SELECT id, status, estimated_weight_lbs, completed_at, total_price
		FROM jobs
		WHERE id = ?
	`

	var job entity.Job
	var completedAt sql.NullTime

	err := sqlite.ExecutorFor(ctx, r.db).QueryRowContext(ctx, query, id).Scan(
		&job.ID,
		&job.Status,
		&job.EstimatedWeightLbs,
		&completedAt,
		&job.TotalPrice,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get job by ID", zap.String("job_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}
	return &job, nil
}

// Upsert stores a job snapshot pushed by the scheduling system
func (r *JobRepository) Upsert(ctx context.Context, job *entity.Job) error {
	query := `
		INSERT INTO jobs (id, status, estimated_weight_lbs, completed_at, total_price)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			estimated_weight_lbs = excluded.estimated_weight_lbs,
			completed_at = excluded.completed_at,
			total_price = excluded.total_price
	`

	var completedAt sql.NullTime
	if job.CompletedAt != nil {
		completedAt = sql.NullTime{Time: job.CompletedAt.UTC(), Valid: true}
	}

	_, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, query,
		job.ID, job.Status, job.EstimatedWeightLbs, completedAt, job.TotalPrice)
	if err != nil {
		r.logger.Error("Failed to upsert job", zap.String("job_id", job.ID), zap.Error(err))
		return fmt.Errorf("failed to upsert job: %w", err)
	}
	return nil
}

var _ port.JobRepository = (*JobRepository)(nil)
