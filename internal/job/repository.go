package job

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/framestudio/pipeline-core/internal/envelope"
)

// Repository is the narrow job-row surface the pipeline core depends on.
// Schema ownership, migrations and the rest of the job's columns live
// outside the core.
type Repository interface {
	Get(ctx context.Context, id string) (*Row, error)
	UpdateStatus(ctx context.Context, id string, status envelope.Status) error
	UpdateProgress(ctx context.Context, id string, progress Progress) error
	RecordResult(ctx context.Context, id string, result envelope.Result) error
	RecordFailure(ctx context.Context, id string, errMsg string) error
}

// PostgresRepository implements Repository against the jobs table using
// sqlx, following the teacher's AlertRepository: named/positional SQL with
// no ORM layer over a single narrow table.
type PostgresRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewPostgresRepository wraps an established *sqlx.DB connection.
func NewPostgresRepository(db *sqlx.DB, logger *zap.Logger) *PostgresRepository {
	return &PostgresRepository{db: db, logger: logger}
}

// Get retrieves a job row by id.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*Row, error) {
	const query = `SELECT id, status, video_url, config, progress, result, error,
		callback_url, created_at, updated_at, started_at, completed_at
		FROM jobs WHERE id = $1`

	var row Row
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return &row, nil
}

// UpdateStatus sets the status column and bumps updated_at; it also sets
// started_at the first time the job moves off pending.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, status envelope.Status) error {
	const query = `UPDATE jobs SET status = $1, updated_at = $2,
		started_at = COALESCE(started_at, CASE WHEN $1 != 'pending' THEN $2 END)
		WHERE id = $3`

	if _, err := r.db.ExecContext(ctx, query, string(status), time.Now(), id); err != nil {
		r.logger.Error("failed to update job status", zap.String("job_id", id), zap.Error(err))
		return fmt.Errorf("update job %s status: %w", id, err)
	}
	return nil
}

// UpdateProgress persists a progress snapshot; failures are logged by the
// caller (the progress callback contract never fails the processor).
func (r *PostgresRepository) UpdateProgress(ctx context.Context, id string, progress Progress) error {
	payload, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("marshal progress for job %s: %w", id, err)
	}

	const query = `UPDATE jobs SET progress = $1, status = $2, updated_at = $3 WHERE id = $4`
	if _, err := r.db.ExecContext(ctx, query, payload, string(progress.Status), time.Now(), id); err != nil {
		return fmt.Errorf("update job %s progress: %w", id, err)
	}
	return nil
}

// RecordResult marks the job completed with a result payload and completion
// timestamp.
func (r *PostgresRepository) RecordResult(ctx context.Context, id string, result envelope.Result) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result for job %s: %w", id, err)
	}

	const query = `UPDATE jobs SET status = $1, result = $2, completed_at = $3, updated_at = $3 WHERE id = $4`
	if _, err := r.db.ExecContext(ctx, query, string(envelope.StatusCompleted), payload, time.Now(), id); err != nil {
		return fmt.Errorf("record result for job %s: %w", id, err)
	}
	return nil
}

// RecordFailure marks the job failed with an error message.
func (r *PostgresRepository) RecordFailure(ctx context.Context, id string, errMsg string) error {
	const query = `UPDATE jobs SET status = $1, error = $2, updated_at = $3 WHERE id = $4`
	if _, err := r.db.ExecContext(ctx, query, string(envelope.StatusFailed), errMsg, time.Now(), id); err != nil {
		r.logger.Error("failed to record job failure", zap.String("job_id", id), zap.Error(err))
		return fmt.Errorf("record failure for job %s: %w", id, err)
	}
	return nil
}
