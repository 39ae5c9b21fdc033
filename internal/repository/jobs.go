package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/painel-fiscal/nfse-importer/constants"
	"github.com/painel-fiscal/nfse-importer/internal/common"
	"github.com/painel-fiscal/nfse-importer/internal/entity"
)

type JobRepository interface {
	CreateJob(ctx context.Context, job *entity.ImportJob) error
	GetJob(ctx context.Context, id uuid.UUID) (*entity.ImportJob, error)
	ListJobs(ctx context.Context, limit int) ([]*entity.ImportJob, error)
	UpdateJobStatus(ctx context.Context, id uuid.UUID, status constants.JobStatus) error
	DeleteJob(ctx context.Context, id uuid.UUID) error
}

type jobRepository struct {
	db     *DB
	files  FileRepository
	logger *slog.Logger
}

func NewJobRepository(db *DB, files FileRepository, logger *slog.Logger) JobRepository {
	return &jobRepository{db: db, files: files, logger: logger}
}

func (r *jobRepository) CreateJob(ctx context.Context, job *entity.ImportJob) error {
	opts, err := json.Marshal(job.Options)
	if err != nil {
		return fmt.Errorf("marshal job options: %w", err)
	}
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO import_jobs (id, status, options, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		job.ID.String(), string(job.Status), string(opts), job.CreatedAt, job.UpdatedAt)
	if err != nil {
		r.logger.Error("failed to create job", "job_id", job.ID, "error", err)
		return err
	}
	return nil
}

func (r *jobRepository) GetJob(ctx context.Context, id uuid.UUID) (*entity.ImportJob, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, status, options, created_at, updated_at
		 FROM import_jobs WHERE id = $1`, id.String())

	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.NotFoundError(fmt.Sprintf("job %s not found", id))
	}
	if err != nil {
		r.logger.Error("failed to load job", "job_id", id, "error", err)
		return nil, err
	}

	job.Files, err = r.files.ListByJob(ctx, id)
	if err != nil {
		return nil, err
	}
	job.Totals = entity.ComputeTotals(job.Files)
	return job, nil
}

// ListJobs returns the most recent jobs with their files hydrated. A limit
// of zero or less means no bound.
func (r *jobRepository) ListJobs(ctx context.Context, limit int) ([]*entity.ImportJob, error) {
	query := `SELECT id, status, options, created_at, updated_at
		 FROM import_jobs ORDER BY created_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("failed to list jobs", "error", err)
		return nil, err
	}
	defer rows.Close()

	var jobs []*entity.ImportJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, job := range jobs {
		job.Files, err = r.files.ListByJob(ctx, job.ID)
		if err != nil {
			return nil, err
		}
		job.Totals = entity.ComputeTotals(job.Files)
	}
	return jobs, nil
}

func (r *jobRepository) UpdateJobStatus(ctx context.Context, id uuid.UUID, status constants.JobStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE import_jobs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), id.String())
	if err != nil {
		r.logger.Error("failed to update job status", "job_id", id, "error", err)
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.NotFoundError(fmt.Sprintf("job %s not found", id))
	}
	return nil
}

func (r *jobRepository) DeleteJob(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM import_jobs WHERE id = $1`, id.String())
	if err != nil {
		r.logger.Error("failed to delete job", "job_id", id, "error", err)
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.NotFoundError(fmt.Sprintf("job %s not found", id))
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*entity.ImportJob, error) {
	var (
		job    entity.ImportJob
		id     string
		status string
		opts   string
	)
	if err := row.Scan(&id, &status, &opts, &job.CreatedAt, &job.UpdatedAt); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("corrupt job id %q: %w", id, err)
	}
	job.ID = parsed
	job.Status = constants.JobStatus(status)
	if err := json.Unmarshal([]byte(opts), &job.Options); err != nil {
		return nil, fmt.Errorf("decode job options: %w", err)
	}
	return &job, nil
}
