package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/painel-fiscal/nfse-importer/constants"
	"github.com/painel-fiscal/nfse-importer/internal/common"
	"github.com/painel-fiscal/nfse-importer/internal/entity"
)

type FileRepository interface {
	CreateFiles(ctx context.Context, files []*entity.ImportFile) error
	GetFile(ctx context.Context, id uuid.UUID) (*entity.ImportFile, error)
	GetFiles(ctx context.Context, ids []uuid.UUID) ([]*entity.ImportFile, error)
	ListByJob(ctx context.Context, jobID uuid.UUID) ([]*entity.ImportFile, error)
	UpdateProgress(ctx context.Context, id uuid.UUID, status constants.FileStatus, stage constants.FileStage, progress int, message string) error
	SetResult(ctx context.Context, id uuid.UUID, resultID int64) error
	SetExportToOthers(ctx context.Context, id uuid.UUID, export bool) error
	ResetForReprocess(ctx context.Context, ids []uuid.UUID) error
}

type fileRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewFileRepository(db *DB, logger *slog.Logger) FileRepository {
	return &fileRepository{db: db, logger: logger}
}

const fileColumns = `id, job_id, file_name, file_size, stored_path, status, stage,
	progress, message, result_id, export_to_others, created_at, updated_at`

func (r *fileRepository) CreateFiles(ctx context.Context, files []*entity.ImportFile) error {
	if len(files) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	for _, f := range files {
		f.CreatedAt = now
		f.UpdatedAt = now
		_, err := tx.ExecContext(ctx,
			`INSERT INTO import_files (`+fileColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			f.ID.String(), f.JobID.String(), f.FileName, f.FileSize, f.StoredPath,
			string(f.Status), string(f.Stage), f.Progress, f.Message,
			f.ResultID, f.ExportToOthers, f.CreatedAt, f.UpdatedAt)
		if err != nil {
			r.logger.Error("failed to create file", "file_id", f.ID, "error", err)
			return err
		}
	}
	return tx.Commit()
}

func (r *fileRepository) GetFile(ctx context.Context, id uuid.UUID) (*entity.ImportFile, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+fileColumns+` FROM import_files WHERE id = $1`, id.String())
	f, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.NotFoundError(fmt.Sprintf("file %s not found", id))
	}
	if err != nil {
		r.logger.Error("failed to load file", "file_id", id, "error", err)
		return nil, err
	}
	return f, nil
}

func (r *fileRepository) GetFiles(ctx context.Context, ids []uuid.UUID) ([]*entity.ImportFile, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id.String()
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+fileColumns+` FROM import_files
		 WHERE id IN (`+strings.Join(placeholders, ", ")+`) ORDER BY created_at`, args...)
	if err != nil {
		r.logger.Error("failed to load files", "error", err)
		return nil, err
	}
	defer rows.Close()
	return collectFiles(rows)
}

func (r *fileRepository) ListByJob(ctx context.Context, jobID uuid.UUID) ([]*entity.ImportFile, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+fileColumns+` FROM import_files
		 WHERE job_id = $1 ORDER BY created_at, file_name`, jobID.String())
	if err != nil {
		r.logger.Error("failed to list files", "job_id", jobID, "error", err)
		return nil, err
	}
	defer rows.Close()
	return collectFiles(rows)
}

func (r *fileRepository) UpdateProgress(ctx context.Context, id uuid.UUID, status constants.FileStatus, stage constants.FileStage, progress int, message string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE import_files
		 SET status = $1, stage = $2, progress = $3, message = $4, updated_at = $5
		 WHERE id = $6`,
		string(status), string(stage), progress, message, time.Now().UTC(), id.String())
	if err != nil {
		r.logger.Error("failed to update file progress", "file_id", id, "error", err)
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.NotFoundError(fmt.Sprintf("file %s not found", id))
	}
	return nil
}

func (r *fileRepository) SetResult(ctx context.Context, id uuid.UUID, resultID int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE import_files SET result_id = $1, updated_at = $2 WHERE id = $3`,
		resultID, time.Now().UTC(), id.String())
	if err != nil {
		r.logger.Error("failed to set file result", "file_id", id, "error", err)
	}
	return err
}

func (r *fileRepository) SetExportToOthers(ctx context.Context, id uuid.UUID, export bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE import_files SET export_to_others = $1, updated_at = $2 WHERE id = $3`,
		export, time.Now().UTC(), id.String())
	if err != nil {
		r.logger.Error("failed to flag file for export", "file_id", id, "error", err)
	}
	return err
}

// ResetForReprocess rewinds files to the start of the pipeline, clearing any
// previous outcome.
func (r *fileRepository) ResetForReprocess(ctx context.Context, ids []uuid.UUID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	for _, id := range ids {
		_, err := tx.ExecContext(ctx,
			`UPDATE import_files
			 SET status = $1, stage = $2, progress = 0, message = '', result_id = NULL, updated_at = $3
			 WHERE id = $4`,
			string(constants.FileStatusPending), string(constants.StageQueued), now, id.String())
		if err != nil {
			r.logger.Error("failed to reset file", "file_id", id, "error", err)
			return err
		}
	}
	return tx.Commit()
}

func scanFile(row rowScanner) (*entity.ImportFile, error) {
	var (
		f      entity.ImportFile
		id     string
		jobID  string
		status string
		stage  string
		result sql.NullInt64
	)
	err := row.Scan(&id, &jobID, &f.FileName, &f.FileSize, &f.StoredPath,
		&status, &stage, &f.Progress, &f.Message, &result, &f.ExportToOthers,
		&f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if f.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("corrupt file id %q: %w", id, err)
	}
	if f.JobID, err = uuid.Parse(jobID); err != nil {
		return nil, fmt.Errorf("corrupt job id %q: %w", jobID, err)
	}
	f.Status = constants.FileStatus(status)
	f.Stage = constants.FileStage(stage)
	if result.Valid {
		f.ResultID = &result.Int64
	}
	return &f, nil
}

func collectFiles(rows *sql.Rows) ([]*entity.ImportFile, error) {
	var files []*entity.ImportFile
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}
