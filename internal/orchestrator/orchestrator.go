// Package orchestrator owns the job lifecycle: validated submission,
// background processing, reprocessing and deletion. Files inside one job
// run sequentially; distinct jobs run concurrently, one worker each.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/painel-fiscal/nfse-importer/constants"
	"github.com/painel-fiscal/nfse-importer/internal/classify"
	"github.com/painel-fiscal/nfse-importer/internal/common"
	"github.com/painel-fiscal/nfse-importer/internal/entity"
	"github.com/painel-fiscal/nfse-importer/internal/extract"
	"github.com/painel-fiscal/nfse-importer/internal/repository"
	"github.com/painel-fiscal/nfse-importer/internal/storage"
)

// competencePeriodRe validates MMYYYY periods at submission time.
var competencePeriodRe = regexp.MustCompile(`^(0[1-9]|1[0-2])[0-9]{4}$`)

// progress checkpoints reported while a file moves through the stages.
const (
	progressOCR        = 5
	progressAI         = 65
	progressPersisting = 90
	progressDone       = 100
)

// TextExtractor produces the text content of one stored PDF.
type TextExtractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// SubmitFile references one previously uploaded document.
type SubmitFile struct {
	FileName    string
	UploadToken string
}

// SubmitRequest carries a batch submission.
type SubmitRequest struct {
	Files   []SubmitFile
	Options entity.JobOptions
}

// Deps wires the orchestrator. NewTextExtractor builds a per-language
// extractor; NewStrategy builds the structured extractor for one job's
// options.
type Deps struct {
	Jobs      repository.JobRepository
	Files     repository.FileRepository
	Invoices  repository.InvoiceRepository
	Companies repository.CompanyRepository
	Store     *storage.Store

	NewTextExtractor func(language string) TextExtractor
	NewStrategy      func(opts entity.JobOptions) extract.Strategy

	// ProcessTimeout bounds one file's pipeline pass. Zero disables it.
	ProcessTimeout time.Duration
	Logger         *slog.Logger
}

type Orchestrator struct {
	deps    Deps
	workers *registry
	logger  *slog.Logger
}

func New(deps Deps) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{deps: deps, workers: newRegistry(), logger: logger}
}

// Submit validates the batch, expands archives, creates the job and starts
// its worker. Validation failures discard the whole submission; no job row
// is written.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (*entity.ImportJob, error) {
	if len(req.Files) == 0 {
		return nil, common.ValidationError("at least one file is required")
	}
	if !competencePeriodRe.MatchString(req.Options.CompetencePeriod) {
		return nil, common.ValidationErrorf("invalid competence period %q, expected MMYYYY", req.Options.CompetencePeriod)
	}
	if req.Options.CompanyCode == "" {
		return nil, common.ValidationError("company code is required")
	}
	company, err := o.deps.Companies.GetByCode(ctx, req.Options.CompanyCode)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ValidationErrorf("company %s is not an eligible headquarters", req.Options.CompanyCode)
		}
		return nil, err
	}
	req.Options.CompanyName = company.Name

	jobID := uuid.New()
	var files []*entity.ImportFile
	addFile := func(name, storedPath string, size int64) {
		files = append(files, &entity.ImportFile{
			ID:         uuid.New(),
			JobID:      jobID,
			FileName:   name,
			FileSize:   size,
			StoredPath: storedPath,
			Status:     constants.FileStatusPending,
			Stage:      constants.StageQueued,
		})
	}

	for _, sf := range req.Files {
		switch {
		case constants.IsZipName(sf.FileName):
			members, err := expandArchive(o.deps.Store, sf.FileName, sf.UploadToken, o.logger)
			if err != nil {
				return nil, err
			}
			for _, m := range members {
				addFile(m.FileName, m.StoredPath, m.Size)
			}
		case constants.IsPDFName(sf.FileName):
			abs, err := o.deps.Store.Path(sf.UploadToken)
			if err != nil {
				return nil, common.ValidationErrorf("unknown upload token for %s", sf.FileName)
			}
			size := fileSize(abs)
			if size < 0 {
				return nil, common.ValidationErrorf("upload for %s is no longer available", sf.FileName)
			}
			addFile(sf.FileName, sf.UploadToken, size)
		default:
			return nil, common.ValidationErrorf("unsupported file type: %s", sf.FileName)
		}
	}
	if len(files) == 0 {
		return nil, common.ValidationError("no eligible pdf documents in submission")
	}

	job := &entity.ImportJob{
		ID:      jobID,
		Status:  constants.JobStatusPending,
		Options: req.Options,
	}
	if err := o.deps.Jobs.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	if err := o.deps.Files.CreateFiles(ctx, files); err != nil {
		return nil, err
	}
	job.Files = files
	job.Totals = entity.ComputeTotals(files)

	o.logger.Info("job submitted",
		"job_id", jobID,
		"company_code", req.Options.CompanyCode,
		"competence_period", req.Options.CompetencePeriod,
		"files", len(files),
	)
	o.Kick(jobID, req.Options)
	return job, nil
}

// Kick starts a worker for the job unless one is already running.
func (o *Orchestrator) Kick(jobID uuid.UUID, opts entity.JobOptions) {
	if !o.workers.tryAcquire(jobID) {
		o.logger.Debug("worker already running", "job_id", jobID)
		return
	}
	go o.runJob(jobID, opts)
}

// Reprocess rewinds the given files of a job and restarts its worker. File
// ids that do not belong to the job are ignored; resolving none is an
// error.
func (o *Orchestrator) Reprocess(ctx context.Context, jobID uuid.UUID, fileIDs []uuid.UUID) (*entity.ImportJob, error) {
	job, err := o.deps.Jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	candidates, err := o.deps.Files.GetFiles(ctx, fileIDs)
	if err != nil {
		return nil, err
	}
	var resolved []uuid.UUID
	for _, f := range candidates {
		if f.JobID == jobID {
			resolved = append(resolved, f.ID)
		}
	}
	if len(resolved) == 0 {
		return nil, common.NotFoundError("no reprocessable files resolved")
	}

	if err := o.deps.Files.ResetForReprocess(ctx, resolved); err != nil {
		return nil, err
	}
	if err := o.recompute(ctx, jobID); err != nil {
		return nil, err
	}

	o.logger.Info("job reprocess requested", "job_id", jobID, "files", len(resolved))
	o.Kick(jobID, job.Options)
	return o.deps.Jobs.GetJob(ctx, jobID)
}

// Delete removes the job, its files and their stored bytes. A running
// worker keeps its in-flight file but finds nothing further to process.
func (o *Orchestrator) Delete(ctx context.Context, jobID uuid.UUID) error {
	job, err := o.deps.Jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	for _, f := range job.Files {
		if f.StoredPath == "" {
			continue
		}
		if err := o.deps.Store.Delete(f.StoredPath); err != nil {
			o.logger.Warn("failed to delete stored upload", "file_id", f.ID, "error", err)
		}
	}
	return o.deps.Jobs.DeleteJob(ctx, jobID)
}

// IsRunning reports whether a worker currently holds the job.
func (o *Orchestrator) IsRunning(jobID uuid.UUID) bool {
	return o.workers.isRunning(jobID)
}

// runJob is the worker loop. It drains pending files sequentially,
// recomputing the job status after every file, and releases the job slot on
// exit. Files left in processing by an interrupted run are picked up again.
func (o *Orchestrator) runJob(jobID uuid.UUID, opts entity.JobOptions) {
	defer o.workers.release(jobID)
	ctx := context.Background()
	start := time.Now()

	o.logger.Info("job worker started", "job_id", jobID)
	if err := o.recompute(ctx, jobID); err != nil {
		o.logger.Error("job worker aborted", "job_id", jobID, "error", err)
		return
	}

	textExtractor := o.deps.NewTextExtractor(opts.OCRLanguage)
	strategy := o.deps.NewStrategy(opts)

	for {
		files, err := o.deps.Files.ListByJob(ctx, jobID)
		if err != nil {
			o.logger.Error("job worker aborted", "job_id", jobID, "error", err)
			return
		}
		var next *entity.ImportFile
		for _, f := range files {
			if f.Status == constants.FileStatusPending || f.Status == constants.FileStatusProcessing {
				next = f
				break
			}
		}
		if next == nil {
			break
		}

		o.processFile(ctx, next, opts, textExtractor, strategy)
		if err := o.recompute(ctx, jobID); err != nil {
			o.logger.Error("job worker aborted", "job_id", jobID, "error", err)
			return
		}
	}

	o.logger.Info("job worker finished", "job_id", jobID,
		"elapsed_ms", time.Since(start).Milliseconds())
}

// processFile runs one document through the pipeline: text extraction,
// classification, structured extraction, persistence. Any stage failure
// marks the file as errored without touching its siblings.
func (o *Orchestrator) processFile(ctx context.Context, f *entity.ImportFile, opts entity.JobOptions, textExtractor TextExtractor, strategy extract.Strategy) {
	if o.deps.ProcessTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.deps.ProcessTimeout)
		defer cancel()
	}

	logger := o.logger.With("job_id", f.JobID, "file_id", f.ID, "file", f.FileName)
	fail := func(stage constants.FileStage, progress int, err error) {
		logger.Error("file processing failed", "stage", stage, "error", err)
		o.updateProgress(f.ID, constants.FileStatusError, constants.StageError, progress, err.Error())
	}

	o.updateProgress(f.ID, constants.FileStatusProcessing, constants.StageOCR, progressOCR, "")

	abs, err := o.deps.Store.Path(f.StoredPath)
	if err != nil {
		fail(constants.StageOCR, progressOCR, err)
		return
	}
	text, err := textExtractor.Extract(ctx, abs)
	if err != nil {
		fail(constants.StageOCR, progressOCR, fmt.Errorf("text extraction: %w", err))
		return
	}

	if !classify.IsServiceInvoice(text) {
		message := "document is not a service invoice"
		if classify.HasBillingMarkers(text) {
			message += " (billing document markers found)"
		}
		logger.Info("file ignored", "reason", message)
		o.updateProgress(f.ID, constants.FileStatusIgnored, constants.StageDone, progressDone, message)
		return
	}

	o.updateProgress(f.ID, constants.FileStatusProcessing, constants.StageAI, progressAI, "")

	inv, err := strategy.Extract(ctx, text, f.FileName)
	if err != nil {
		fail(constants.StageAI, progressAI, fmt.Errorf("structured extraction: %w", err))
		return
	}
	inv.CompanyCode = opts.CompanyCode
	inv.CompetencePeriod = opts.CompetencePeriod

	o.updateProgress(f.ID, constants.FileStatusProcessing, constants.StagePersisting, progressPersisting, "")

	stored, err := o.deps.Invoices.UpsertByAccessKey(ctx, inv)
	if err != nil {
		fail(constants.StagePersisting, progressPersisting, fmt.Errorf("persist invoice: %w", err))
		return
	}
	if err := o.deps.Files.SetResult(ctx, f.ID, stored.ID); err != nil {
		fail(constants.StagePersisting, progressPersisting, err)
		return
	}

	o.updateProgress(f.ID, constants.FileStatusCompleted, constants.StageDone, progressDone, "")
	logger.Info("file completed", "invoice_id", stored.ID, "access_key", stored.AccessKey)
}

func (o *Orchestrator) updateProgress(id uuid.UUID, status constants.FileStatus, stage constants.FileStage, progress int, message string) {
	// progress writes use a fresh context so a timed-out file can still
	// record its error state
	err := o.deps.Files.UpdateProgress(context.Background(), id, status, stage, progress, message)
	if err != nil {
		o.logger.Error("failed to record file progress", "file_id", id, "error", err)
	}
}

// fileSize returns the stored byte count, or -1 when the upload is gone.
func fileSize(abs string) int64 {
	info, err := os.Stat(abs)
	if err != nil {
		return -1
	}
	return info.Size()
}

// recompute derives the job status from its file statuses. This is the
// only writer of import_jobs.status.
func (o *Orchestrator) recompute(ctx context.Context, jobID uuid.UUID) error {
	files, err := o.deps.Files.ListByJob(ctx, jobID)
	if err != nil {
		return err
	}
	status := entity.DeriveJobStatus(entity.ComputeTotals(files))
	return o.deps.Jobs.UpdateJobStatus(ctx, jobID, status)
}
