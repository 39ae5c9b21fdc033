package orchestrator

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/painel-fiscal/nfse-importer/constants"
	"github.com/painel-fiscal/nfse-importer/internal/common"
	"github.com/painel-fiscal/nfse-importer/internal/entity"
	"github.com/painel-fiscal/nfse-importer/internal/extract"
	"github.com/painel-fiscal/nfse-importer/internal/repository"
	"github.com/painel-fiscal/nfse-importer/internal/storage"
)

// invoiceText passes the classifier and carries an access key for the stub
// strategy to pick up.
const invoiceText = `Nota Fiscal de Serviços Eletrônica NFS-e
Chave de Acesso: 35250107843800019300000123456789012345678901
Valor do ISS: R$ 10,00`

const billingText = `Fatura de energia
Vencimento: 10/02/2025`

// fileTextExtractor treats the stored bytes as the document text.
type fileTextExtractor struct{}

func (fileTextExtractor) Extract(_ context.Context, path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// stubStrategy extracts the access key from the text and can be switched
// into a failing mode.
type stubStrategy struct {
	mu   sync.Mutex
	fail bool
}

func (s *stubStrategy) setFail(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fail
}

func (s *stubStrategy) Extract(_ context.Context, text, fileName string) (*entity.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, errors.New("extraction rejected")
	}
	for _, line := range strings.Split(text, "\n") {
		if rest, ok := strings.CutPrefix(line, "Chave de Acesso: "); ok {
			return &entity.Invoice{FileName: fileName, AccessKey: strings.TrimSpace(rest)}, nil
		}
	}
	return nil, common.ErrMissingAccessKey
}

type fixture struct {
	orch     *Orchestrator
	jobs     repository.JobRepository
	files    repository.FileRepository
	invoices repository.InvoiceRepository
	store    *storage.Store
	strategy *stubStrategy
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.Default()
	db, err := repository.OpenSQLite(":memory:", logger)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close(logger) })
	ctx := context.Background()
	if err := db.Migrate(ctx, logger); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO payroll_companies (code, name, headquarters) VALUES ('0042', 'ACME Matriz', 'sim')`)
	if err != nil {
		t.Fatalf("seed company: %v", err)
	}

	files := repository.NewFileRepository(db, logger)
	jobs := repository.NewJobRepository(db, files, logger)
	invoices := repository.NewInvoiceRepository(db, logger)
	companies := repository.NewCompanyRepository(db, logger)
	store := storage.NewStore(t.TempDir(), logger)
	strategy := &stubStrategy{}

	orch := New(Deps{
		Jobs:             jobs,
		Files:            files,
		Invoices:         invoices,
		Companies:        companies,
		Store:            store,
		NewTextExtractor: func(string) TextExtractor { return fileTextExtractor{} },
		NewStrategy:      func(entity.JobOptions) extract.Strategy { return strategy },
		ProcessTimeout:   30 * time.Second,
		Logger:           logger,
	})
	return &fixture{orch: orch, jobs: jobs, files: files, invoices: invoices, store: store, strategy: strategy}
}

func (fx *fixture) upload(t *testing.T, name, content string) SubmitFile {
	t.Helper()
	rel, _, err := fx.store.Save(name, strings.NewReader(content))
	if err != nil {
		t.Fatalf("store upload: %v", err)
	}
	return SubmitFile{FileName: name, UploadToken: rel}
}

// uploadZip stores an archive built from the given member name/content
// pairs.
func (fx *fixture) uploadZip(t *testing.T, name string, members map[string]string) SubmitFile {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for member, content := range members {
		w, err := zw.Create(member)
		if err != nil {
			t.Fatalf("zip member %s: %v", member, err)
		}
		if _, err := io.WriteString(w, content); err != nil {
			t.Fatalf("zip member %s: %v", member, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}

	rel, _, err := fx.store.Save(name, &buf)
	if err != nil {
		t.Fatalf("store zip: %v", err)
	}
	return SubmitFile{FileName: name, UploadToken: rel}
}

// stubPageCount treats any stored member containing "corrompido" as an
// unreadable PDF and everything else as a one-page document.
func stubPageCount(t *testing.T) {
	t.Helper()
	orig := pageCount
	pageCount = func(path string) (int, error) {
		raw, err := os.ReadFile(path)
		if err != nil {
			return 0, err
		}
		if strings.Contains(string(raw), "corrompido") {
			return 0, errors.New("pdf structure damaged")
		}
		return 1, nil
	}
	t.Cleanup(func() { pageCount = orig })
}

func validOptions() entity.JobOptions {
	return entity.JobOptions{CompanyCode: "0042", CompetencePeriod: "012025"}
}

func (fx *fixture) waitSettled(t *testing.T, jobID uuid.UUID) *entity.ImportJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := fx.jobs.GetJob(context.Background(), jobID)
		if err != nil {
			t.Fatalf("get job: %v", err)
		}
		if !fx.orch.IsRunning(jobID) && job.Status != constants.JobStatusProcessing {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job did not settle in time")
	return nil
}

func TestSubmitProcessesInvoice(t *testing.T) {
	fx := newFixture(t)
	job, err := fx.orch.Submit(context.Background(),
		SubmitRequest{Files: []SubmitFile{fx.upload(t, "nota.pdf", invoiceText)}, Options: validOptions()})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if job.Options.CompanyName != "ACME Matriz" {
		t.Errorf("company name = %q", job.Options.CompanyName)
	}

	done := fx.waitSettled(t, job.ID)
	if done.Status != constants.JobStatusCompleted {
		t.Fatalf("job status = %s", done.Status)
	}
	f := done.Files[0]
	if f.Status != constants.FileStatusCompleted || f.Stage != constants.StageDone || f.Progress != 100 {
		t.Errorf("file = status %s stage %s progress %d", f.Status, f.Stage, f.Progress)
	}
	if f.ResultID == nil {
		t.Fatal("completed file should reference its invoice")
	}

	inv, err := fx.invoices.GetByID(context.Background(), *f.ResultID)
	if err != nil {
		t.Fatalf("load invoice: %v", err)
	}
	if inv.AccessKey != "35250107843800019300000123456789012345678901" {
		t.Errorf("access key = %q", inv.AccessKey)
	}
	if inv.CompanyCode != "0042" || inv.CompetencePeriod != "012025" {
		t.Errorf("job options not stamped: %q %q", inv.CompanyCode, inv.CompetencePeriod)
	}
}

func TestSubmitIgnoresNonInvoiceDocuments(t *testing.T) {
	fx := newFixture(t)
	job, err := fx.orch.Submit(context.Background(),
		SubmitRequest{Files: []SubmitFile{fx.upload(t, "fatura.pdf", billingText)}, Options: validOptions()})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	done := fx.waitSettled(t, job.ID)
	if done.Status != constants.JobStatusCompleted {
		t.Errorf("job status = %s, ignored files should not fail the job", done.Status)
	}
	f := done.Files[0]
	if f.Status != constants.FileStatusIgnored {
		t.Errorf("file status = %s", f.Status)
	}
	if !strings.Contains(f.Message, "billing document markers") {
		t.Errorf("message = %q, should mention billing markers", f.Message)
	}
	if done.Totals.Ignored != 1 {
		t.Errorf("totals = %+v", done.Totals)
	}
}

func TestSubmitMixedOutcomeShowsCompletedWithErrors(t *testing.T) {
	fx := newFixture(t)
	good := fx.upload(t, "nota.pdf", invoiceText)
	// classifies as an invoice but carries no access key for the strategy
	bad := fx.upload(t, "quebrada.pdf", "NFS-e emitida com ISS retido")

	job, err := fx.orch.Submit(context.Background(),
		SubmitRequest{Files: []SubmitFile{good, bad}, Options: validOptions()})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	done := fx.waitSettled(t, job.ID)
	if done.Status != constants.JobStatusFailed {
		t.Fatalf("job status = %s", done.Status)
	}
	if done.DisplayStatus() != constants.DisplayCompletedWithErrors {
		t.Errorf("display status = %s", done.DisplayStatus())
	}
	if done.Totals.Completed != 1 || done.Totals.Failed != 1 {
		t.Errorf("totals = %+v", done.Totals)
	}
}

func TestSubmitValidation(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	upload := fx.upload(t, "nota.pdf", invoiceText)

	tests := []struct {
		name string
		req  SubmitRequest
	}{
		{"no files", SubmitRequest{Options: validOptions()}},
		{"bad competence period", SubmitRequest{
			Files:   []SubmitFile{upload},
			Options: entity.JobOptions{CompanyCode: "0042", CompetencePeriod: "132025"},
		}},
		{"missing company", SubmitRequest{
			Files:   []SubmitFile{upload},
			Options: entity.JobOptions{CompetencePeriod: "012025"},
		}},
		{"unknown company", SubmitRequest{
			Files:   []SubmitFile{upload},
			Options: entity.JobOptions{CompanyCode: "9999", CompetencePeriod: "012025"},
		}},
		{"unsupported extension", SubmitRequest{
			Files:   []SubmitFile{{FileName: "planilha.xlsx", UploadToken: upload.UploadToken}},
			Options: validOptions(),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fx.orch.Submit(ctx, tt.req)
			var appErr *common.AppError
			if !errors.As(err, &appErr) || appErr.Code != "VALIDATION_ERROR" {
				t.Errorf("error = %v, want VALIDATION_ERROR", err)
			}
		})
	}

	jobs, err := fx.jobs.ListJobs(ctx, 0)
	if err != nil {
		t.Fatalf("list jobs: %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("rejected submissions must not leave job rows, found %d", len(jobs))
	}
}

func TestReprocessRecoversFailedFile(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.strategy.setFail(true)
	job, err := fx.orch.Submit(ctx,
		SubmitRequest{Files: []SubmitFile{fx.upload(t, "nota.pdf", invoiceText)}, Options: validOptions()})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	done := fx.waitSettled(t, job.ID)
	if done.Status != constants.JobStatusFailed {
		t.Fatalf("job status = %s", done.Status)
	}

	fx.strategy.setFail(false)
	if _, err := fx.orch.Reprocess(ctx, job.ID, []uuid.UUID{done.Files[0].ID}); err != nil {
		t.Fatalf("reprocess: %v", err)
	}
	done = fx.waitSettled(t, job.ID)
	if done.Status != constants.JobStatusCompleted {
		t.Errorf("job status after reprocess = %s", done.Status)
	}
	if done.Files[0].Message != "" {
		t.Errorf("reprocess should clear the failure message, got %q", done.Files[0].Message)
	}
}

func TestReprocessUnresolvedFilesIsNotFound(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	job, err := fx.orch.Submit(ctx,
		SubmitRequest{Files: []SubmitFile{fx.upload(t, "nota.pdf", invoiceText)}, Options: validOptions()})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	fx.waitSettled(t, job.ID)

	_, err = fx.orch.Reprocess(ctx, job.ID, []uuid.UUID{uuid.New()})
	var appErr *common.AppError
	if !errors.As(err, &appErr) || appErr.Code != "NOT_FOUND" {
		t.Errorf("error = %v, want NOT_FOUND", err)
	}
}

func TestDeleteRemovesStoredUploads(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	upload := fx.upload(t, "nota.pdf", invoiceText)
	job, err := fx.orch.Submit(ctx,
		SubmitRequest{Files: []SubmitFile{upload}, Options: validOptions()})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	fx.waitSettled(t, job.ID)

	if err := fx.orch.Delete(ctx, job.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := fx.jobs.GetJob(ctx, job.ID); err == nil {
		t.Error("job should be gone")
	}
	if _, err := fx.store.Open(upload.UploadToken); err == nil {
		t.Error("stored upload should be gone")
	}
}

func TestRegistrySingleWorkerPerJob(t *testing.T) {
	r := newRegistry()
	id := uuid.New()
	if !r.tryAcquire(id) {
		t.Fatal("first acquire should succeed")
	}
	if r.tryAcquire(id) {
		t.Error("second acquire should fail while the worker runs")
	}
	r.release(id)
	if !r.tryAcquire(id) {
		t.Error("acquire should succeed after release")
	}
}

func TestCompetencePeriodPattern(t *testing.T) {
	valid := []string{"012025", "122030", "092001"}
	invalid := []string{"132025", "002025", "1225", "2025-01", "012025x", ""}
	for _, v := range valid {
		if !competencePeriodRe.MatchString(v) {
			t.Errorf("%q should be a valid period", v)
		}
	}
	for _, v := range invalid {
		if competencePeriodRe.MatchString(v) {
			t.Errorf("%q should be rejected", v)
		}
	}
}

func TestSubmitRejectsAllProcessingLikeAsPending(t *testing.T) {
	// freshly created files count toward the processing bucket
	files := []*entity.ImportFile{
		{Status: constants.FileStatusPending},
		{Status: constants.FileStatusUploading},
	}
	totals := entity.ComputeTotals(files)
	if totals.Processing != 2 {
		t.Errorf("processing = %d", totals.Processing)
	}
	if got := entity.DeriveJobStatus(totals); got != constants.JobStatusProcessing {
		t.Errorf("derived status = %s", got)
	}
	if got := entity.DeriveJobStatus(entity.JobTotals{}); got != constants.JobStatusPending {
		t.Errorf("empty job status = %s", got)
	}
}

func TestSubmitExpandsArchive(t *testing.T) {
	fx := newFixture(t)
	stubPageCount(t)
	ctx := context.Background()

	const secondInvoice = `Nota Fiscal de Serviços Eletrônica NFS-e
Chave de Acesso: 35250107843800019300000987654321098765432109
Valor do ISS: R$ 20,00`

	archive := fx.uploadZip(t, "lote.zip", map[string]string{
		"notas/nota1.pdf":      invoiceText,
		"nota2.pdf":            secondInvoice,
		"leia-me.txt":          "instruções do lote",
		"__MACOSX/._nota1.pdf": "finder junk",
		".DS_Store":            "finder junk",
		"quebrada.pdf":         "corrompido",
	})

	job, err := fx.orch.Submit(ctx, SubmitRequest{Files: []SubmitFile{archive}, Options: validOptions()})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(job.Files) != 2 {
		t.Fatalf("expanded files = %d, want 2", len(job.Files))
	}
	names := map[string]bool{}
	for _, f := range job.Files {
		names[f.FileName] = true
	}
	if !names["nota1.pdf"] || !names["nota2.pdf"] {
		t.Errorf("expanded names = %v", names)
	}

	done := fx.waitSettled(t, job.ID)
	if done.Status != constants.JobStatusCompleted {
		t.Errorf("job status = %s", done.Status)
	}
	if done.Totals.Completed != 2 {
		t.Errorf("totals = %+v", done.Totals)
	}
}

func TestSubmitRejectsArchiveWithoutPDFs(t *testing.T) {
	fx := newFixture(t)
	stubPageCount(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		members map[string]string
	}{
		{"no pdf members", map[string]string{"leia-me.txt": "sem notas"}},
		{"only invalid pdfs", map[string]string{"quebrada.pdf": "corrompido"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			archive := fx.uploadZip(t, "vazio.zip", tt.members)
			valid := fx.upload(t, "nota.pdf", invoiceText)

			_, err := fx.orch.Submit(ctx,
				SubmitRequest{Files: []SubmitFile{archive, valid}, Options: validOptions()})
			var appErr *common.AppError
			if !errors.As(err, &appErr) || appErr.Code != "VALIDATION_ERROR" {
				t.Errorf("error = %v, want VALIDATION_ERROR", err)
			}
		})
	}

	jobs, err := fx.jobs.ListJobs(ctx, 0)
	if err != nil {
		t.Fatalf("list jobs: %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("rejected submissions must not leave job rows, found %d", len(jobs))
	}
}

func TestWorkerResumesInterruptedFile(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	rel, size, err := fx.store.Save("nota.pdf", strings.NewReader(invoiceText))
	if err != nil {
		t.Fatalf("store upload: %v", err)
	}
	job := &entity.ImportJob{ID: uuid.New(), Status: constants.JobStatusProcessing, Options: validOptions()}
	if err := fx.jobs.CreateJob(ctx, job); err != nil {
		t.Fatalf("create job: %v", err)
	}
	stranded := &entity.ImportFile{
		ID:         uuid.New(),
		JobID:      job.ID,
		FileName:   "nota.pdf",
		FileSize:   size,
		StoredPath: rel,
		Status:     constants.FileStatusProcessing,
		Stage:      constants.StageOCR,
		Progress:   5,
	}
	if err := fx.files.CreateFiles(ctx, []*entity.ImportFile{stranded}); err != nil {
		t.Fatalf("create file: %v", err)
	}

	fx.orch.Kick(job.ID, job.Options)
	done := fx.waitSettled(t, job.ID)
	if done.Status != constants.JobStatusCompleted {
		t.Fatalf("job status = %s", done.Status)
	}
	f := done.Files[0]
	if f.Status != constants.FileStatusCompleted || f.Stage != constants.StageDone || f.Progress != 100 {
		t.Errorf("file after resume = %s/%s/%d", f.Status, f.Stage, f.Progress)
	}
}
