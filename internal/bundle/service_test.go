package bundle

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/painel-fiscal/nfse-importer/constants"
	"github.com/painel-fiscal/nfse-importer/internal/common"
	"github.com/painel-fiscal/nfse-importer/internal/entity"
	"github.com/painel-fiscal/nfse-importer/internal/repository"
	"github.com/painel-fiscal/nfse-importer/internal/storage"
)

type fixture struct {
	svc      *Service
	store    *storage.Store
	invoices repository.InvoiceRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.Default()
	db, err := repository.OpenSQLite(":memory:", logger)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close(logger) })
	if err := db.Migrate(context.Background(), logger); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store := storage.NewStore(t.TempDir(), logger)
	invoices := repository.NewInvoiceRepository(db, logger)
	return &fixture{
		svc:      NewService(invoices, store, logger),
		store:    store,
		invoices: invoices,
	}
}

func (fx *fixture) storedFile(t *testing.T, name, content string, status constants.FileStatus, export bool) *entity.ImportFile {
	t.Helper()
	rel, size, err := fx.store.Save(name, strings.NewReader(content))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	return &entity.ImportFile{
		ID:             uuid.New(),
		FileName:       name,
		FileSize:       size,
		StoredPath:     rel,
		Status:         status,
		ExportToOthers: export,
	}
}

func zipNames(t *testing.T, data []byte) []string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("read zip: %v", err)
	}
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	return names
}

func TestBuildUnknownCategory(t *testing.T) {
	fx := newFixture(t)
	job := &entity.ImportJob{ID: uuid.New()}

	_, err := fx.svc.Build(context.Background(), job, "everything")
	var appErr *common.AppError
	if !errors.As(err, &appErr) || appErr.Code != "VALIDATION_ERROR" {
		t.Errorf("error = %v, want VALIDATION_ERROR", err)
	}
}

func TestBuildServicesZip(t *testing.T) {
	fx := newFixture(t)
	job := &entity.ImportJob{ID: uuid.New(), Files: []*entity.ImportFile{
		fx.storedFile(t, "ok.pdf", "conteudo-ok", constants.FileStatusCompleted, false),
		fx.storedFile(t, "falhou.pdf", "conteudo-erro", constants.FileStatusError, false),
	}}

	art, err := fx.svc.Build(context.Background(), job, CategoryServices)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if art.ContentType != "application/zip" {
		t.Errorf("content type = %q", art.ContentType)
	}
	if !strings.HasSuffix(art.FileName, "-servicos.zip") {
		t.Errorf("file name = %q", art.FileName)
	}
	names := zipNames(t, art.Data)
	if len(names) != 1 || names[0] != "ok.pdf" {
		t.Errorf("bundle members = %v, want only the completed file", names)
	}
}

func TestBuildOthersZip(t *testing.T) {
	fx := newFixture(t)
	job := &entity.ImportJob{ID: uuid.New(), Files: []*entity.ImportFile{
		fx.storedFile(t, "ok.pdf", "a", constants.FileStatusCompleted, false),
		fx.storedFile(t, "flagged.pdf", "b", constants.FileStatusCompleted, true),
		fx.storedFile(t, "ignorada.pdf", "c", constants.FileStatusIgnored, false),
		fx.storedFile(t, "falhou.pdf", "d", constants.FileStatusError, false),
	}}

	art, err := fx.svc.Build(context.Background(), job, CategoryOthers)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	names := zipNames(t, art.Data)
	want := map[string]bool{"flagged.pdf": true, "ignorada.pdf": true, "falhou.pdf": true}
	if len(names) != len(want) {
		t.Fatalf("bundle members = %v", names)
	}
	for _, n := range names {
		if !want[n] {
			t.Errorf("unexpected member %q", n)
		}
	}
}

func TestBuildEmptyCategoryIsNotFound(t *testing.T) {
	fx := newFixture(t)
	job := &entity.ImportJob{ID: uuid.New(), Files: []*entity.ImportFile{
		fx.storedFile(t, "falhou.pdf", "x", constants.FileStatusError, false),
	}}

	_, err := fx.svc.Build(context.Background(), job, CategoryServices)
	var appErr *common.AppError
	if !errors.As(err, &appErr) || appErr.Code != "NOT_FOUND" {
		t.Errorf("error = %v, want NOT_FOUND", err)
	}
}

func TestBuildServicesExcel(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	stored, err := fx.invoices.UpsertByAccessKey(ctx, &entity.Invoice{
		FileName:          "nota.pdf",
		AccessKey:         "35250107843800019300000123456789012345678901",
		Number:            "123",
		CompanyCode:       "0042",
		ServiceValueCents: 150050,
	})
	if err != nil {
		t.Fatalf("seed invoice: %v", err)
	}

	file := fx.storedFile(t, "nota.pdf", "bytes", constants.FileStatusCompleted, false)
	file.ResultID = &stored.ID
	job := &entity.ImportJob{
		ID:      uuid.New(),
		Options: entity.JobOptions{CompanyName: "ACME Matriz"},
		Files:   []*entity.ImportFile{file},
	}

	art, err := fx.svc.Build(ctx, job, CategoryServicesExcel)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !strings.HasSuffix(art.FileName, "-servicos.xlsx") {
		t.Errorf("file name = %q", art.FileName)
	}

	wb, err := excelize.OpenReader(bytes.NewReader(art.Data))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer wb.Close()

	const sheet = "Notas de serviço"
	headA1, _ := wb.GetCellValue(sheet, "A1")
	if headA1 != "Arquivo" {
		t.Errorf("A1 = %q", headA1)
	}
	key, _ := wb.GetCellValue(sheet, "F2")
	if key != "35250107843800019300000123456789012345678901" {
		t.Errorf("F2 = %q", key)
	}
	company, _ := wb.GetCellValue(sheet, "C2")
	if company != "ACME Matriz" {
		t.Errorf("C2 = %q", company)
	}
	value, _ := wb.GetCellValue(sheet, "AF2")
	if value != "1500.5" {
		t.Errorf("AF2 = %q", value)
	}
}

func TestBuildServicesExcelWithoutResults(t *testing.T) {
	fx := newFixture(t)
	job := &entity.ImportJob{ID: uuid.New(), Files: []*entity.ImportFile{
		fx.storedFile(t, "falhou.pdf", "x", constants.FileStatusError, false),
	}}

	_, err := fx.svc.Build(context.Background(), job, CategoryServicesExcel)
	var appErr *common.AppError
	if !errors.As(err, &appErr) || appErr.Code != "NOT_FOUND" {
		t.Errorf("error = %v, want NOT_FOUND", err)
	}
}
