// Package bundle produces the downloadable artifacts of a job: zip bundles
// of the original documents and the XLSX projection of persisted invoices.
package bundle

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/painel-fiscal/nfse-importer/constants"
	"github.com/painel-fiscal/nfse-importer/internal/common"
	"github.com/painel-fiscal/nfse-importer/internal/entity"
	"github.com/painel-fiscal/nfse-importer/internal/repository"
	"github.com/painel-fiscal/nfse-importer/internal/storage"
)

// Download categories.
const (
	CategoryServices      = "services"
	CategoryOthers        = "others"
	CategoryServicesExcel = "services-excel"
)

const (
	contentTypeZip  = "application/zip"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Artifact is one ready-to-serve download.
type Artifact struct {
	FileName    string
	ContentType string
	Data        []byte
}

// Service builds artifacts from a job's files and their invoices.
type Service struct {
	invoices repository.InvoiceRepository
	store    *storage.Store
	logger   *slog.Logger
}

func NewService(invoices repository.InvoiceRepository, store *storage.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{invoices: invoices, store: store, logger: logger}
}

// Build assembles the artifact for a category. Unknown categories are a
// validation error; categories with nothing to serve report not found.
func (s *Service) Build(ctx context.Context, job *entity.ImportJob, category string) (*Artifact, error) {
	switch category {
	case CategoryServices:
		return s.buildZip(job, selectCompleted(job.Files), "servicos")
	case CategoryOthers:
		return s.buildZip(job, selectOthers(job.Files), "outros")
	case CategoryServicesExcel:
		return s.buildExcel(ctx, job)
	default:
		return nil, common.ValidationErrorf("unknown download category %q", category)
	}
}

// selectCompleted picks the files whose documents were persisted.
func selectCompleted(files []*entity.ImportFile) []*entity.ImportFile {
	var out []*entity.ImportFile
	for _, f := range files {
		if f.Status == constants.FileStatusCompleted {
			out = append(out, f)
		}
	}
	return out
}

// selectOthers picks everything that is not a plain completed file, plus
// completed files the operator flagged for the others bundle.
func selectOthers(files []*entity.ImportFile) []*entity.ImportFile {
	var out []*entity.ImportFile
	for _, f := range files {
		if f.Status != constants.FileStatusCompleted || f.ExportToOthers {
			out = append(out, f)
		}
	}
	return out
}

func (s *Service) buildZip(job *entity.ImportJob, files []*entity.ImportFile, suffix string) (*Artifact, error) {
	if len(files) == 0 {
		return nil, common.NotFoundError("no files available for download")
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range files {
		if f.StoredPath == "" {
			continue
		}
		src, err := s.store.Open(f.StoredPath)
		if err != nil {
			s.logger.Warn("skipping missing stored file", "file_id", f.ID, "error", err)
			continue
		}
		w, err := zw.Create(f.FileName)
		if err == nil {
			_, err = io.Copy(w, src)
		}
		_ = src.Close()
		if err != nil {
			_ = zw.Close()
			return nil, fmt.Errorf("bundle %s: %w", f.FileName, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}

	return &Artifact{
		FileName:    fmt.Sprintf("job-%s-%s.zip", shortID(job), suffix),
		ContentType: contentTypeZip,
		Data:        buf.Bytes(),
	}, nil
}

// excelHeaders are the workbook columns, in invoice field order.
var excelHeaders = []string{
	"Arquivo", "Código empresa", "Razão social", "Município", "Número",
	"Chave de acesso", "Competência", "Competência período", "Emissão",
	"DPS número", "DPS série", "DPS emissão",
	"Emitente", "CNPJ emitente", "Inscrição emitente", "Telefone emitente",
	"Email emitente", "Endereço emitente", "CEP emitente",
	"Optante Simples", "Regime especial",
	"Tomador", "CNPJ tomador", "Telefone tomador", "Email tomador",
	"Endereço tomador", "CEP tomador",
	"Serviço código nacional", "Serviço código municipal", "Local do serviço",
	"Descrição do serviço", "Valor do serviço", "Base de cálculo",
	"Alíquota ISS", "Valor ISS", "ISS retido",
	"Regime municipal", "Cidade de incidência", "Tributação municipal",
	"Comentário de impostos", "Comentário federal",
	"Totais valor serviço", "Totais ISS retido", "Totais valor retido",
	"Totais valor líquido", "Info complementar", "Criado em", "Atualizado em",
}

func (s *Service) buildExcel(ctx context.Context, job *entity.ImportJob) (*Artifact, error) {
	var resultIDs []int64
	for _, f := range selectCompleted(job.Files) {
		if f.ResultID != nil {
			resultIDs = append(resultIDs, *f.ResultID)
		}
	}
	invoices, err := s.invoices.GetByIDs(ctx, resultIDs)
	if err != nil {
		return nil, err
	}
	if len(invoices) == 0 {
		return nil, common.NotFoundError("no invoice data available for export")
	}

	f := excelize.NewFile()
	const sheet = "Notas de serviço"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, err
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	for i, h := range excelHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for row, inv := range invoices {
		writeInvoiceRow(f, sheet, row+2, job.Options.CompanyName, inv)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}

	s.logger.Info("excel export built", "job_id", job.ID, "rows", len(invoices))
	return &Artifact{
		FileName:    fmt.Sprintf("job-%s-servicos.xlsx", shortID(job)),
		ContentType: contentTypeXLSX,
		Data:        buf.Bytes(),
	}, nil
}

func writeInvoiceRow(f *excelize.File, sheet string, row int, companyName string, inv *entity.Invoice) {
	col := 0
	write := func(v any) {
		col++
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
	dt := func(t *time.Time) string {
		if t == nil {
			return ""
		}
		return t.Format(time.RFC3339)
	}
	money := func(cents int64) float64 { return float64(cents) / 100 }

	write(inv.FileName)
	write(inv.CompanyCode)
	write(companyName)
	write(inv.Municipality)
	write(inv.Number)
	write(inv.AccessKey)
	write(dt(inv.Competence))
	write(inv.CompetencePeriod)
	write(dt(inv.EmissionAt))
	write(inv.DPSNumber)
	write(inv.DPSSeries)
	write(dt(inv.DPSEmissionAt))
	write(inv.EmitterName)
	write(inv.EmitterCNPJ)
	write(inv.EmitterInscription)
	write(inv.EmitterPhone)
	write(inv.EmitterEmail)
	write(inv.EmitterAddress)
	write(inv.EmitterZipcode)
	write(inv.EmitterOptanteSimples)
	write(inv.EmitterRegimeEspecial)
	write(inv.TakerName)
	write(inv.TakerCNPJ)
	write(inv.TakerPhone)
	write(inv.TakerEmail)
	write(inv.TakerAddress)
	write(inv.TakerZipcode)
	write(inv.ServiceNationalCode)
	write(inv.ServiceMunicipalCode)
	write(inv.ServiceLocation)
	write(inv.ServiceDescription)
	write(money(inv.ServiceValueCents))
	write(money(inv.ServiceISSBaseCents))
	write(money(inv.ServiceISSRateCents))
	write(money(inv.ServiceISSValueCents))
	write(inv.ServiceISSRetido)
	write(inv.MunicipalRegime)
	write(inv.MunicipalIncidenceCity)
	write(inv.MunicipalTaxation)
	write(inv.TaxComment)
	write(inv.FederalTaxComment)
	write(money(inv.TotalsServiceValueCents))
	write(inv.TotalsISSRetido)
	write(money(inv.TotalsRetainedValueCents))
	write(money(inv.TotalsNetValueCents))
	write(inv.ComplementaryInfo)
	write(inv.CreatedAt.Format(time.RFC3339))
	write(inv.UpdatedAt.Format(time.RFC3339))
}

func shortID(job *entity.ImportJob) string {
	id := job.ID.String()
	if len(id) > 8 {
		id = id[:8]
	}
	return id
}
