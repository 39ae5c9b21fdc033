package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/painel-fiscal/nfse-importer/internal/common"
	"github.com/painel-fiscal/nfse-importer/internal/entity"
)

type InvoiceRepository interface {
	// UpsertByAccessKey inserts or updates the row holding the invoice's
	// access key and returns the stored row. Every write leaves an audit
	// entry in the same transaction.
	UpsertByAccessKey(ctx context.Context, inv *entity.Invoice) (*entity.Invoice, error)
	GetByID(ctx context.Context, id int64) (*entity.Invoice, error)
	GetByIDs(ctx context.Context, ids []int64) ([]*entity.Invoice, error)
}

type invoiceRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewInvoiceRepository(db *DB, logger *slog.Logger) InvoiceRepository {
	return &invoiceRepository{db: db, logger: logger}
}

const invoiceColumns = `id, file_name, municipality, company_code, access_key, number,
	competence, competence_period, emission_at,
	dps_number, dps_series, dps_emission_at,
	emitter_name, emitter_cnpj, emitter_inscription, emitter_phone, emitter_email,
	emitter_address, emitter_zipcode, emitter_optante_simples, emitter_regime_especial,
	taker_name, taker_cnpj, taker_phone, taker_email, taker_address, taker_zipcode,
	service_national_code, service_municipal_code, service_location, service_description,
	service_value_cents, service_iss_base_cents, service_iss_rate_cents,
	service_iss_value_cents, service_iss_retido,
	municipal_regime, municipal_incidence_city, municipal_taxation,
	tax_comment, federal_tax_comment,
	totals_service_value_cents, totals_iss_retido, totals_retained_value_cents,
	totals_net_value_cents, complementary_info, created_at, updated_at`

func (r *invoiceRepository) UpsertByAccessKey(ctx context.Context, inv *entity.Invoice) (*entity.Invoice, error) {
	if strings.TrimSpace(inv.AccessKey) == "" {
		return nil, common.ErrMissingAccessKey
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := getInvoiceBy(ctx, tx, "access_key", inv.AccessKey)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	now := time.Now().UTC()
	createdAt := now
	action := auditActionCreate
	var before map[string]any
	if existing != nil {
		createdAt = existing.CreatedAt
		action = auditActionUpdate
		before = snapshotInvoice(existing)
	}

	row := tx.QueryRowContext(ctx, `
		INSERT INTO invoices (
			file_name, municipality, company_code, access_key, number,
			competence, competence_period, emission_at,
			dps_number, dps_series, dps_emission_at,
			emitter_name, emitter_cnpj, emitter_inscription, emitter_phone, emitter_email,
			emitter_address, emitter_zipcode, emitter_optante_simples, emitter_regime_especial,
			taker_name, taker_cnpj, taker_phone, taker_email, taker_address, taker_zipcode,
			service_national_code, service_municipal_code, service_location, service_description,
			service_value_cents, service_iss_base_cents, service_iss_rate_cents,
			service_iss_value_cents, service_iss_retido,
			municipal_regime, municipal_incidence_city, municipal_taxation,
			tax_comment, federal_tax_comment,
			totals_service_value_cents, totals_iss_retido, totals_retained_value_cents,
			totals_net_value_cents, complementary_info, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19, $20,
			$21, $22, $23, $24, $25, $26, $27, $28, $29, $30,
			$31, $32, $33, $34, $35, $36, $37, $38, $39, $40,
			$41, $42, $43, $44, $45, $46, $47
		)
		ON CONFLICT (access_key) DO UPDATE SET
			file_name = excluded.file_name,
			municipality = excluded.municipality,
			company_code = excluded.company_code,
			number = excluded.number,
			competence = excluded.competence,
			competence_period = excluded.competence_period,
			emission_at = excluded.emission_at,
			dps_number = excluded.dps_number,
			dps_series = excluded.dps_series,
			dps_emission_at = excluded.dps_emission_at,
			emitter_name = excluded.emitter_name,
			emitter_cnpj = excluded.emitter_cnpj,
			emitter_inscription = excluded.emitter_inscription,
			emitter_phone = excluded.emitter_phone,
			emitter_email = excluded.emitter_email,
			emitter_address = excluded.emitter_address,
			emitter_zipcode = excluded.emitter_zipcode,
			emitter_optante_simples = excluded.emitter_optante_simples,
			emitter_regime_especial = excluded.emitter_regime_especial,
			taker_name = excluded.taker_name,
			taker_cnpj = excluded.taker_cnpj,
			taker_phone = excluded.taker_phone,
			taker_email = excluded.taker_email,
			taker_address = excluded.taker_address,
			taker_zipcode = excluded.taker_zipcode,
			service_national_code = excluded.service_national_code,
			service_municipal_code = excluded.service_municipal_code,
			service_location = excluded.service_location,
			service_description = excluded.service_description,
			service_value_cents = excluded.service_value_cents,
			service_iss_base_cents = excluded.service_iss_base_cents,
			service_iss_rate_cents = excluded.service_iss_rate_cents,
			service_iss_value_cents = excluded.service_iss_value_cents,
			service_iss_retido = excluded.service_iss_retido,
			municipal_regime = excluded.municipal_regime,
			municipal_incidence_city = excluded.municipal_incidence_city,
			municipal_taxation = excluded.municipal_taxation,
			tax_comment = excluded.tax_comment,
			federal_tax_comment = excluded.federal_tax_comment,
			totals_service_value_cents = excluded.totals_service_value_cents,
			totals_iss_retido = excluded.totals_iss_retido,
			totals_retained_value_cents = excluded.totals_retained_value_cents,
			totals_net_value_cents = excluded.totals_net_value_cents,
			complementary_info = excluded.complementary_info,
			updated_at = excluded.updated_at
		RETURNING id`,
		inv.FileName, inv.Municipality, inv.CompanyCode, inv.AccessKey, inv.Number,
		inv.Competence, inv.CompetencePeriod, inv.EmissionAt,
		inv.DPSNumber, inv.DPSSeries, inv.DPSEmissionAt,
		inv.EmitterName, inv.EmitterCNPJ, inv.EmitterInscription, inv.EmitterPhone, inv.EmitterEmail,
		inv.EmitterAddress, inv.EmitterZipcode, inv.EmitterOptanteSimples, inv.EmitterRegimeEspecial,
		inv.TakerName, inv.TakerCNPJ, inv.TakerPhone, inv.TakerEmail, inv.TakerAddress, inv.TakerZipcode,
		inv.ServiceNationalCode, inv.ServiceMunicipalCode, inv.ServiceLocation, inv.ServiceDescription,
		inv.ServiceValueCents, inv.ServiceISSBaseCents, inv.ServiceISSRateCents,
		inv.ServiceISSValueCents, inv.ServiceISSRetido,
		inv.MunicipalRegime, inv.MunicipalIncidenceCity, inv.MunicipalTaxation,
		inv.TaxComment, inv.FederalTaxComment,
		inv.TotalsServiceValueCents, inv.TotalsISSRetido, inv.TotalsRetainedValueCents,
		inv.TotalsNetValueCents, inv.ComplementaryInfo, createdAt, now)

	var id int64
	if err := row.Scan(&id); err != nil {
		r.logger.Error("failed to upsert invoice", "access_key", inv.AccessKey, "error", err)
		return nil, err
	}

	stored := *inv
	stored.ID = id
	stored.CreatedAt = createdAt
	stored.UpdatedAt = now

	entry := &AuditEntry{
		Table:   "invoices",
		RowPK:   fmt.Sprint(id),
		Action:  action,
		Changes: diffSnapshots(before, snapshotInvoice(&stored)),
		Actor:   "pipeline",
	}
	if err := insertAudit(ctx, tx, entry); err != nil {
		r.logger.Error("failed to write audit entry", "access_key", inv.AccessKey, "error", err)
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	r.logger.Info("invoice persisted", "invoice_id", id, "access_key", inv.AccessKey, "action", action)
	return &stored, nil
}

func (r *invoiceRepository) GetByID(ctx context.Context, id int64) (*entity.Invoice, error) {
	inv, err := getInvoiceBy(ctx, r.db, "id", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.NotFoundError(fmt.Sprintf("invoice %d not found", id))
	}
	if err != nil {
		r.logger.Error("failed to load invoice", "invoice_id", id, "error", err)
		return nil, err
	}
	return inv, nil
}

func (r *invoiceRepository) GetByIDs(ctx context.Context, ids []int64) ([]*entity.Invoice, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices
		 WHERE id IN (`+strings.Join(placeholders, ", ")+`) ORDER BY id`, args...)
	if err != nil {
		r.logger.Error("failed to load invoices", "error", err)
		return nil, err
	}
	defer rows.Close()

	var out []*entity.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getInvoiceBy(ctx context.Context, q querier, column string, value any) (*entity.Invoice, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE `+column+` = $1`, value)
	return scanInvoice(row)
}

func scanInvoice(row rowScanner) (*entity.Invoice, error) {
	var (
		inv        entity.Invoice
		competence sql.NullTime
		emission   sql.NullTime
		dpsEmit    sql.NullTime
	)
	err := row.Scan(&inv.ID, &inv.FileName, &inv.Municipality, &inv.CompanyCode,
		&inv.AccessKey, &inv.Number,
		&competence, &inv.CompetencePeriod, &emission,
		&inv.DPSNumber, &inv.DPSSeries, &dpsEmit,
		&inv.EmitterName, &inv.EmitterCNPJ, &inv.EmitterInscription, &inv.EmitterPhone, &inv.EmitterEmail,
		&inv.EmitterAddress, &inv.EmitterZipcode, &inv.EmitterOptanteSimples, &inv.EmitterRegimeEspecial,
		&inv.TakerName, &inv.TakerCNPJ, &inv.TakerPhone, &inv.TakerEmail, &inv.TakerAddress, &inv.TakerZipcode,
		&inv.ServiceNationalCode, &inv.ServiceMunicipalCode, &inv.ServiceLocation, &inv.ServiceDescription,
		&inv.ServiceValueCents, &inv.ServiceISSBaseCents, &inv.ServiceISSRateCents,
		&inv.ServiceISSValueCents, &inv.ServiceISSRetido,
		&inv.MunicipalRegime, &inv.MunicipalIncidenceCity, &inv.MunicipalTaxation,
		&inv.TaxComment, &inv.FederalTaxComment,
		&inv.TotalsServiceValueCents, &inv.TotalsISSRetido, &inv.TotalsRetainedValueCents,
		&inv.TotalsNetValueCents, &inv.ComplementaryInfo, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if competence.Valid {
		inv.Competence = &competence.Time
	}
	if emission.Valid {
		inv.EmissionAt = &emission.Time
	}
	if dpsEmit.Valid {
		inv.DPSEmissionAt = &dpsEmit.Time
	}
	return &inv, nil
}
