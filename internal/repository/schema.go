package repository

const (
	dialectPostgres = "postgres"
	dialectSQLite   = "sqlite"
)

// schemaStatements returns the DDL for a dialect. The two dialects share
// everything except the auto-increment primary keys.
func schemaStatements(dialect string) []string {
	serial := "BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY"
	if dialect == dialectSQLite {
		serial = "INTEGER PRIMARY KEY AUTOINCREMENT"
	}

	return []string{
		`CREATE TABLE IF NOT EXISTS import_jobs (
			id         TEXT PRIMARY KEY,
			status     TEXT NOT NULL,
			options    TEXT NOT NULL DEFAULT '{}',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS import_files (
			id               TEXT PRIMARY KEY,
			job_id           TEXT NOT NULL REFERENCES import_jobs(id) ON DELETE CASCADE,
			file_name        TEXT NOT NULL,
			file_size        BIGINT NOT NULL DEFAULT 0,
			stored_path      TEXT NOT NULL DEFAULT '',
			status           TEXT NOT NULL,
			stage            TEXT NOT NULL,
			progress         INTEGER NOT NULL DEFAULT 0,
			message          TEXT NOT NULL DEFAULT '',
			result_id        BIGINT,
			export_to_others BOOLEAN NOT NULL DEFAULT FALSE,
			created_at       TIMESTAMP NOT NULL,
			updated_at       TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_import_files_job_id ON import_files (job_id)`,
		`CREATE TABLE IF NOT EXISTS invoices (
			id                       ` + serial + `,
			file_name                TEXT NOT NULL DEFAULT '',
			municipality             TEXT NOT NULL DEFAULT '',
			company_code             TEXT NOT NULL DEFAULT '',
			access_key               TEXT NOT NULL UNIQUE,
			number                   TEXT NOT NULL DEFAULT '',
			competence               DATE,
			competence_period        TEXT NOT NULL DEFAULT '',
			emission_at              TIMESTAMP,
			dps_number               TEXT NOT NULL DEFAULT '',
			dps_series               TEXT NOT NULL DEFAULT '',
			dps_emission_at          TIMESTAMP,
			emitter_name             TEXT NOT NULL DEFAULT '',
			emitter_cnpj             TEXT NOT NULL DEFAULT '',
			emitter_inscription      TEXT NOT NULL DEFAULT '',
			emitter_phone            TEXT NOT NULL DEFAULT '',
			emitter_email            TEXT NOT NULL DEFAULT '',
			emitter_address          TEXT NOT NULL DEFAULT '',
			emitter_zipcode          TEXT NOT NULL DEFAULT '',
			emitter_optante_simples  BOOLEAN NOT NULL DEFAULT FALSE,
			emitter_regime_especial  TEXT NOT NULL DEFAULT '',
			taker_name               TEXT NOT NULL DEFAULT '',
			taker_cnpj               TEXT NOT NULL DEFAULT '',
			taker_phone              TEXT NOT NULL DEFAULT '',
			taker_email              TEXT NOT NULL DEFAULT '',
			taker_address            TEXT NOT NULL DEFAULT '',
			taker_zipcode            TEXT NOT NULL DEFAULT '',
			service_national_code    TEXT NOT NULL DEFAULT '',
			service_municipal_code   TEXT NOT NULL DEFAULT '',
			service_location         TEXT NOT NULL DEFAULT '',
			service_description      TEXT NOT NULL DEFAULT '',
			service_value_cents      BIGINT NOT NULL DEFAULT 0,
			service_iss_base_cents   BIGINT NOT NULL DEFAULT 0,
			service_iss_rate_cents   BIGINT NOT NULL DEFAULT 0,
			service_iss_value_cents  BIGINT NOT NULL DEFAULT 0,
			service_iss_retido       BOOLEAN NOT NULL DEFAULT FALSE,
			municipal_regime         TEXT NOT NULL DEFAULT '',
			municipal_incidence_city TEXT NOT NULL DEFAULT '',
			municipal_taxation       TEXT NOT NULL DEFAULT '',
			tax_comment              TEXT NOT NULL DEFAULT '',
			federal_tax_comment      TEXT NOT NULL DEFAULT '',
			totals_service_value_cents  BIGINT NOT NULL DEFAULT 0,
			totals_iss_retido           BOOLEAN NOT NULL DEFAULT FALSE,
			totals_retained_value_cents BIGINT NOT NULL DEFAULT 0,
			totals_net_value_cents      BIGINT NOT NULL DEFAULT 0,
			complementary_info       TEXT NOT NULL DEFAULT '',
			created_at               TIMESTAMP NOT NULL,
			updated_at               TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS audit_log (
			id         ` + serial + `,
			table_name TEXT NOT NULL,
			row_pk     TEXT NOT NULL,
			action     TEXT NOT NULL,
			changes    TEXT NOT NULL DEFAULT '{}',
			actor      TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_log_row ON audit_log (table_name, row_pk)`,
		`CREATE TABLE IF NOT EXISTS payroll_companies (
			code         TEXT PRIMARY KEY,
			name         TEXT NOT NULL,
			headquarters TEXT NOT NULL DEFAULT ''
		)`,
	}
}
