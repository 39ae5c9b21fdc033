package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/painel-fiscal/nfse-importer/internal/common"
	"github.com/painel-fiscal/nfse-importer/internal/entity"
)

// searchLimit caps company directory lookups; the UI shows a short
// autocomplete list.
const searchLimit = 25

// CompanyRepository reads the payroll companies directory. Only
// headquarters rows are eligible for invoice jobs; branches report through
// their headquarters.
type CompanyRepository interface {
	Search(ctx context.Context, term string) ([]*entity.Company, error)
	GetByCode(ctx context.Context, code string) (*entity.Company, error)
}

type companyRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewCompanyRepository(db *DB, logger *slog.Logger) CompanyRepository {
	return &companyRepository{db: db, logger: logger}
}

func (r *companyRepository) Search(ctx context.Context, term string) ([]*entity.Company, error) {
	pattern := "%" + strings.ToLower(strings.TrimSpace(term)) + "%"
	rows, err := r.db.QueryContext(ctx,
		`SELECT code, name FROM payroll_companies
		 WHERE LOWER(headquarters) = 'sim'
		   AND (LOWER(name) LIKE $1 OR LOWER(code) LIKE $1)
		 ORDER BY name LIMIT `+fmt.Sprint(searchLimit), pattern)
	if err != nil {
		r.logger.Error("failed to search companies", "error", err)
		return nil, err
	}
	defer rows.Close()

	var out []*entity.Company
	for rows.Next() {
		var c entity.Company
		if err := rows.Scan(&c.Code, &c.Name); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (r *companyRepository) GetByCode(ctx context.Context, code string) (*entity.Company, error) {
	var c entity.Company
	err := r.db.QueryRowContext(ctx,
		`SELECT code, name FROM payroll_companies
		 WHERE code = $1 AND LOWER(headquarters) = 'sim'`, code).
		Scan(&c.Code, &c.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.NotFoundError(fmt.Sprintf("company %s not found", code))
	}
	if err != nil {
		r.logger.Error("failed to load company", "code", code, "error", err)
		return nil, err
	}
	return &c, nil
}
