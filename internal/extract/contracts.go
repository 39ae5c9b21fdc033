// Package extract defines the structured-extraction strategy contract shared
// by the pattern and assisted extractors, plus the date/decimal/boolean
// normalization both apply before persistence.
package extract

import (
	"context"

	"github.com/painel-fiscal/nfse-importer/internal/entity"
)

// Strategy turns normalized invoice text into a structured invoice record.
// Implementations must return an invoice with a non-empty, digits-only
// access key or an error wrapping common.ErrMissingAccessKey.
type Strategy interface {
	Extract(ctx context.Context, text, fileName string) (*entity.Invoice, error)
}
