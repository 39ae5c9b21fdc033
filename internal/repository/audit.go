package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/painel-fiscal/nfse-importer/internal/entity"
)

// FieldChange records one field transition inside an audit entry.
type FieldChange struct {
	From any `json:"from"`
	To   any `json:"to"`
}

// AuditEntry is one persisted interception of a write. Changes maps field
// names to their before/after values; creates record every field with a
// nil From.
type AuditEntry struct {
	ID        int64
	Table     string
	RowPK     string
	Action    string
	Changes   map[string]FieldChange
	Actor     string
	CreatedAt time.Time
}

const (
	auditActionCreate = "create"
	auditActionUpdate = "update"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertAudit(ctx context.Context, ex execer, entry *AuditEntry) error {
	changes, err := json.Marshal(entry.Changes)
	if err != nil {
		return fmt.Errorf("marshal audit changes: %w", err)
	}
	_, err = ex.ExecContext(ctx,
		`INSERT INTO audit_log (table_name, row_pk, action, changes, actor, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.Table, entry.RowPK, entry.Action, string(changes), entry.Actor, time.Now().UTC())
	return err
}

// snapshotInvoice flattens the invoice into comparable field values. The
// surrogate id and timestamps stay out of the diff.
func snapshotInvoice(inv *entity.Invoice) map[string]any {
	raw, err := json.Marshal(inv)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	delete(m, "ID")
	delete(m, "CreatedAt")
	delete(m, "UpdatedAt")
	return m
}

func diffSnapshots(before, after map[string]any) map[string]FieldChange {
	changes := make(map[string]FieldChange)
	for k, toVal := range after {
		var fromVal any
		if before != nil {
			fromVal = before[k]
		}
		if fmt.Sprint(fromVal) == fmt.Sprint(toVal) {
			continue
		}
		changes[k] = FieldChange{From: fromVal, To: toVal}
	}
	return changes
}

type AuditRepository interface {
	ListByRow(ctx context.Context, table, rowPK string) ([]*AuditEntry, error)
}

type auditRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewAuditRepository(db *DB, logger *slog.Logger) AuditRepository {
	return &auditRepository{db: db, logger: logger}
}

func (r *auditRepository) ListByRow(ctx context.Context, table, rowPK string) ([]*AuditEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, table_name, row_pk, action, changes, actor, created_at
		 FROM audit_log WHERE table_name = $1 AND row_pk = $2 ORDER BY id`,
		table, rowPK)
	if err != nil {
		r.logger.Error("failed to list audit entries", "table", table, "row_pk", rowPK, "error", err)
		return nil, err
	}
	defer rows.Close()

	var entries []*AuditEntry
	for rows.Next() {
		var (
			e       AuditEntry
			changes string
		)
		if err := rows.Scan(&e.ID, &e.Table, &e.RowPK, &e.Action, &changes, &e.Actor, &e.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(changes), &e.Changes); err != nil {
			return nil, fmt.Errorf("decode audit changes: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
