package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/dukex/licensehub/pkg/models"
)

// AuditRepository stores audit entries in the audit_entries table.
type AuditRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewAuditRepository(db *sql.DB, logger *slog.Logger) *AuditRepository {
	return &AuditRepository{db: db, logger: logger}
}

// Append inserts entries in a single transaction, preserving their order.
func (r *AuditRepository) Append(ctx context.Context, entries ...models.AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}

	transaction, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin audit transaction: %w", err)
	}

	query := `
		INSERT INTO audit_entries (id, instance_id, step_number, actor_id, action, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	for _, entry := range entries {
		var stepNumber sql.NullInt64
		if entry.StepNumber != nil {
			stepNumber = sql.NullInt64{Int64: int64(*entry.StepNumber), Valid: true}
		}

		_, err = transaction.ExecContext(ctx, query,
			entry.ID, entry.InstanceID, stepNumber, entry.ActorID, entry.Action, entry.Comment, entry.Timestamp,
		)
		if err != nil {
			_ = transaction.Rollback()

			return fmt.Errorf("failed to insert audit entry %s: %w", entry.ID, err)
		}
	}

	err = transaction.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit audit entries: %w", err)
	}

	return nil
}

func (r *AuditRepository) ByInstance(ctx context.Context, instanceID string) ([]models.AuditEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, instance_id, step_number, actor_id, action, comment, created_at
		FROM audit_entries
		WHERE instance_id = $1
		ORDER BY seq
	`, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	entries := make([]models.AuditEntry, 0)

	for rows.Next() {
		var (
			entry      models.AuditEntry
			stepNumber sql.NullInt64
		)

		err := rows.Scan(&entry.ID, &entry.InstanceID, &stepNumber, &entry.ActorID, &entry.Action, &entry.Comment, &entry.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}

		if stepNumber.Valid {
			n := int(stepNumber.Int64)
			entry.StepNumber = &n
		}

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit entries: %w", err)
	}

	return entries, nil
}
