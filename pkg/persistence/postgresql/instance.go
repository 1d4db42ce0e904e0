package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/dukex/licensehub/pkg/models"
	"github.com/dukex/licensehub/pkg/persistence"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// InstanceRepository handles workflow instance database operations.
type InstanceRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewInstanceRepository(db *sql.DB, logger *slog.Logger) *InstanceRepository {
	return &InstanceRepository{db: db, logger: logger}
}

// row holds the denormalized columns derived from an instance.
type row struct {
	document         []byte
	currentDueDate   sql.NullTime
	currentApprovers []string
}

func toRow(inst *models.WorkflowInstance) (row, error) {
	document, err := json.Marshal(inst)
	if err != nil {
		return row{}, fmt.Errorf("failed to marshal workflow instance %s: %w", inst.ID, err)
	}

	r := row{document: document, currentApprovers: []string{}}

	if step := inst.CurrentStepInstance(); step != nil {
		r.currentDueDate = sql.NullTime{Time: step.DueDate, Valid: true}

		if step.Approver != nil {
			r.currentApprovers = append(r.currentApprovers, step.Approver.ID)
			r.currentApprovers = append(r.currentApprovers, step.Approver.Members...)
		}
	}

	return r, nil
}

func (r *InstanceRepository) Create(ctx context.Context, inst *models.WorkflowInstance) error {
	inst.Version = 0

	data, err := toRow(inst)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO workflow_instances (
			id, template_id, template_version, request_type, status, priority, requester_id,
			current_step, current_due_date, current_approvers, document, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 0, $12, $13)
	`

	_, err = r.db.ExecContext(ctx, query,
		inst.ID, inst.TemplateID, inst.TemplateVersion, inst.Type, inst.Status, inst.Priority, inst.RequesterID,
		inst.CurrentStep, data.currentDueDate, pq.Array(data.currentApprovers), data.document, inst.CreatedAt, inst.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return persistence.NewInstanceError("Create", inst.ID, persistence.ErrInstanceExists)
		}

		return fmt.Errorf("failed to insert workflow instance %s: %w", inst.ID, err)
	}

	return nil
}

func (r *InstanceRepository) Load(ctx context.Context, id string) (*models.WorkflowInstance, int64, error) {
	var (
		document []byte
		version  int64
	)

	err := r.db.QueryRowContext(ctx,
		`SELECT document, version FROM workflow_instances WHERE id = $1`, id,
	).Scan(&document, &version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, 0, persistence.NewInstanceError("Load", id, persistence.ErrInstanceNotFound)
		}

		return nil, 0, fmt.Errorf("failed to query workflow instance %s: %w", id, err)
	}

	inst, err := decode(document, version)
	if err != nil {
		return nil, 0, err
	}

	return inst, version, nil
}

// CompareAndSwap updates the row only while its version still equals version.
func (r *InstanceRepository) CompareAndSwap(ctx context.Context, id string, version int64, inst *models.WorkflowInstance) error {
	next := inst.Clone()
	next.Version = version + 1

	data, err := toRow(next)
	if err != nil {
		return err
	}

	query := `
		UPDATE workflow_instances SET
			status = $3,
			current_step = $4,
			current_due_date = $5,
			current_approvers = $6,
			document = $7,
			updated_at = $8,
			version = version + 1
		WHERE id = $1 AND version = $2
	`

	result, err := r.db.ExecContext(ctx, query,
		id, version, next.Status, next.CurrentStep, data.currentDueDate, pq.Array(data.currentApprovers), data.document, next.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update workflow instance %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows for workflow instance %s: %w", id, err)
	}

	if affected == 0 {
		var exists bool

		err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM workflow_instances WHERE id = $1)`, id).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check workflow instance %s: %w", id, err)
		}

		if !exists {
			return persistence.NewInstanceError("CompareAndSwap", id, persistence.ErrInstanceNotFound)
		}

		return persistence.NewInstanceError("CompareAndSwap", id, persistence.ErrVersionConflict)
	}

	inst.Version = next.Version

	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// List translates the filter into SQL; see persistence.InstanceFilter.
func (r *InstanceRepository) List(ctx context.Context, filter persistence.InstanceFilter) ([]*models.WorkflowInstance, error) {
	var (
		conditions []string
		args       []any
	)

	arg := func(value any) string {
		args = append(args, value)

		return "$" + strconv.Itoa(len(args))
	}

	if filter.Status != "" {
		conditions = append(conditions, "status = "+arg(filter.Status))
	}

	if filter.Type != "" {
		conditions = append(conditions, "request_type = "+arg(filter.Type))
	}

	if filter.Priority != "" {
		conditions = append(conditions, "priority = "+arg(filter.Priority))
	}

	if filter.RequesterID != "" {
		conditions = append(conditions, "requester_id = "+arg(filter.RequesterID))
	}

	if filter.ApproverID != "" {
		conditions = append(conditions, arg(filter.ApproverID)+" = ANY(current_approvers)")
	}

	if filter.Search != "" {
		pattern := arg("%" + likeEscaper.Replace(filter.Search) + "%")
		conditions = append(conditions,
			"(document->>'title' ILIKE "+pattern+" OR document->'requester'->>'name' ILIKE "+pattern+")")
	}

	if filter.Overdue != nil {
		now := filter.Now
		if now.IsZero() {
			now = time.Now().UTC()
		}

		overdue := "(current_due_date IS NOT NULL AND current_due_date < " + arg(now) + ")"
		if !*filter.Overdue {
			overdue = "NOT " + overdue
		}

		conditions = append(conditions, overdue)
	}

	query := "SELECT document, version FROM workflow_instances"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY created_at DESC, id DESC"

	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}

	if filter.Offset > 0 {
		query += " OFFSET " + arg(filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow instances: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	instances := make([]*models.WorkflowInstance, 0)

	for rows.Next() {
		var (
			document []byte
			version  int64
		)

		if err := rows.Scan(&document, &version); err != nil {
			return nil, fmt.Errorf("failed to scan workflow instance: %w", err)
		}

		inst, err := decode(document, version)
		if err != nil {
			return nil, err
		}

		instances = append(instances, inst)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflow instances: %w", err)
	}

	return instances, nil
}

func decode(document []byte, version int64) (*models.WorkflowInstance, error) {
	var inst models.WorkflowInstance

	if err := json.Unmarshal(document, &inst); err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow instance: %w", err)
	}

	inst.Version = version

	return &inst, nil
}
