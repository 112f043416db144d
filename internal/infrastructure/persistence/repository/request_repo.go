package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/garyjia/procurement-tracker/internal/application/port"
	"github.com/garyjia/procurement-tracker/internal/domain/entity"
	"github.com/garyjia/procurement-tracker/internal/infrastructure/persistence/sqlite"
)

const requestColumns = `
	id, reference, title, description, department_id, requester_id,
	current_assignee_id, total_estimated, currency, priority, procurement_types,
	status, version, is_combined, combined_request_id, lot_number,
	created_at, submitted_at, updated_at`

// RequestRepository implements port.RequestRepository
type RequestRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRequestRepository creates a new request repository
func NewRequestRepository(db *sql.DB, logger *zap.Logger) port.RequestRepository {
	return &RequestRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new request and sets its ID
func (r *RequestRepository) Create(ctx context.Context, req *entity.Request) error {
	tags, err := encodeStrings(req.ProcurementTypes)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO requests (
			reference, title, description, department_id, requester_id,
			current_assignee_id, total_estimated, currency, priority, procurement_types,
			status, version, is_combined, created_at, submitted_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?)
	`

	result, err := r.getExecutor(ctx).ExecContext(ctx, query,
		req.Reference,
		req.Title,
		req.Description,
		req.DepartmentID,
		req.RequesterID,
		nullInt64(req.CurrentAssigneeID),
		req.TotalEstimated,
		req.Currency,
		req.Priority,
		tags,
		req.Status,
		req.Version,
		req.CreatedAt,
		req.SubmittedAt,
		req.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create request", zap.String("reference", req.Reference), zap.Error(err))
		return fmt.Errorf("failed to create request: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	req.ID = id
	return nil
}

// GetByID retrieves a request by ID; items are not loaded
func (r *RequestRepository) GetByID(ctx context.Context, id int64) (*entity.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE id = ?`

	req, err := scanRequest(r.getExecutor(ctx).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get request by ID", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get request: %w", err)
	}
	return req, nil
}

// GetByIDs retrieves the requests that exist among ids, in no particular order
func (r *RequestRepository) GetByIDs(ctx context.Context, ids []int64) ([]*entity.Request, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	marks, args := inClause(ids)
	query := `SELECT ` + requestColumns + ` FROM requests WHERE id IN (` + marks + `)`
	return r.query(ctx, query, args...)
}

// List returns requests matching the filter, newest first
func (r *RequestRepository) List(ctx context.Context, filter port.RequestFilter) ([]*entity.Request, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.DepartmentID != 0 {
		where = append(where, "department_id = ?")
		args = append(args, filter.DepartmentID)
	}
	if filter.RequesterID != 0 {
		where = append(where, "requester_id = ?")
		args = append(args, filter.RequesterID)
	}
	if filter.AssigneeID != 0 {
		where = append(where, "current_assignee_id = ?")
		args = append(args, filter.AssigneeID)
	}

	query := `SELECT ` + requestColumns + ` FROM requests`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY id DESC LIMIT ? OFFSET ?`
	args = append(args, filter.Limit, filter.Offset)

	return r.query(ctx, query, args...)
}

// ListByCombinedID returns the lots of a combined request ordered by lot number
func (r *RequestRepository) ListByCombinedID(ctx context.Context, combinedID int64) ([]*entity.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE combined_request_id = ? ORDER BY lot_number ASC`
	return r.query(ctx, query, combinedID)
}

// UpdateDetails writes the editable fields if the row is still at expectedVersion
func (r *RequestRepository) UpdateDetails(ctx context.Context, req *entity.Request, expectedVersion int64) error {
	tags, err := encodeStrings(req.ProcurementTypes)
	if err != nil {
		return err
	}

	query := `
		UPDATE requests
		SET title = ?, description = ?, priority = ?, procurement_types = ?,
			total_estimated = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`
	result, err := r.getExecutor(ctx).ExecContext(ctx, query,
		req.Title,
		req.Description,
		req.Priority,
		tags,
		req.TotalEstimated,
		now(),
		req.ID,
		expectedVersion,
	)
	return r.checkVersioned(result, err, "update request details", req.ID)
}

// UpdateStatus moves a request to a new status if it is still at the expected version
func (r *RequestRepository) UpdateStatus(ctx context.Context, change port.StatusChange) error {
	query := `
		UPDATE requests
		SET status = ?, submitted_at = COALESCE(?, submitted_at),
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`
	result, err := r.getExecutor(ctx).ExecContext(ctx, query,
		change.Status,
		change.SubmittedAt,
		now(),
		change.RequestID,
		change.ExpectedVersion,
	)
	return r.checkVersioned(result, err, "update request status", change.RequestID)
}

// SetAssignee records the finance officer working a request
func (r *RequestRepository) SetAssignee(ctx context.Context, requestID, expectedVersion, assigneeID int64) error {
	query := `
		UPDATE requests
		SET current_assignee_id = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`
	result, err := r.getExecutor(ctx).ExecContext(ctx, query, assigneeID, now(), requestID, expectedVersion)
	return r.checkVersioned(result, err, "set request assignee", requestID)
}

// AssignLot turns a request into a numbered lot of a combined request.
// A request that is already a lot never matches.
func (r *RequestRepository) AssignLot(ctx context.Context, lot port.LotAssignment) error {
	query := `
		UPDATE requests
		SET is_combined = 1, combined_request_id = ?, lot_number = ?, title = ?, status = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ? AND is_combined = 0
	`
	result, err := r.getExecutor(ctx).ExecContext(ctx, query,
		lot.CombinedID,
		lot.LotNumber,
		lot.Title,
		lot.Status,
		now(),
		lot.RequestID,
		lot.ExpectedVersion,
	)
	return r.checkVersioned(result, err, "assign lot", lot.RequestID)
}

func (r *RequestRepository) checkVersioned(result sql.Result, err error, op string, id int64) error {
	if err != nil {
		r.logger.Error("Failed to "+op, zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%s %d: %w", op, id, port.ErrStaleVersion)
	}
	return nil
}

func (r *RequestRepository) query(ctx context.Context, query string, args ...interface{}) ([]*entity.Request, error) {
	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query requests", zap.Error(err))
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}
	defer rows.Close()

	var reqs []*entity.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		reqs = append(reqs, req)
	}
	return reqs, rows.Err()
}

func scanRequest(row rowScanner) (*entity.Request, error) {
	var (
		req         entity.Request
		assignee    sql.NullInt64
		combinedID  sql.NullInt64
		lotNumber   sql.NullInt64
		submittedAt sql.NullTime
		tags        string
	)
	err := row.Scan(
		&req.ID,
		&req.Reference,
		&req.Title,
		&req.Description,
		&req.DepartmentID,
		&req.RequesterID,
		&assignee,
		&req.TotalEstimated,
		&req.Currency,
		&req.Priority,
		&tags,
		&req.Status,
		&req.Version,
		&req.IsCombined,
		&combinedID,
		&lotNumber,
		&req.CreatedAt,
		&submittedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	req.ProcurementTypes, err = decodeStrings(tags)
	if err != nil {
		return nil, err
	}
	req.CurrentAssigneeID = int64Ptr(assignee)
	req.CombinedRequestID = int64Ptr(combinedID)
	req.LotNumber = intPtr(lotNumber)
	req.SubmittedAt = timePtr(submittedAt)
	return &req, nil
}

func (r *RequestRepository) getExecutor(ctx context.Context) sqlite.Executor {
	return sqlite.ExecutorFor(ctx, r.db)
}

// Verify interface compliance
var _ port.RequestRepository = (*RequestRepository)(nil)
