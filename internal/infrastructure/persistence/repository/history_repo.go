package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/procurement-tracker/internal/application/port"
	"github.com/garyjia/procurement-tracker/internal/domain/entity"
	"github.com/garyjia/procurement-tracker/internal/infrastructure/persistence/sqlite"
)

// HistoryRepository implements port.HistoryRepository
type HistoryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *sql.DB, logger *zap.Logger) port.HistoryRepository {
	return &HistoryRepository{
		db:     db,
		logger: logger,
	}
}

// Append records one status history entry
func (r *HistoryRepository) Append(ctx context.Context, entry *entity.StatusHistoryEntry) error {
	query := `
		INSERT INTO request_status_history (
			request_id, previous_status, status, action, actor_id, actor_name,
			comment, combined_request_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now()
	}

	result, err := r.getExecutor(ctx).ExecContext(ctx, query,
		entry.RequestID,
		entry.PreviousStatus,
		entry.Status,
		entry.Action,
		entry.ActorID,
		entry.ActorName,
		entry.Comment,
		nullInt64(entry.CombinedRequestID),
		entry.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create history record", zap.Int64("request_id", entry.RequestID), zap.Error(err))
		return fmt.Errorf("failed to create history: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	entry.ID = id
	return nil
}

// GetByRequestID retrieves the history of a request in insertion order
func (r *HistoryRepository) GetByRequestID(ctx context.Context, requestID int64) ([]*entity.StatusHistoryEntry, error) {
	query := `
		SELECT id, request_id, previous_status, status, action, actor_id, actor_name,
			comment, combined_request_id, created_at
		FROM request_status_history
		WHERE request_id = ?
		ORDER BY id ASC
	`

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, requestID)
	if err != nil {
		r.logger.Error("Failed to get history by request ID", zap.Int64("request_id", requestID), zap.Error(err))
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()

	var records []*entity.StatusHistoryEntry
	for rows.Next() {
		var (
			record     entity.StatusHistoryEntry
			combinedID sql.NullInt64
		)
		err := rows.Scan(
			&record.ID,
			&record.RequestID,
			&record.PreviousStatus,
			&record.Status,
			&record.Action,
			&record.ActorID,
			&record.ActorName,
			&record.Comment,
			&combinedID,
			&record.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		record.CombinedRequestID = int64Ptr(combinedID)
		records = append(records, &record)
	}

	return records, rows.Err()
}

func (r *HistoryRepository) getExecutor(ctx context.Context) sqlite.Executor {
	return sqlite.ExecutorFor(ctx, r.db)
}

// Verify interface compliance
var _ port.HistoryRepository = (*HistoryRepository)(nil)
