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

// ItemRepository implements port.ItemRepository
type ItemRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewItemRepository creates a new request item repository
func NewItemRepository(db *sql.DB, logger *zap.Logger) port.ItemRepository {
	return &ItemRepository{
		db:     db,
		logger: logger,
	}
}

// ReplaceForRequest swaps the full item list of a request
func (r *ItemRepository) ReplaceForRequest(ctx context.Context, requestID int64, items []entity.RequestItem) error {
	exec := r.getExecutor(ctx)

	if _, err := exec.ExecContext(ctx, `DELETE FROM request_items WHERE request_id = ?`, requestID); err != nil {
		r.logger.Error("Failed to clear request items", zap.Int64("request_id", requestID), zap.Error(err))
		return fmt.Errorf("failed to clear items: %w", err)
	}

	query := `
		INSERT INTO request_items (
			request_id, position, description, quantity, unit_price, total_price
		) VALUES (?, ?, ?, ?, ?, ?)
	`
	for i, item := range items {
		position := item.Position
		if position == 0 {
			position = i + 1
		}
		_, err := exec.ExecContext(ctx, query,
			requestID,
			position,
			item.Description,
			item.Quantity,
			item.UnitPrice,
			item.TotalPrice,
		)
		if err != nil {
			r.logger.Error("Failed to create request item", zap.Int64("request_id", requestID), zap.Error(err))
			return fmt.Errorf("failed to create item %d: %w", position, err)
		}
	}
	return nil
}

// GetByRequestID retrieves the items of a request in position order
func (r *ItemRepository) GetByRequestID(ctx context.Context, requestID int64) ([]entity.RequestItem, error) {
	byRequest, err := r.GetByRequestIDs(ctx, []int64{requestID})
	if err != nil {
		return nil, err
	}
	return byRequest[requestID], nil
}

// GetByRequestIDs retrieves items for several requests at once
func (r *ItemRepository) GetByRequestIDs(ctx context.Context, requestIDs []int64) (map[int64][]entity.RequestItem, error) {
	out := make(map[int64][]entity.RequestItem, len(requestIDs))
	if len(requestIDs) == 0 {
		return out, nil
	}

	marks, args := inClause(requestIDs)
	query := `
		SELECT id, request_id, position, description, quantity, unit_price, total_price
		FROM request_items
		WHERE request_id IN (` + marks + `)
		ORDER BY request_id, position ASC
	`

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to get request items", zap.Error(err))
		return nil, fmt.Errorf("failed to get items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item entity.RequestItem
		err := rows.Scan(
			&item.ID,
			&item.RequestID,
			&item.Position,
			&item.Description,
			&item.Quantity,
			&item.UnitPrice,
			&item.TotalPrice,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		out[item.RequestID] = append(out[item.RequestID], item)
	}
	return out, rows.Err()
}

func (r *ItemRepository) getExecutor(ctx context.Context) sqlite.Executor {
	return sqlite.ExecutorFor(ctx, r.db)
}

// Verify interface compliance
var _ port.ItemRepository = (*ItemRepository)(nil)
