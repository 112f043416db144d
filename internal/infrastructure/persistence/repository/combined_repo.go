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

// CombinedRequestRepository implements port.CombinedRequestRepository
type CombinedRequestRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewCombinedRequestRepository creates a new combined request repository
func NewCombinedRequestRepository(db *sql.DB, logger *zap.Logger) port.CombinedRequestRepository {
	return &CombinedRequestRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a combined request. References are unique; a collision
// (two combinations in the same second) fails the insert.
func (r *CombinedRequestRepository) Create(ctx context.Context, c *entity.CombinedRequest) error {
	config, err := encodeMap(c.Config)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO combined_requests (reference, title, description, config, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	result, err := r.getExecutor(ctx).ExecContext(ctx, query,
		c.Reference,
		c.Title,
		c.Description,
		config,
		c.CreatedBy,
		c.CreatedAt,
	)
	if err != nil {
		if sqlite.IsUniqueViolation(err) {
			r.logger.Warn("Combined reference collision", zap.String("reference", c.Reference))
			return fmt.Errorf("combined reference %s already exists: %w", c.Reference, err)
		}
		r.logger.Error("Failed to create combined request", zap.Error(err))
		return fmt.Errorf("failed to create combined request: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	c.ID = id
	return nil
}

// GetByID retrieves a combined request by ID
func (r *CombinedRequestRepository) GetByID(ctx context.Context, id int64) (*entity.CombinedRequest, error) {
	query := `
		SELECT id, reference, title, description, config, created_by, created_at
		FROM combined_requests
		WHERE id = ?
	`

	c, err := scanCombined(r.getExecutor(ctx).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get combined request", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get combined request: %w", err)
	}
	return c, nil
}

// List returns combined requests, newest first
func (r *CombinedRequestRepository) List(ctx context.Context, limit, offset int) ([]*entity.CombinedRequest, error) {
	query := `
		SELECT id, reference, title, description, config, created_by, created_at
		FROM combined_requests
		ORDER BY id DESC
		LIMIT ? OFFSET ?
	`

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list combined requests", zap.Error(err))
		return nil, fmt.Errorf("failed to list combined requests: %w", err)
	}
	defer rows.Close()

	var list []*entity.CombinedRequest
	for rows.Next() {
		c, err := scanCombined(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan combined request: %w", err)
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

func scanCombined(row rowScanner) (*entity.CombinedRequest, error) {
	var (
		c      entity.CombinedRequest
		config string
	)
	if err := row.Scan(&c.ID, &c.Reference, &c.Title, &c.Description, &config, &c.CreatedBy, &c.CreatedAt); err != nil {
		return nil, err
	}
	m, err := decodeMap(config)
	if err != nil {
		return nil, err
	}
	c.Config = m
	return &c, nil
}

func (r *CombinedRequestRepository) getExecutor(ctx context.Context) sqlite.Executor {
	return sqlite.ExecutorFor(ctx, r.db)
}

// Verify interface compliance
var _ port.CombinedRequestRepository = (*CombinedRequestRepository)(nil)
