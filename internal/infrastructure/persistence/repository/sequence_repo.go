package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/procurement-tracker/internal/application/port"
	"github.com/garyjia/procurement-tracker/internal/infrastructure/persistence/sqlite"
)

// SequenceRepository implements port.SequenceRepository
type SequenceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSequenceRepository creates a new sequence repository
func NewSequenceRepository(db *sql.DB, logger *zap.Logger) port.SequenceRepository {
	return &SequenceRepository{
		db:     db,
		logger: logger,
	}
}

// Next increments and returns the counter for dayKey in a single statement
func (r *SequenceRepository) Next(ctx context.Context, dayKey string) (int, error) {
	query := `
		INSERT INTO request_sequences (day, seq) VALUES (?, 1)
		ON CONFLICT(day) DO UPDATE SET seq = seq + 1
		RETURNING seq
	`

	var seq int
	if err := r.getExecutor(ctx).QueryRowContext(ctx, query, dayKey).Scan(&seq); err != nil {
		r.logger.Error("Failed to advance sequence", zap.String("day", dayKey), zap.Error(err))
		return 0, fmt.Errorf("failed to advance sequence: %w", err)
	}
	return seq, nil
}

func (r *SequenceRepository) getExecutor(ctx context.Context) sqlite.Executor {
	return sqlite.ExecutorFor(ctx, r.db)
}

// Verify interface compliance
var _ port.SequenceRepository = (*SequenceRepository)(nil)
