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

// AuditLogRepository implements port.AuditLogRepository and port.AuditRecorder.
// The table is append-only.
type AuditLogRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAuditLogRepository creates a new audit log repository
func NewAuditLogRepository(db *sql.DB, logger *zap.Logger) *AuditLogRepository {
	return &AuditLogRepository{
		db:     db,
		logger: logger,
	}
}

// Record implements port.AuditRecorder
func (r *AuditLogRepository) Record(ctx context.Context, entry entity.AuditEntry) error {
	return r.Append(ctx, &entry)
}

// Append inserts one audit entry
func (r *AuditLogRepository) Append(ctx context.Context, entry *entity.AuditEntry) error {
	metadata, err := encodeMap(entry.Metadata)
	if err != nil {
		return err
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now()
	}

	query := `
		INSERT INTO audit_logs (actor_id, actor_name, action, entity, entity_id, message, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.getExecutor(ctx).ExecContext(ctx, query,
		entry.ActorID,
		entry.ActorName,
		entry.Action,
		entry.Entity,
		entry.EntityID,
		entry.Message,
		metadata,
		entry.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to append audit entry", zap.String("action", entry.Action), zap.Error(err))
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	entry.ID = id
	return nil
}

// ListByEntity returns the audit trail of one entity, oldest first
func (r *AuditLogRepository) ListByEntity(ctx context.Context, entityName string, entityID int64) ([]*entity.AuditEntry, error) {
	query := `
		SELECT id, actor_id, actor_name, action, entity, entity_id, message, metadata, created_at
		FROM audit_logs
		WHERE entity = ? AND entity_id = ?
		ORDER BY id ASC
	`

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, entityName, entityID)
	if err != nil {
		r.logger.Error("Failed to list audit entries", zap.String("entity", entityName), zap.Int64("entity_id", entityID), zap.Error(err))
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*entity.AuditEntry
	for rows.Next() {
		var (
			entry    entity.AuditEntry
			metadata string
		)
		err := rows.Scan(
			&entry.ID,
			&entry.ActorID,
			&entry.ActorName,
			&entry.Action,
			&entry.Entity,
			&entry.EntityID,
			&entry.Message,
			&metadata,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if entry.Metadata, err = decodeMap(metadata); err != nil {
			return nil, err
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

func (r *AuditLogRepository) getExecutor(ctx context.Context) sqlite.Executor {
	return sqlite.ExecutorFor(ctx, r.db)
}

// Verify interface compliance
var (
	_ port.AuditLogRepository = (*AuditLogRepository)(nil)
	_ port.AuditRecorder      = (*AuditLogRepository)(nil)
)
