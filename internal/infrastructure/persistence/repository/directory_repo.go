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

// DirectoryRepository implements port.Directory over the users,
// user_roles and departments tables
type DirectoryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDirectoryRepository creates a new directory repository
func NewDirectoryRepository(db *sql.DB, logger *zap.Logger) port.Directory {
	return &DirectoryRepository{
		db:     db,
		logger: logger,
	}
}

// GetUser retrieves a user with their roles
func (r *DirectoryRepository) GetUser(ctx context.Context, id int64) (*entity.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`

	user, err := scanUser(r.getExecutor(ctx).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get user", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if err := r.attachRoles(ctx, []*entity.User{user}); err != nil {
		return nil, err
	}
	return user, nil
}

// GetDepartment retrieves a department by ID
func (r *DirectoryRepository) GetDepartment(ctx context.Context, id int64) (*entity.Department, error) {
	query := `SELECT id, code, name FROM departments WHERE id = ?`

	var dept entity.Department
	err := r.getExecutor(ctx).QueryRowContext(ctx, query, id).Scan(&dept.ID, &dept.Code, &dept.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get department", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get department: %w", err)
	}
	return &dept, nil
}

// UsersWithRoles returns active users holding any of roles
func (r *DirectoryRepository) UsersWithRoles(ctx context.Context, roles []string) ([]*entity.User, error) {
	if len(roles) == 0 {
		return nil, nil
	}

	marks := make([]string, len(roles))
	args := make([]interface{}, len(roles))
	for i, role := range roles {
		marks[i] = "?"
		args[i] = strings.ToUpper(role)
	}

	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE active = 1 AND id IN (
			SELECT user_id FROM user_roles WHERE role IN (` + strings.Join(marks, ", ") + `)
		)
		ORDER BY id
	`

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list users by role", zap.Strings("roles", roles), zap.Error(err))
		return nil, fmt.Errorf("failed to list users by role: %w", err)
	}
	defer rows.Close()

	var users []*entity.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	if err := r.attachRoles(ctx, users); err != nil {
		return nil, err
	}
	return users, nil
}

// attachRoles loads the role names of users with one query
func (r *DirectoryRepository) attachRoles(ctx context.Context, users []*entity.User) error {
	if len(users) == 0 {
		return nil
	}
	ids := make([]int64, len(users))
	byID := make(map[int64]*entity.User, len(users))
	for i, u := range users {
		ids[i] = u.ID
		u.Roles = []string{}
		byID[u.ID] = u
	}

	marks, args := inClause(ids)
	query := `SELECT user_id, role FROM user_roles WHERE user_id IN (` + marks + `) ORDER BY user_id, role`

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to load user roles", zap.Error(err))
		return fmt.Errorf("failed to load user roles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			userID int64
			role   string
		)
		if err := rows.Scan(&userID, &role); err != nil {
			return fmt.Errorf("failed to scan user role: %w", err)
		}
		byID[userID].Roles = append(byID[userID].Roles, role)
	}
	return rows.Err()
}

const userColumns = `id, name, email, COALESCE(department_id, 0), active, created_at`

func scanUser(row rowScanner) (*entity.User, error) {
	var user entity.User
	if err := row.Scan(&user.ID, &user.Name, &user.Email, &user.DepartmentID, &user.Active, &user.CreatedAt); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *DirectoryRepository) getExecutor(ctx context.Context) sqlite.Executor {
	return sqlite.ExecutorFor(ctx, r.db)
}

// Verify interface compliance
var _ port.Directory = (*DirectoryRepository)(nil)
