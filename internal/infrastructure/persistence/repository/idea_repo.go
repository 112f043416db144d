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

const ideaColumns = `
	id, title, description, submitted_by, status, reviewed_by, review_comment,
	vote_count, upvote_count, downvote_count, created_at, updated_at`

// IdeaRepository implements port.IdeaRepository
type IdeaRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewIdeaRepository creates a new idea repository
func NewIdeaRepository(db *sql.DB, logger *zap.Logger) port.IdeaRepository {
	return &IdeaRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new idea
func (r *IdeaRepository) Create(ctx context.Context, idea *entity.Idea) error {
	query := `
		INSERT INTO ideas (title, description, submitted_by, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	result, err := r.getExecutor(ctx).ExecContext(ctx, query,
		idea.Title,
		idea.Description,
		idea.SubmittedBy,
		idea.Status,
		idea.CreatedAt,
		idea.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create idea", zap.Error(err))
		return fmt.Errorf("failed to create idea: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	idea.ID = id
	return nil
}

// GetByID retrieves an idea by ID
func (r *IdeaRepository) GetByID(ctx context.Context, id int64) (*entity.Idea, error) {
	query := `SELECT ` + ideaColumns + ` FROM ideas WHERE id = ?`

	idea, err := scanIdea(r.getExecutor(ctx).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get idea", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get idea: %w", err)
	}
	return idea, nil
}

// List returns ideas, optionally filtered by status, highest net votes first
func (r *IdeaRepository) List(ctx context.Context, status entity.IdeaStatus, limit, offset int) ([]*entity.Idea, error) {
	query := `SELECT ` + ideaColumns + ` FROM ideas`
	var args []interface{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY vote_count DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list ideas", zap.Error(err))
		return nil, fmt.Errorf("failed to list ideas: %w", err)
	}
	defer rows.Close()

	var ideas []*entity.Idea
	for rows.Next() {
		idea, err := scanIdea(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan idea: %w", err)
		}
		ideas = append(ideas, idea)
	}
	return ideas, rows.Err()
}

// UpdateReview records a committee decision
func (r *IdeaRepository) UpdateReview(ctx context.Context, id int64, status entity.IdeaStatus, reviewerID int64, comment string) error {
	query := `
		UPDATE ideas
		SET status = ?, reviewed_by = ?, review_comment = ?, updated_at = ?
		WHERE id = ?
	`
	if _, err := r.getExecutor(ctx).ExecContext(ctx, query, status, reviewerID, comment, now(), id); err != nil {
		r.logger.Error("Failed to update idea review", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to update idea review: %w", err)
	}
	return nil
}

// ApplyVoteDelta adjusts the counters relative to their stored values so
// the write never depends on a value read earlier
func (r *IdeaRepository) ApplyVoteDelta(ctx context.Context, id int64, delta entity.VoteDelta) error {
	query := `
		UPDATE ideas
		SET vote_count = vote_count + ?,
			upvote_count = upvote_count + ?,
			downvote_count = downvote_count + ?,
			updated_at = ?
		WHERE id = ?
	`
	result, err := r.getExecutor(ctx).ExecContext(ctx, query, delta.Votes, delta.Up, delta.Down, now(), id)
	if err != nil {
		r.logger.Error("Failed to apply vote delta", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to apply vote delta: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("apply vote delta: idea %d not found", id)
	}
	return nil
}

func scanIdea(row rowScanner) (*entity.Idea, error) {
	var (
		idea       entity.Idea
		reviewedBy sql.NullInt64
	)
	err := row.Scan(
		&idea.ID,
		&idea.Title,
		&idea.Description,
		&idea.SubmittedBy,
		&idea.Status,
		&reviewedBy,
		&idea.ReviewComment,
		&idea.VoteCount,
		&idea.UpvoteCount,
		&idea.DownvoteCount,
		&idea.CreatedAt,
		&idea.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	idea.ReviewedBy = int64Ptr(reviewedBy)
	return &idea, nil
}

func (r *IdeaRepository) getExecutor(ctx context.Context) sqlite.Executor {
	return sqlite.ExecutorFor(ctx, r.db)
}

// VoteRepository implements port.VoteRepository
type VoteRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewVoteRepository creates a new vote repository
func NewVoteRepository(db *sql.DB, logger *zap.Logger) port.VoteRepository {
	return &VoteRepository{
		db:     db,
		logger: logger,
	}
}

// Get returns the vote a user holds on an idea, or nil
func (r *VoteRepository) Get(ctx context.Context, ideaID, userID int64) (*entity.IdeaVote, error) {
	query := `
		SELECT id, idea_id, user_id, vote_type, created_at, updated_at
		FROM idea_votes
		WHERE idea_id = ? AND user_id = ?
	`

	var vote entity.IdeaVote
	err := r.getExecutor(ctx).QueryRowContext(ctx, query, ideaID, userID).Scan(
		&vote.ID,
		&vote.IdeaID,
		&vote.UserID,
		&vote.VoteType,
		&vote.CreatedAt,
		&vote.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get vote", zap.Int64("idea_id", ideaID), zap.Int64("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("failed to get vote: %w", err)
	}
	return &vote, nil
}

// Upsert stores the user's vote, replacing any previous one
func (r *VoteRepository) Upsert(ctx context.Context, vote *entity.IdeaVote) error {
	query := `
		INSERT INTO idea_votes (idea_id, user_id, vote_type, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(idea_id, user_id) DO UPDATE SET
			vote_type = excluded.vote_type,
			updated_at = excluded.updated_at
	`
	_, err := r.getExecutor(ctx).ExecContext(ctx, query,
		vote.IdeaID,
		vote.UserID,
		vote.VoteType,
		vote.CreatedAt,
		vote.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to upsert vote", zap.Int64("idea_id", vote.IdeaID), zap.Error(err))
		return fmt.Errorf("failed to upsert vote: %w", err)
	}
	return nil
}

// Delete removes the user's vote
func (r *VoteRepository) Delete(ctx context.Context, ideaID, userID int64) error {
	_, err := r.getExecutor(ctx).ExecContext(ctx, `DELETE FROM idea_votes WHERE idea_id = ? AND user_id = ?`, ideaID, userID)
	if err != nil {
		r.logger.Error("Failed to delete vote", zap.Int64("idea_id", ideaID), zap.Error(err))
		return fmt.Errorf("failed to delete vote: %w", err)
	}
	return nil
}

func (r *VoteRepository) getExecutor(ctx context.Context) sqlite.Executor {
	return sqlite.ExecutorFor(ctx, r.db)
}

// Verify interface compliance
var (
	_ port.IdeaRepository = (*IdeaRepository)(nil)
	_ port.VoteRepository = (*VoteRepository)(nil)
)
