package port

import (
	"context"
	"errors"
	"time"

	"github.com/garyjia/procurement-tracker/internal/domain/entity"
	"github.com/garyjia/procurement-tracker/internal/domain/workflow"
)

// ErrStaleVersion is returned when a conditional write finds the row already
// changed by another transaction
var ErrStaleVersion = errors.New("stale row version")

// RequestFilter narrows request listings; zero values mean "any"
type RequestFilter struct {
	Status       workflow.State
	DepartmentID int64
	RequesterID  int64
	AssigneeID   int64
	Limit        int
	Offset       int
}

// StatusChange is a conditional status write. The row is only updated when
// its version still equals ExpectedVersion.
type StatusChange struct {
	RequestID       int64
	ExpectedVersion int64
	Status          workflow.State
	SubmittedAt     *time.Time
}

// LotAssignment marks a request as one lot of a combined request
type LotAssignment struct {
	RequestID       int64
	ExpectedVersion int64
	CombinedID      int64
	LotNumber       int
	Title           string
	Status          workflow.State
}

// RequestRepository defines persistence operations for Request rows.
// Getters return (nil, nil) when the row does not exist.
type RequestRepository interface {
	Create(ctx context.Context, req *entity.Request) error
	GetByID(ctx context.Context, id int64) (*entity.Request, error)
	GetByIDs(ctx context.Context, ids []int64) ([]*entity.Request, error)
	List(ctx context.Context, filter RequestFilter) ([]*entity.Request, error)
	ListByCombinedID(ctx context.Context, combinedID int64) ([]*entity.Request, error)

	// UpdateDetails writes title, description, totals and tags and bumps the version
	UpdateDetails(ctx context.Context, req *entity.Request, expectedVersion int64) error
	UpdateStatus(ctx context.Context, change StatusChange) error
	SetAssignee(ctx context.Context, requestID, expectedVersion, assigneeID int64) error
	AssignLot(ctx context.Context, lot LotAssignment) error
}

// ItemRepository defines persistence operations for RequestItem rows
type ItemRepository interface {
	ReplaceForRequest(ctx context.Context, requestID int64, items []entity.RequestItem) error
	GetByRequestID(ctx context.Context, requestID int64) ([]entity.RequestItem, error)
	GetByRequestIDs(ctx context.Context, requestIDs []int64) (map[int64][]entity.RequestItem, error)
}

// HistoryRepository defines persistence operations for the append-only status history
type HistoryRepository interface {
	Append(ctx context.Context, entry *entity.StatusHistoryEntry) error
	GetByRequestID(ctx context.Context, requestID int64) ([]*entity.StatusHistoryEntry, error)
}

// SequenceRepository hands out per-day request numbers
type SequenceRepository interface {
	// Next increments and returns the counter for the day key, starting at 1
	Next(ctx context.Context, dayKey string) (int, error)
}

// CombinedRequestRepository defines persistence operations for CombinedRequest rows
type CombinedRequestRepository interface {
	Create(ctx context.Context, combined *entity.CombinedRequest) error
	GetByID(ctx context.Context, id int64) (*entity.CombinedRequest, error)
	List(ctx context.Context, limit, offset int) ([]*entity.CombinedRequest, error)
}

// IdeaRepository defines persistence operations for Idea rows
type IdeaRepository interface {
	Create(ctx context.Context, idea *entity.Idea) error
	GetByID(ctx context.Context, id int64) (*entity.Idea, error)
	List(ctx context.Context, status entity.IdeaStatus, limit, offset int) ([]*entity.Idea, error)
	UpdateReview(ctx context.Context, id int64, status entity.IdeaStatus, reviewerID int64, comment string) error

	// ApplyVoteDelta adjusts counters with relative updates so concurrent
	// voters never overwrite each other
	ApplyVoteDelta(ctx context.Context, id int64, delta entity.VoteDelta) error
}

// VoteRepository defines persistence operations for IdeaVote rows
type VoteRepository interface {
	Get(ctx context.Context, ideaID, userID int64) (*entity.IdeaVote, error)
	Upsert(ctx context.Context, vote *entity.IdeaVote) error
	Delete(ctx context.Context, ideaID, userID int64) error
}

// AuditLogRepository defines persistence operations for the append-only audit log
type AuditLogRepository interface {
	Append(ctx context.Context, entry *entity.AuditEntry) error
	ListByEntity(ctx context.Context, entityName string, entityID int64) ([]*entity.AuditEntry, error)
}

// NotificationRepository defines persistence operations for queued notifications
type NotificationRepository interface {
	Create(ctx context.Context, n *entity.Notification) error
	ListByRecipient(ctx context.Context, recipientID int64, limit int) ([]*entity.Notification, error)
	MarkSent(ctx context.Context, id int64, at time.Time) error
	MarkFailed(ctx context.Context, id int64, errMsg string) error
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
