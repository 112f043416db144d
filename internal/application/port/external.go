package port

import (
	"context"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/procurement-tracker/internal/domain/entity"
)

// Directory resolves users, their roles and departments
type Directory interface {
	GetUser(ctx context.Context, id int64) (*entity.User, error)
	GetDepartment(ctx context.Context, id int64) (*entity.Department, error)

	// UsersWithRoles lists active users holding any of the given roles
	UsersWithRoles(ctx context.Context, roles []string) ([]*entity.User, error)
}

// AuditRecorder appends audit entries. Failures are reported to the caller
// but must never undo the audited change.
type AuditRecorder interface {
	Record(ctx context.Context, entry entity.AuditEntry) error
}

// ThresholdAlert describes a request or combination that needs executive approval
type ThresholdAlert struct {
	Reference       string
	Title           string
	RequesterName   string
	DepartmentName  string
	Total           decimal.Decimal
	Currency        string
	ThresholdAmount decimal.Decimal
	Category        string
	Reason          string

	EntityName string
	EntityID   int64
}

// NotificationDispatcher delivers alerts to the people who must act on them
type NotificationDispatcher interface {
	NotifyThresholdExceeded(ctx context.Context, alert ThresholdAlert) error
}

// ActivityStore tracks when users were last seen. Entries are owned by the
// store instance; no process-wide state.
type ActivityStore interface {
	Touch(ctx context.Context, userID int64, at time.Time) error
	LastSeen(ctx context.Context, userID int64) (time.Time, bool, error)
	Active(ctx context.Context, since time.Time) ([]int64, error)

	// Expire drops entries older than the cutoff and returns how many were removed
	Expire(ctx context.Context, olderThan time.Time) (int, error)
}

// Clock supplies the current time; injected so references are reproducible in tests
type Clock func() time.Time

// LotExporter renders a combined request's lot schedule
type LotExporter interface {
	WriteLots(w io.Writer, view *entity.CombinedView) error
}
