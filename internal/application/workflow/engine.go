package workflow

import (
	"context"

	"github.com/garyjia/procurement-tracker/internal/domain/entity"
	"github.com/garyjia/procurement-tracker/internal/domain/policy"
	domainwf "github.com/garyjia/procurement-tracker/internal/domain/workflow"
)

// RequestEngine drives procurement requests through the approval pipeline.
// Every call reads the persisted status inside its own transaction; no
// state machine outlives a call.
type RequestEngine interface {
	// Submit moves a DRAFT request to SUBMITTED
	Submit(ctx context.Context, requestID int64, actor policy.Actor) (*entity.Request, error)

	// Act applies a reviewer action (APPROVE, REJECT, RETURN, ESCALATE)
	Act(ctx context.Context, requestID int64, action domainwf.Trigger, actor policy.Actor, comment string) (*entity.Request, error)

	// Assign delegates a finance-stage request to another user
	Assign(ctx context.Context, requestID, targetUserID int64, actor policy.Actor) (*entity.Request, error)

	// AssignSelf delegates a finance-stage request to the actor
	AssignSelf(ctx context.Context, requestID int64, actor policy.Actor) (*entity.Request, error)

	// CurrentState returns the persisted status of a request
	CurrentState(ctx context.Context, requestID int64) (domainwf.State, error)
}
