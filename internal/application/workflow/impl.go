package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/procurement-tracker/internal/application/dispatcher"
	"github.com/garyjia/procurement-tracker/internal/application/port"
	"github.com/garyjia/procurement-tracker/internal/domain/apperr"
	"github.com/garyjia/procurement-tracker/internal/domain/entity"
	"github.com/garyjia/procurement-tracker/internal/domain/event"
	"github.com/garyjia/procurement-tracker/internal/domain/policy"
	"github.com/garyjia/procurement-tracker/internal/domain/threshold"
	domainwf "github.com/garyjia/procurement-tracker/internal/domain/workflow"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

// hop is one status change applied during a call
type hop struct {
	from    domainwf.State
	to      domainwf.State
	trigger domainwf.Trigger
}

// engineImpl is the concrete implementation of RequestEngine
type engineImpl struct {
	requests  port.RequestRepository
	items     port.ItemRepository
	history   port.HistoryRepository
	directory port.Directory
	txManager port.TransactionManager
	evaluator *threshold.Evaluator

	dispatcher dispatcher.Dispatcher
	logger     Logger
	clock      port.Clock
}

// EngineOption configures the workflow engine
type EngineOption func(*engineImpl)

// WithDispatcher sets the event dispatcher used for post-commit side effects
func WithDispatcher(d dispatcher.Dispatcher) EngineOption {
	return func(e *engineImpl) {
		e.dispatcher = d
	}
}

// WithLogger sets the engine logger
func WithLogger(l Logger) EngineOption {
	return func(e *engineImpl) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock overrides the time source
func WithClock(c port.Clock) EngineOption {
	return func(e *engineImpl) {
		if c != nil {
			e.clock = c
		}
	}
}

// NewEngine creates a new workflow engine
func NewEngine(
	requests port.RequestRepository,
	items port.ItemRepository,
	history port.HistoryRepository,
	directory port.Directory,
	txManager port.TransactionManager,
	evaluator *threshold.Evaluator,
	opts ...EngineOption,
) RequestEngine {
	e := &engineImpl{
		requests:  requests,
		items:     items,
		history:   history,
		directory: directory,
		txManager: txManager,
		evaluator: evaluator,
		logger:    nopLogger{},
		clock:     time.Now,
	}
	if e.evaluator == nil {
		e.evaluator = threshold.New(threshold.DefaultConfig())
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

func (e *engineImpl) Submit(ctx context.Context, requestID int64, actor policy.Actor) (*entity.Request, error) {
	const op = "workflow.Submit"

	var (
		req  *entity.Request
		hops []hop
	)
	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		req, err = e.load(txCtx, op, requestID)
		if err != nil {
			return err
		}

		if req.Status != domainwf.StateDraft {
			return apperr.InvalidState(op, "request %s is %s; only DRAFT requests can be submitted", req.Reference, req.Status).
				WithDetail("current_status", req.Status.String()).
				WithDetail("action", domainwf.TriggerSubmit.String())
		}
		if !req.IsOwnedBy(actor.UserID) && !actor.Capabilities.CanOverrideLockedEdits {
			return apperr.Forbidden(op, "only the requester can submit request %s", req.Reference)
		}

		items, err := e.items.GetByRequestID(txCtx, req.ID)
		if err != nil {
			return fmt.Errorf("load items: %w", err)
		}
		if len(items) == 0 {
			return apperr.Validation(op, "request %s has no items", req.Reference)
		}

		now := e.clock()
		hops, err = e.advance(txCtx, op, req, domainwf.TriggerSubmit, actor, "", &now)
		if err != nil {
			return err
		}
		req.SubmittedAt = &now
		return nil
	})
	if err != nil {
		e.logger.Error("Submit failed", "request_id", requestID, "error", err)
		return nil, apperr.AsTransactionFailure(op, err)
	}

	e.logger.Info("Request submitted", "request_id", req.ID, "reference", req.Reference)
	e.publish(ctx, event.TypeRequestSubmitted, req, hops, actor, "")
	return req, nil
}

func (e *engineImpl) Act(ctx context.Context, requestID int64, action domainwf.Trigger, actor policy.Actor, comment string) (*entity.Request, error) {
	const op = "workflow.Act"

	if _, ok := domainwf.ParseAction(action.String()); !ok {
		return nil, apperr.Validation(op, "unsupported action %q", action).WithDetail("action", action.String())
	}

	var (
		req  *entity.Request
		hops []hop
	)
	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		req, err = e.load(txCtx, op, requestID)
		if err != nil {
			return err
		}
		if err := ensureActionable(op, req); err != nil {
			return err
		}

		machine := BuildRequestStateMachine(req.Status)
		if !machine.CanFire(action) {
			return apperr.IllegalTransition(op, req.Status.String(), action.String())
		}
		if !actor.Capabilities.CanReview(req.Status) {
			return apperr.Forbidden(op, "actor %s cannot act on requests in %s", actor.Label(), req.Status).
				WithDetail("current_status", req.Status.String()).
				WithDetail("action", action.String())
		}

		hops, err = e.advance(txCtx, op, req, action, actor, comment, nil)
		return err
	})
	if err != nil {
		e.logger.Error("Action failed", "request_id", requestID, "action", action, "error", err)
		return nil, apperr.AsTransactionFailure(op, err)
	}

	e.logger.Info("Request transitioned",
		"request_id", req.ID,
		"reference", req.Reference,
		"action", action,
		"status", req.Status,
	)
	e.publish(ctx, event.TypeStatusChanged, req, hops, actor, comment)
	return req, nil
}

func (e *engineImpl) AssignSelf(ctx context.Context, requestID int64, actor policy.Actor) (*entity.Request, error) {
	return e.Assign(ctx, requestID, actor.UserID, actor)
}

func (e *engineImpl) Assign(ctx context.Context, requestID, targetUserID int64, actor policy.Actor) (*entity.Request, error) {
	const op = "workflow.Assign"

	if !actor.Capabilities.CanActAsFinanceManager {
		return nil, apperr.Forbidden(op, "actor %s cannot delegate finance reviews", actor.Label())
	}

	var (
		req    *entity.Request
		target *entity.User
	)
	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		req, err = e.load(txCtx, op, requestID)
		if err != nil {
			return err
		}
		if err := ensureActionable(op, req); err != nil {
			return err
		}
		if !req.Status.IsFinanceStage() {
			return apperr.InvalidState(op, "request %s is %s; assignment is only possible during finance review", req.Reference, req.Status).
				WithDetail("current_status", req.Status.String()).
				WithDetail("action", entity.HistoryActionAssign)
		}

		target, err = e.directory.GetUser(txCtx, targetUserID)
		if err != nil {
			return fmt.Errorf("load assignee: %w", err)
		}
		if target == nil {
			return apperr.NotFound(op, "user", targetUserID)
		}
		if !target.Active {
			return apperr.Validation(op, "user %d is not active", targetUserID)
		}

		if err := e.requests.SetAssignee(txCtx, req.ID, req.Version, target.ID); err != nil {
			return fmt.Errorf("set assignee: %w", err)
		}
		req.Version++
		req.CurrentAssigneeID = &target.ID
		req.UpdatedAt = e.clock()

		return e.history.Append(txCtx, &entity.StatusHistoryEntry{
			RequestID:      req.ID,
			PreviousStatus: req.Status,
			Status:         req.Status,
			Action:         entity.HistoryActionAssign,
			ActorID:        actor.UserID,
			ActorName:      actor.Label(),
			Comment:        fmt.Sprintf("Assigned to %s by %s", target.Name, actor.Label()),
			CreatedAt:      req.UpdatedAt,
		})
	})
	if err != nil {
		e.logger.Error("Assign failed", "request_id", requestID, "target_user_id", targetUserID, "error", err)
		return nil, apperr.AsTransactionFailure(op, err)
	}

	e.logger.Info("Request assigned", "request_id", req.ID, "assignee_id", target.ID)
	if e.dispatcher != nil {
		evt := event.NewEvent(event.TypeRequestAssigned, req.ID, req.Reference, map[string]any{
			"status":        req.Status.String(),
			"assignee_id":   target.ID,
			"assignee_name": target.Name,
		}).WithActor(actor.UserID, actor.Label())
		e.dispatcher.DispatchAsync(ctx, evt)
	}
	return req, nil
}

func (e *engineImpl) CurrentState(ctx context.Context, requestID int64) (domainwf.State, error) {
	const op = "workflow.CurrentState"

	req, err := e.load(ctx, op, requestID)
	if err != nil {
		return "", apperr.AsTransactionFailure(op, err)
	}
	return req.Status, nil
}

// advance fires the trigger, follows automatic triggers and persists the
// final status with one version-checked write plus one history entry per hop.
func (e *engineImpl) advance(
	ctx context.Context,
	op string,
	req *entity.Request,
	trigger domainwf.Trigger,
	actor policy.Actor,
	comment string,
	submittedAt *time.Time,
) ([]hop, error) {
	machine := BuildRequestStateMachine(req.Status)
	now := e.clock()

	from := machine.State()
	if err := machine.Fire(ctx, trigger); err != nil {
		return nil, apperr.IllegalTransition(op, from.String(), trigger.String())
	}
	hops := []hop{{from: from, to: machine.State(), trigger: trigger}}
	entries := []*entity.StatusHistoryEntry{{
		RequestID:      req.ID,
		PreviousStatus: from,
		Status:         machine.State(),
		Action:         trigger.String(),
		ActorID:        actor.UserID,
		ActorName:      actor.Label(),
		Comment:        comment,
		CreatedAt:      now,
	}}

	for {
		auto, ok := machine.AutomaticTrigger()
		if !ok {
			break
		}
		decision := e.evaluator.Evaluate(req.TotalEstimated, req.ProcurementTypes, req.Currency)
		from = machine.State()
		if err := machine.Fire(WithRouting(ctx, decision), auto); err != nil {
			return nil, fmt.Errorf("route from %s: %w", from, err)
		}
		hops = append(hops, hop{from: from, to: machine.State(), trigger: auto})
		entries = append(entries, &entity.StatusHistoryEntry{
			RequestID:      req.ID,
			PreviousStatus: from,
			Status:         machine.State(),
			Action:         auto.String(),
			ActorName:      policy.System.Label(),
			Comment:        decision.Reason,
			CreatedAt:      now,
		})
	}

	err := e.requests.UpdateStatus(ctx, port.StatusChange{
		RequestID:       req.ID,
		ExpectedVersion: req.Version,
		Status:          machine.State(),
		SubmittedAt:     submittedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}

	for _, entry := range entries {
		if err := e.history.Append(ctx, entry); err != nil {
			return nil, fmt.Errorf("append history: %w", err)
		}
	}

	req.Status = machine.State()
	req.Version++
	req.UpdatedAt = now
	return hops, nil
}

func (e *engineImpl) load(ctx context.Context, op string, requestID int64) (*entity.Request, error) {
	req, err := e.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("load request: %w", err)
	}
	if req == nil {
		return nil, apperr.NotFound(op, "request", requestID)
	}
	if !req.Status.IsValid() {
		return nil, fmt.Errorf("request %d has unknown status %q", requestID, req.Status)
	}
	return req, nil
}

func ensureActionable(op string, req *entity.Request) error {
	if !req.IsCombined {
		return nil
	}
	lot := 0
	if req.LotNumber != nil {
		lot = *req.LotNumber
	}
	return apperr.InvalidState(op, "request %s is lot %d of a combined request and cannot be acted on directly", req.Reference, lot).
		WithDetail("current_status", req.Status.String())
}

// publish emits post-commit events. It never fails the call.
func (e *engineImpl) publish(ctx context.Context, eventType event.Type, req *entity.Request, hops []hop, actor policy.Actor, comment string) {
	if e.dispatcher == nil || len(hops) == 0 {
		return
	}

	path := make([]string, 0, len(hops)+1)
	path = append(path, hops[0].from.String())
	for _, h := range hops {
		path = append(path, h.to.String())
	}

	evt := event.NewEvent(eventType, req.ID, req.Reference, map[string]any{
		"previous_status": hops[0].from.String(),
		"new_status":      req.Status.String(),
		"trigger":         hops[0].trigger.String(),
		"path":            path,
		"comment":         comment,
	}).WithActor(actor.UserID, actor.Label())
	e.dispatcher.DispatchAsync(ctx, evt)

	if req.Status != domainwf.StateExecutiveReview || hops[len(hops)-1].trigger != domainwf.TriggerRoute {
		return
	}

	decision := e.evaluator.Evaluate(req.TotalEstimated, req.ProcurementTypes, req.Currency)
	alert := event.NewEvent(event.TypeThresholdExceeded, req.ID, req.Reference, ThresholdPayload(entity.AuditEntityRequest, req.Title, req.RequesterID, req.DepartmentID, req.TotalEstimated, decision)).
		WithActor(actor.UserID, actor.Label()).
		WithCorrelation(evt.CorrelationID)
	e.dispatcher.DispatchAsync(ctx, alert)
}

// ThresholdPayload builds the payload of a threshold.exceeded event.
// A zero department id means the value spans several departments.
func ThresholdPayload(entityName, title string, requesterID, departmentID int64, total decimal.Decimal, decision threshold.Decision) map[string]any {
	return map[string]any{
		"entity":           entityName,
		"title":            title,
		"requester_id":     requesterID,
		"department_id":    departmentID,
		"total":            total.String(),
		"currency":         decision.Currency,
		"threshold_amount": decision.ThresholdAmount.String(),
		"category":         string(decision.Category),
		"reason":           decision.Reason,
	}
}
