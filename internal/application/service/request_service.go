package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/garyjia/procurement-tracker/internal/application/dispatcher"
	"github.com/garyjia/procurement-tracker/internal/application/port"
	"github.com/garyjia/procurement-tracker/internal/domain/apperr"
	"github.com/garyjia/procurement-tracker/internal/domain/entity"
	"github.com/garyjia/procurement-tracker/internal/domain/event"
	"github.com/garyjia/procurement-tracker/internal/domain/policy"
	"github.com/garyjia/procurement-tracker/internal/domain/reference"
	"github.com/garyjia/procurement-tracker/internal/domain/workflow"
	"github.com/garyjia/procurement-tracker/pkg/utils"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// ItemInput is one request line as supplied by the caller
type ItemInput struct {
	Description string          `json:"description" validate:"required,max=500"`
	Quantity    int64           `json:"quantity" validate:"gt=0"`
	UnitPrice   decimal.Decimal `json:"unit_price" validate:"gte=0"`
}

// CreateRequestCommand carries the fields of a new draft
type CreateRequestCommand struct {
	Title            string      `json:"title" validate:"required,max=200"`
	Description      string      `json:"description" validate:"max=4000"`
	DepartmentID     int64       `json:"department_id" validate:"gte=0"`
	Currency         string      `json:"currency" validate:"required,iso4217"`
	Priority         string      `json:"priority" validate:"omitempty,oneof=LOW NORMAL HIGH URGENT"`
	ProcurementTypes []string    `json:"procurement_types" validate:"max=10,dive,required,max=50"`
	Items            []ItemInput `json:"items" validate:"max=500,dive"`
}

// UpdateRequestCommand carries an edit; nil fields are left unchanged
type UpdateRequestCommand struct {
	Title            *string      `json:"title" validate:"omitnil,min=1,max=200"`
	Description      *string      `json:"description" validate:"omitnil,max=4000"`
	Priority         *string      `json:"priority" validate:"omitnil,oneof=LOW NORMAL HIGH URGENT"`
	ProcurementTypes *[]string    `json:"procurement_types" validate:"omitnil,max=10,dive,required,max=50"`
	Items            *[]ItemInput `json:"items" validate:"omitnil,max=500,dive"`
}

// RequestService manages procurement request drafts and reads
type RequestService interface {
	CreateDraft(ctx context.Context, cmd CreateRequestCommand, actor policy.Actor) (*entity.Request, error)
	UpdateRequest(ctx context.Context, id int64, cmd UpdateRequestCommand, actor policy.Actor) (*entity.Request, error)
	GetRequest(ctx context.Context, id int64) (*entity.Request, error)
	GetHistory(ctx context.Context, id int64) ([]*entity.StatusHistoryEntry, error)
	ListRequests(ctx context.Context, filter port.RequestFilter) ([]*entity.Request, error)
}

type requestServiceImpl struct {
	requests  port.RequestRepository
	items     port.ItemRepository
	history   port.HistoryRepository
	sequences port.SequenceRepository
	directory port.Directory
	txManager port.TransactionManager

	dispatcher dispatcher.Dispatcher
	validate   *validator.Validate
	clock      port.Clock
	logger     Logger
}

// NewRequestService creates a new RequestService
func NewRequestService(
	requests port.RequestRepository,
	items port.ItemRepository,
	history port.HistoryRepository,
	sequences port.SequenceRepository,
	directory port.Directory,
	txManager port.TransactionManager,
	disp dispatcher.Dispatcher,
	clock port.Clock,
	logger Logger,
) RequestService {
	if clock == nil {
		clock = time.Now
	}
	return &requestServiceImpl{
		requests:   requests,
		items:      items,
		history:    history,
		sequences:  sequences,
		directory:  directory,
		txManager:  txManager,
		dispatcher: disp,
		validate:   utils.NewValidator(),
		clock:      clock,
		logger:     logger,
	}
}

// CreateDraft creates a DRAFT request with a fresh daily reference
func (s *requestServiceImpl) CreateDraft(ctx context.Context, cmd CreateRequestCommand, actor policy.Actor) (*entity.Request, error) {
	const op = "request.CreateDraft"

	cmd.Title = utils.SanitizeString(cmd.Title)
	cmd.Description = utils.SanitizeString(cmd.Description)
	cmd.Currency = strings.ToUpper(strings.TrimSpace(cmd.Currency))
	if cmd.DepartmentID == 0 {
		cmd.DepartmentID = actor.DepartmentID
	}
	if err := s.validateStruct(op, cmd); err != nil {
		return nil, err
	}
	if cmd.DepartmentID == 0 {
		return nil, apperr.Validation(op, "department is required")
	}

	dept, err := s.directory.GetDepartment(ctx, cmd.DepartmentID)
	if err != nil {
		return nil, apperr.AsTransactionFailure(op, err)
	}
	if dept == nil {
		return nil, apperr.Validation(op, "department %d does not exist", cmd.DepartmentID).
			WithDetail("department_id", cmd.DepartmentID)
	}

	now := s.clock()
	req := &entity.Request{
		Title:            cmd.Title,
		Description:      cmd.Description,
		DepartmentID:     cmd.DepartmentID,
		RequesterID:      actor.UserID,
		Currency:         cmd.Currency,
		Priority:         cmd.Priority,
		ProcurementTypes: normalizeTags(cmd.ProcurementTypes),
		Status:           workflow.StateDraft,
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if req.Priority == "" {
		req.Priority = entity.PriorityNormal
	}
	req.SetItems(toItems(cmd.Items))

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		seq, err := s.sequences.Next(txCtx, reference.DayKey(now))
		if err != nil {
			return fmt.Errorf("next sequence: %w", err)
		}
		req.Reference = reference.Request(now, seq)

		if err := s.requests.Create(txCtx, req); err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.SetItems(req.Items)
		if err := s.items.ReplaceForRequest(txCtx, req.ID, req.Items); err != nil {
			return fmt.Errorf("create items: %w", err)
		}

		return s.history.Append(txCtx, &entity.StatusHistoryEntry{
			RequestID: req.ID,
			Status:    workflow.StateDraft,
			Action:    entity.HistoryActionCreate,
			ActorID:   actor.UserID,
			ActorName: actor.Label(),
			Comment:   "Request created",
			CreatedAt: now,
		})
	})
	if err != nil {
		s.logger.Error("Failed to create request", "error", err, "actor_id", actor.UserID)
		return nil, apperr.AsTransactionFailure(op, err)
	}

	s.logger.Info("Request created", "id", req.ID, "reference", req.Reference)
	s.emit(ctx, event.TypeRequestCreated, req, actor, map[string]any{
		"title":           req.Title,
		"total_estimated": req.TotalEstimated.String(),
		"currency":        req.Currency,
		"items":           len(req.Items),
	})
	return req, nil
}

// UpdateRequest edits a request the actor is still allowed to change
func (s *requestServiceImpl) UpdateRequest(ctx context.Context, id int64, cmd UpdateRequestCommand, actor policy.Actor) (*entity.Request, error) {
	const op = "request.UpdateRequest"

	if err := s.validateStruct(op, cmd); err != nil {
		return nil, err
	}

	var (
		req     *entity.Request
		changed []string
	)
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		req, err = s.requests.GetByID(txCtx, id)
		if err != nil {
			return fmt.Errorf("load request: %w", err)
		}
		if req == nil {
			return apperr.NotFound(op, "request", id)
		}
		if err := checkEditable(op, req, actor); err != nil {
			return err
		}

		items, err := s.items.GetByRequestID(txCtx, req.ID)
		if err != nil {
			return fmt.Errorf("load items: %w", err)
		}
		req.Items = items

		if cmd.Title != nil {
			req.Title = utils.SanitizeString(*cmd.Title)
			changed = append(changed, "title")
		}
		if cmd.Description != nil {
			req.Description = utils.SanitizeString(*cmd.Description)
			changed = append(changed, "description")
		}
		if cmd.Priority != nil {
			req.Priority = *cmd.Priority
			changed = append(changed, "priority")
		}
		if cmd.ProcurementTypes != nil {
			req.ProcurementTypes = normalizeTags(*cmd.ProcurementTypes)
			changed = append(changed, "procurement_types")
		}
		if cmd.Items != nil {
			req.SetItems(toItems(*cmd.Items))
			if err := s.items.ReplaceForRequest(txCtx, req.ID, req.Items); err != nil {
				return fmt.Errorf("replace items: %w", err)
			}
			changed = append(changed, "items")
		}
		if len(changed) == 0 {
			return nil
		}

		if err := s.requests.UpdateDetails(txCtx, req, req.Version); err != nil {
			return fmt.Errorf("update request: %w", err)
		}
		req.Version++
		req.UpdatedAt = s.clock()
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to update request", "error", err, "id", id)
		return nil, apperr.AsTransactionFailure(op, err)
	}

	if len(changed) > 0 {
		s.logger.Info("Request updated", "id", req.ID, "fields", changed)
		s.emit(ctx, event.TypeRequestUpdated, req, actor, map[string]any{
			"fields":          changed,
			"status":          req.Status.String(),
			"total_estimated": req.TotalEstimated.String(),
		})
	}
	return req, nil
}

// checkEditable applies the edit rules: the owner edits a DRAFT freely and
// may still correct a SUBMITTED request until department review starts
// (the owner correction window). Everything else needs the override capability.
func checkEditable(op string, req *entity.Request, actor policy.Actor) error {
	if req.Status.IsTerminal() {
		return apperr.InvalidState(op, "request %s is %s and can no longer be edited", req.Reference, req.Status).
			WithDetail("current_status", req.Status.String())
	}
	if actor.Capabilities.CanOverrideLockedEdits {
		return nil
	}
	if !req.IsOwnedBy(actor.UserID) {
		return apperr.Forbidden(op, "only the requester can edit request %s", req.Reference)
	}

	switch {
	case req.Status == workflow.StateDraft:
		return nil
	case req.Status == workflow.StateSubmitted && !req.IsCombined:
		return nil
	}
	return apperr.InvalidState(op, "request %s is locked for editing in %s", req.Reference, req.Status).
		WithDetail("current_status", req.Status.String())
}

// GetRequest returns a request with its items
func (s *requestServiceImpl) GetRequest(ctx context.Context, id int64) (*entity.Request, error) {
	const op = "request.GetRequest"

	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("Failed to get request", "error", err, "id", id)
		return nil, apperr.AsTransactionFailure(op, err)
	}
	if req == nil {
		return nil, apperr.NotFound(op, "request", id)
	}

	items, err := s.items.GetByRequestID(ctx, id)
	if err != nil {
		return nil, apperr.AsTransactionFailure(op, err)
	}
	req.Items = items
	return req, nil
}

// GetHistory returns the status history of a request, oldest first
func (s *requestServiceImpl) GetHistory(ctx context.Context, id int64) ([]*entity.StatusHistoryEntry, error) {
	const op = "request.GetHistory"

	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.AsTransactionFailure(op, err)
	}
	if req == nil {
		return nil, apperr.NotFound(op, "request", id)
	}

	entries, err := s.history.GetByRequestID(ctx, id)
	if err != nil {
		return nil, apperr.AsTransactionFailure(op, err)
	}
	return entries, nil
}

// ListRequests lists requests matching the filter, newest first
func (s *requestServiceImpl) ListRequests(ctx context.Context, filter port.RequestFilter) ([]*entity.Request, error) {
	const op = "request.ListRequests"

	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, apperr.Validation(op, "unknown status %q", filter.Status)
	}
	filter.Limit, filter.Offset = clampPage(filter.Limit, filter.Offset)

	reqs, err := s.requests.List(ctx, filter)
	if err != nil {
		s.logger.Error("Failed to list requests", "error", err)
		return nil, apperr.AsTransactionFailure(op, err)
	}
	return reqs, nil
}

func (s *requestServiceImpl) validateStruct(op string, cmd any) error {
	if err := s.validate.Struct(cmd); err != nil {
		msgs := utils.ValidationMessages(err)
		return apperr.Validation(op, "invalid input: %s", strings.Join(msgs, "; ")).
			WithDetail("fields", msgs)
	}
	return nil
}

func (s *requestServiceImpl) emit(ctx context.Context, eventType event.Type, req *entity.Request, actor policy.Actor, payload map[string]any) {
	if s.dispatcher == nil {
		return
	}
	evt := event.NewEvent(eventType, req.ID, req.Reference, payload).WithActor(actor.UserID, actor.Label())
	s.dispatcher.DispatchAsync(ctx, evt)
}

func toItems(inputs []ItemInput) []entity.RequestItem {
	items := make([]entity.RequestItem, 0, len(inputs))
	for _, in := range inputs {
		items = append(items, entity.NewRequestItem(utils.SanitizeString(in.Description), in.Quantity, in.UnitPrice))
	}
	return items
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		t := strings.ToLower(strings.TrimSpace(tag))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
