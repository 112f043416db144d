package service

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/garyjia/procurement-tracker/internal/application/dispatcher"
	"github.com/garyjia/procurement-tracker/internal/application/port"
	appwf "github.com/garyjia/procurement-tracker/internal/application/workflow"
	"github.com/garyjia/procurement-tracker/internal/domain/apperr"
	"github.com/garyjia/procurement-tracker/internal/domain/entity"
	"github.com/garyjia/procurement-tracker/internal/domain/event"
	"github.com/garyjia/procurement-tracker/internal/domain/policy"
	"github.com/garyjia/procurement-tracker/internal/domain/reference"
	"github.com/garyjia/procurement-tracker/internal/domain/threshold"
	"github.com/garyjia/procurement-tracker/internal/domain/workflow"
	"github.com/garyjia/procurement-tracker/pkg/utils"
)

// CombineCommand folds existing requests into one multi-lot submission.
// Lots are numbered in the order RequestIDs are given.
type CombineCommand struct {
	Title       string         `json:"title" validate:"required,max=200"`
	Description string         `json:"description" validate:"max=4000"`
	RequestIDs  []int64        `json:"request_ids" validate:"required,min=2,max=100,dive,gt=0"`
	Config      map[string]any `json:"config"`
}

// CombinationService creates and reads combined requests
type CombinationService interface {
	Combine(ctx context.Context, cmd CombineCommand, actor policy.Actor) (*entity.CombinedView, error)
	GetCombined(ctx context.Context, id int64) (*entity.CombinedView, error)
	ListCombined(ctx context.Context, limit, offset int) ([]*entity.CombinedRequest, error)
	ExportLots(ctx context.Context, id int64, w io.Writer) (*entity.CombinedView, error)
}

type combinationServiceImpl struct {
	requests  port.RequestRepository
	items     port.ItemRepository
	history   port.HistoryRepository
	combined  port.CombinedRequestRepository
	txManager port.TransactionManager
	evaluator *threshold.Evaluator
	exporter  port.LotExporter

	dispatcher dispatcher.Dispatcher
	validate   *validator.Validate
	clock      port.Clock
	logger     Logger
}

// NewCombinationService creates a new CombinationService
func NewCombinationService(
	requests port.RequestRepository,
	items port.ItemRepository,
	history port.HistoryRepository,
	combined port.CombinedRequestRepository,
	txManager port.TransactionManager,
	evaluator *threshold.Evaluator,
	exporter port.LotExporter,
	disp dispatcher.Dispatcher,
	clock port.Clock,
	logger Logger,
) CombinationService {
	if clock == nil {
		clock = time.Now
	}
	if evaluator == nil {
		evaluator = threshold.New(threshold.DefaultConfig())
	}
	return &combinationServiceImpl{
		requests:   requests,
		items:      items,
		history:    history,
		combined:   combined,
		txManager:  txManager,
		evaluator:  evaluator,
		exporter:   exporter,
		dispatcher: disp,
		validate:   utils.NewValidator(),
		clock:      clock,
		logger:     logger,
	}
}

// Combine converts the member requests into numbered lots of a new combined
// request. Every read, check and write happens in one transaction.
func (s *combinationServiceImpl) Combine(ctx context.Context, cmd CombineCommand, actor policy.Actor) (*entity.CombinedView, error) {
	const op = "combination.Combine"

	cmd.Title = utils.SanitizeString(cmd.Title)
	cmd.Description = utils.SanitizeString(cmd.Description)
	if err := s.validate.Struct(cmd); err != nil {
		msgs := utils.ValidationMessages(err)
		return nil, apperr.Validation(op, "invalid input: %s", strings.Join(msgs, "; ")).WithDetail("fields", msgs)
	}
	if dups := duplicateIDs(cmd.RequestIDs); len(dups) > 0 {
		return nil, apperr.Validation(op, "request ids are listed more than once: %v", dups).
			WithDetail("duplicate_ids", dups)
	}

	var (
		parent *entity.CombinedRequest
		lots   []*entity.Request
		deptID int64
	)
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		lots, err = s.loadMembers(txCtx, op, cmd.RequestIDs)
		if err != nil {
			return err
		}

		deptID, err = checkMembers(op, lots, actor)
		if err != nil {
			return err
		}

		now := s.clock()
		parent = &entity.CombinedRequest{
			Reference:   reference.Combined(now),
			Title:       cmd.Title,
			Description: cmd.Description,
			Config:      cmd.Config,
			CreatedBy:   actor.UserID,
			CreatedAt:   now,
		}
		if err := s.combined.Create(txCtx, parent); err != nil {
			return fmt.Errorf("create combined request %s: %w", parent.Reference, err)
		}

		lotRefs := make([]string, 0, len(lots))
		for i, req := range lots {
			lotNumber := i + 1
			previous := req.Status
			title := reference.LotTitle(lotNumber, req.Title)

			err := s.requests.AssignLot(txCtx, port.LotAssignment{
				RequestID:       req.ID,
				ExpectedVersion: req.Version,
				CombinedID:      parent.ID,
				LotNumber:       lotNumber,
				Title:           title,
				Status:          workflow.StateProcurementReview,
			})
			if err != nil {
				return fmt.Errorf("assign lot %d (%s): %w", lotNumber, req.Reference, err)
			}

			req.Title = title
			req.Status = workflow.StateProcurementReview
			req.Version++
			req.IsCombined = true
			req.CombinedRequestID = &parent.ID
			req.LotNumber = &lotNumber
			req.UpdatedAt = now
			lotRefs = append(lotRefs, req.Reference)

			err = s.history.Append(txCtx, &entity.StatusHistoryEntry{
				RequestID:         req.ID,
				PreviousStatus:    previous,
				Status:            req.Status,
				Action:            entity.HistoryActionCombine,
				ActorID:           actor.UserID,
				ActorName:         actor.Label(),
				Comment:           fmt.Sprintf("Combined into %s as lot %d", parent.Reference, lotNumber),
				CombinedRequestID: &parent.ID,
				CreatedAt:         now,
			})
			if err != nil {
				return fmt.Errorf("append lot history: %w", err)
			}
		}

		err = s.history.Append(txCtx, &entity.StatusHistoryEntry{
			RequestID:         lots[0].ID,
			PreviousStatus:    workflow.StateProcurementReview,
			Status:            workflow.StateProcurementReview,
			Action:            entity.HistoryActionCombineSummary,
			ActorID:           actor.UserID,
			ActorName:         actor.Label(),
			Comment:           fmt.Sprintf("%s created with %d lots: %s", parent.Reference, len(lots), strings.Join(lotRefs, ", ")),
			CombinedRequestID: &parent.ID,
			CreatedAt:         now,
		})
		if err != nil {
			return fmt.Errorf("append summary history: %w", err)
		}

		return s.attachItems(txCtx, lots)
	})
	if err != nil {
		s.logger.Error("Combination failed", "error", err, "request_ids", cmd.RequestIDs)
		return nil, apperr.AsTransactionFailure(op, err)
	}

	view := entity.NewCombinedView(*parent, lots)
	s.logger.Info("Combined request created",
		"id", parent.ID,
		"reference", parent.Reference,
		"lots", view.LotsCount,
		"total_value", view.TotalValue.String(),
	)
	s.publish(ctx, view, deptID, actor)
	return view, nil
}

// loadMembers returns the members in input order, rejecting missing,
// ineligible or already combined ids together
func (s *combinationServiceImpl) loadMembers(ctx context.Context, op string, ids []int64) ([]*entity.Request, error) {
	found, err := s.requests.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load members: %w", err)
	}
	byID := make(map[int64]*entity.Request, len(found))
	for _, req := range found {
		byID[req.ID] = req
	}

	var (
		missing    []int64
		ineligible = map[int64]string{}
		combined   []int64
		lots       = make([]*entity.Request, 0, len(ids))
	)
	for _, id := range ids {
		req, ok := byID[id]
		switch {
		case !ok:
			missing = append(missing, id)
		case req.IsCombined:
			combined = append(combined, id)
		case !req.Status.IsCombinationEligible():
			ineligible[id] = req.Status.String()
		default:
			lots = append(lots, req)
		}
	}

	if len(missing) == 0 && len(ineligible) == 0 && len(combined) == 0 {
		return lots, nil
	}

	e := apperr.Validation(op, "requests cannot be combined")
	if len(missing) > 0 {
		e = e.WithDetail("missing_ids", missing)
	}
	if len(ineligible) > 0 {
		e = e.WithDetail("ineligible", ineligible)
	}
	if len(combined) > 0 {
		e = e.WithDetail("already_combined_ids", combined)
	}
	return nil, e
}

// checkMembers enforces the cross-department and single-currency rules and
// returns the shared department id, or 0 when members span departments
func checkMembers(op string, lots []*entity.Request, actor policy.Actor) (int64, error) {
	departments := map[int64]bool{}
	currencies := map[string]bool{}
	for _, req := range lots {
		departments[req.DepartmentID] = true
		currencies[req.Currency] = true
	}

	if len(currencies) > 1 {
		return 0, apperr.Validation(op, "lots must share one currency").
			WithDetail("currencies", sortedKeys(currencies))
	}

	if len(departments) > 1 {
		if !actor.Capabilities.CanCombineAcrossDepartments {
			ids := make([]int64, 0, len(departments))
			for id := range departments {
				ids = append(ids, id)
			}
			sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
			return 0, apperr.Forbidden(op, "combining requests from %d departments requires procurement capability", len(ids)).
				WithDetail("department_ids", ids)
		}
		return 0, nil
	}
	return lots[0].DepartmentID, nil
}

// GetCombined returns a combined request with totals computed from its lots
func (s *combinationServiceImpl) GetCombined(ctx context.Context, id int64) (*entity.CombinedView, error) {
	const op = "combination.GetCombined"

	parent, err := s.combined.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("Failed to get combined request", "error", err, "id", id)
		return nil, apperr.AsTransactionFailure(op, err)
	}
	if parent == nil {
		return nil, apperr.NotFound(op, "combined request", id)
	}

	lots, err := s.requests.ListByCombinedID(ctx, id)
	if err != nil {
		return nil, apperr.AsTransactionFailure(op, err)
	}
	if err := s.attachItems(ctx, lots); err != nil {
		return nil, apperr.AsTransactionFailure(op, err)
	}

	return entity.NewCombinedView(*parent, lots), nil
}

// ListCombined lists combined requests, newest first
func (s *combinationServiceImpl) ListCombined(ctx context.Context, limit, offset int) ([]*entity.CombinedRequest, error) {
	limit, offset = clampPage(limit, offset)
	list, err := s.combined.List(ctx, limit, offset)
	if err != nil {
		return nil, apperr.AsTransactionFailure("combination.ListCombined", err)
	}
	return list, nil
}

// ExportLots writes the lot schedule of a combined request
func (s *combinationServiceImpl) ExportLots(ctx context.Context, id int64, w io.Writer) (*entity.CombinedView, error) {
	view, err := s.GetCombined(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.exporter == nil {
		return nil, fmt.Errorf("lot export is not configured")
	}
	if err := s.exporter.WriteLots(w, view); err != nil {
		s.logger.Error("Failed to export lots", "error", err, "id", id)
		return nil, fmt.Errorf("export lots of %s: %w", view.Reference, err)
	}
	return view, nil
}

func (s *combinationServiceImpl) attachItems(ctx context.Context, lots []*entity.Request) error {
	if len(lots) == 0 {
		return nil
	}
	ids := make([]int64, len(lots))
	for i, lot := range lots {
		ids[i] = lot.ID
	}
	items, err := s.items.GetByRequestIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("load lot items: %w", err)
	}
	for _, lot := range lots {
		lot.Items = items[lot.ID]
	}
	return nil
}

// publish emits post-commit events; threshold alerts use the aggregate value
// and the union of the lots' procurement tags
func (s *combinationServiceImpl) publish(ctx context.Context, view *entity.CombinedView, deptID int64, actor policy.Actor) {
	if s.dispatcher == nil {
		return
	}

	lotIDs := make([]int64, len(view.Lots))
	var tags []string
	for i, lot := range view.Lots {
		lotIDs[i] = lot.ID
		tags = append(tags, lot.ProcurementTypes...)
	}

	created := event.NewEvent(event.TypeCombinationCreated, view.ID, view.Reference, map[string]any{
		"title":       view.Title,
		"lot_ids":     lotIDs,
		"lots":        view.LotsCount,
		"total_value": view.TotalValue.String(),
	}).WithActor(actor.UserID, actor.Label())
	s.dispatcher.DispatchAsync(ctx, created)

	currency := ""
	if len(view.Lots) > 0 {
		currency = view.Lots[0].Currency
	}
	decision := s.evaluator.Evaluate(view.TotalValue, normalizeTags(tags), currency)
	if !decision.RequiresExecutiveApproval {
		return
	}

	alert := event.NewEvent(event.TypeThresholdExceeded, view.ID, view.Reference,
		appwf.ThresholdPayload(entity.AuditEntityCombined, view.Title, actor.UserID, deptID, view.TotalValue, decision)).
		WithActor(actor.UserID, actor.Label()).
		WithCorrelation(created.CorrelationID)
	s.dispatcher.DispatchAsync(ctx, alert)
}

func duplicateIDs(ids []int64) []int64 {
	seen := make(map[int64]int, len(ids))
	var dups []int64
	for _, id := range ids {
		seen[id]++
		if seen[id] == 2 {
			dups = append(dups, id)
		}
	}
	return dups
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
